package logger

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", Config{}, false},
		{"json", Config{Level: "debug", Format: "json", OutputPath: "stdout"}, false},
		{"file", Config{Level: "warn", OutputPath: filepath.Join(t.TempDir(), "log")}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad format", Config{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if l != nil {
				l.Sync()
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	ctx := WithCase(WithSession(context.Background(), "s-1"), "case-1")
	FromContext(ctx, l).Info("hello")
	FromContext(context.Background(), l).Info("bare")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["session"] != "s-1" || fields["case"] != "case-1" {
		t.Errorf("unexpected fields %v", fields)
	}
	if len(entries[1].ContextMap()) != 0 {
		t.Errorf("unexpected fields %v", entries[1].ContextMap())
	}
}

func TestFromContext_NilLogger(t *testing.T) {
	FromContext(context.Background(), nil).Info("discarded")
}
