package memfd

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func TestNew(t *testing.T) {
	f, err := New("test-memfd")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer f.Close()

	data := []byte("hello world")
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek error: %v", err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %q, want %q", got, data)
	}
}

func TestFromBytes(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"text", []byte("1 2\n")},
		{"empty", nil},
		{"binary", []byte{0, 1, 2, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := FromBytes(tt.name, tt.content)
			if err != nil {
				t.Fatalf("FromBytes error: %v", err)
			}
			defer f.Close()

			// sealed, so writing should fail
			if _, err := f.Write([]byte("fail")); err == nil {
				t.Error("expected write to sealed memfd to fail")
			}
			got, err := io.ReadAll(f)
			if err != nil {
				t.Fatalf("ReadAll error: %v", err)
			}
			if !bytes.Equal(got, tt.content) {
				t.Errorf("ReadAll = %q, want %q", got, tt.content)
			}
		})
	}
}

func TestFromReader_ErrorPropagation(t *testing.T) {
	if _, err := FromReader("memfd-err", errorReader{}); err == nil {
		t.Error("expected error from FromReader, got nil")
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, os.ErrInvalid }
