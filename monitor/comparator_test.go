package monitor

import (
	"context"
	"testing"
	"time"
)

func TestLines(t *testing.T) {
	tests := []struct {
		name     string
		produced string
		expected string
		match    bool
		message  string
	}{
		{"equal", "1\n2\n", "1\n2\n", true, ""},
		{"missing final newline", "1\n2", "1\n2\n", true, ""},
		{"trailing spaces", "1  \n2\t\r\n", "1\n2\n", true, ""},
		{"trailing blank lines", "1\n\n\n", "1\n", true, ""},
		{"empty", "", "\n", true, ""},
		{"leading spaces matter", " 1\n", "1\n", false, "line 1 differs"},
		{"different line", "1\n3\n", "1\n2\n", false, "line 2 differs"},
		{"missing line", "1\n", "1\n2\n", false, "expected 2 lines, got 1"},
		{"extra line", "1\n2\n3\n", "1\n2\n", false, "expected 2 lines, got 3"},
		{"inner blank line", "1\n\n2\n", "1\n2\n", false, "line 2 differs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Lines{}.Compare(context.Background(), Comparison{Produced: []byte(tt.produced), Expected: []byte(tt.expected)})
			if err != nil {
				t.Fatal(err)
			}
			if out.Match != tt.match || out.Message != tt.message {
				t.Errorf("Compare() = %+v, want match=%v message=%q", out, tt.match, tt.message)
			}
		})
	}
}

func TestExact(t *testing.T) {
	tests := []struct {
		produced string
		expected string
		match    bool
		message  string
	}{
		{"abc", "abc", true, ""},
		{"abc\n", "abc", false, "output differs at byte 3"},
		{"abd", "abc", false, "output differs at byte 2"},
		{"", "a", false, "output differs at byte 0"},
	}
	for _, tt := range tests {
		out, err := Exact{}.Compare(context.Background(), Comparison{Produced: []byte(tt.produced), Expected: []byte(tt.expected)})
		if err != nil {
			t.Fatal(err)
		}
		if out.Match != tt.match || out.Message != tt.message {
			t.Errorf("Compare(%q, %q) = %+v", tt.produced, tt.expected, out)
		}
	}
}

func TestBackoff(t *testing.T) {
	base := 10 * time.Millisecond
	tests := []struct {
		n     int
		base  time.Duration
		limit time.Duration
		want  time.Duration
	}{
		{0, base, time.Second, base},
		{1, base, time.Second, 20 * time.Millisecond},
		{3, base, time.Second, 80 * time.Millisecond},
		{10, base, time.Second, time.Second},
		{2, base, 0, 40 * time.Millisecond},
		{0, 2 * time.Second, time.Second, time.Second},
		{5, 0, time.Second, 0},
	}
	for _, tt := range tests {
		if got := Backoff(tt.n, tt.base, tt.limit); got != tt.want {
			t.Errorf("Backoff(%d, %v, %v) = %v, want %v", tt.n, tt.base, tt.limit, got, tt.want)
		}
	}
}
