package ptracer

import "testing"

func TestParseSyscall(t *testing.T) {
	tests := []struct {
		content string
		want    uint
		wantErr bool
	}{
		{"231 0x0 0x0 0x0 0x0 0x0 0x0 0x7ffd 0x7f12\n", 231, false},
		{"59 0x55d 0x55e 0x55f 0x0 0x0 0x0 0x7ffd 0x7f12\n", 59, false},
		{"running\n", 0, true},
		{"-1 0x7ffd 0x7f12\n", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseSyscall([]byte(tt.content))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSyscall(%q) error = %v, wantErr %v", tt.content, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSyscall(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
