package rlimit

import (
	"reflect"
	"syscall"
	"testing"
	"time"
)

func TestPrepareRLimit(t *testing.T) {
	tests := []struct {
		name string
		rl   RLimits
		want []RLimit
	}{
		{name: "unlimited", rl: RLimits{}, want: nil},
		{
			name: "cpu hard raised to soft",
			rl:   RLimits{CPU: 3, CPUHard: 1},
			want: []RLimit{{syscall.RLIMIT_CPU, syscall.Rlimit{Cur: 3, Max: 3}}},
		},
		{
			name: "judge ceilings",
			rl:   RLimits{CPU: 1, CPUHard: 2, FileSize: 1 << 20, Stack: 8 << 20, OpenFile: 16, Process: 1, DisableCore: true},
			want: []RLimit{
				{syscall.RLIMIT_CPU, syscall.Rlimit{Cur: 1, Max: 2}},
				{syscall.RLIMIT_FSIZE, syscall.Rlimit{Cur: 1 << 20, Max: 1 << 20}},
				{syscall.RLIMIT_STACK, syscall.Rlimit{Cur: 8 << 20, Max: 8 << 20}},
				{syscall.RLIMIT_NOFILE, syscall.Rlimit{Cur: 16, Max: 16}},
				{rlimitNproc, syscall.Rlimit{Cur: 1, Max: 1}},
				{syscall.RLIMIT_CORE, syscall.Rlimit{}},
			},
		},
		{
			name: "address space",
			rl:   RLimits{AddressSpace: 512 << 20},
			want: []RLimit{{syscall.RLIMIT_AS, syscall.Rlimit{Cur: 512 << 20, Max: 512 << 20}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rl.PrepareRLimit(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PrepareRLimit() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	rl := RLimits{CPU: 1, CPUHard: 2, FileSize: 2048, Stack: 3 << 20, OpenFile: 16, Process: 2, DisableCore: true}
	want := "RLimits[CPU[1 s:2 s],File[2.0 KiB:2.0 KiB],Stack[3.0 MiB:3.0 MiB],OpenFile[16:16],Process[2:2],Core[0 B:0 B]]"
	if got := rl.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (RLimits{}).String(); got != "RLimits[]" {
		t.Errorf("String() = %q", got)
	}
	if got := (RLimit{Res: syscall.RLIMIT_DATA, Rlim: syscall.Rlimit{Cur: 1, Max: 2}}).String(); got != "RLimit(2)[1:2]" {
		t.Errorf("String() = %q", got)
	}
}

func TestCPUSeconds(t *testing.T) {
	tests := []struct {
		in         time.Duration
		soft, hard uint64
	}{
		{0, 0, 0},
		{-time.Second, 0, 0},
		{time.Second, 1, 2},
		{1500 * time.Millisecond, 2, 3},
		{time.Millisecond, 1, 2},
	}
	for _, tt := range tests {
		soft, hard := CPUSeconds(tt.in)
		if soft != tt.soft || hard != tt.hard {
			t.Errorf("CPUSeconds(%v) = %d, %d, want %d, %d", tt.in, soft, hard, tt.soft, tt.hard)
		}
	}
}
