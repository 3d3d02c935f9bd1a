package libseccomp

import (
	"encoding/binary"
	"strings"
	"syscall"
	"testing"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"

	"github.com/judgecore/sandbox/pkg/seccomp"
)

var (
	defaultSyscallAllows = []string{
		"read", "write", "readv", "writev", "close", "fstat", "lseek", "dup", "dup3", "ioctl", "fcntl",
		"mmap", "mprotect", "munmap", "brk", "mremap", "msync", "mincore", "madvise",
		"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "rt_sigpending", "sigaltstack",
		"getcwd", "exit", "exit_group",
		"gettimeofday", "getrusage", "times", "clock_gettime", "restart_syscall",
	}

	defaultSyscallTraces = []string{
		"execve", "openat", "unlinkat", "readlinkat", "faccessat",
	}
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		wantErr string
	}{
		{
			name: "record",
			builder: Builder{
				Allow:   defaultSyscallAllows,
				Trace:   defaultSyscallTraces,
				Default: seccomp.ActionTrace.WithReturnCode(seccomp.MsgDisallow),
			},
		},
		{
			name: "kill",
			builder: Builder{
				Allow:   append([]string{"execve"}, defaultSyscallAllows...),
				Default: seccomp.ActionKill,
			},
		},
		{
			name: "deny list",
			builder: Builder{
				Deny:       []string{"connect", "socket"},
				DenyAction: seccomp.ActionKill,
				Default:    seccomp.ActionAllow,
			},
		},
		{
			name: "overlap",
			builder: Builder{
				Allow:   []string{"read", "execve"},
				Trace:   []string{"execve"},
				Default: seccomp.ActionKill,
			},
		},
		{
			name:    "allow all",
			builder: Builder{Default: seccomp.ActionAllow},
		},
		{
			name:    "unknown syscall",
			builder: Builder{Allow: []string{"no_such_syscall"}, Default: seccomp.ActionKill},
			wantErr: "assemble",
		},
		{
			name:    "no default",
			builder: Builder{Allow: []string{"read"}},
			wantErr: "default action",
		},
		{
			name:    "no deny action",
			builder: Builder{Deny: []string{"read"}, Default: seccomp.ActionAllow},
			wantErr: "deny action",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.builder.Build()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Build() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(f) == 0 {
				t.Fatal("empty filter")
			}
			if f.SockFprog().Len != uint16(len(f)) {
				t.Error("program length mismatch")
			}
		})
	}
}

// run evaluates f for the syscall nr on the native architecture. The bpf VM
// loads words big endian, so seccomp_data is encoded that way here
func run(t *testing.T, f seccomp.Filter, nr int, auditArch uint32) uint32 {
	t.Helper()
	insts := make([]bpf.Instruction, len(f))
	for i, s := range f {
		insts[i] = bpf.RawInstruction{Op: s.Code, Jt: s.Jt, Jf: s.Jf, K: s.K}.Disassemble()
	}
	vm, err := bpf.NewVM(insts)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, 64)
	binary.BigEndian.PutUint32(data[offsetNr:], uint32(nr))
	binary.BigEndian.PutUint32(data[offsetArch:], auditArch)
	ret, err := vm.Run(data)
	if err != nil {
		t.Fatal(err)
	}
	return uint32(ret)
}

func TestBuildActions(t *testing.T) {
	if errInfo != nil {
		t.Skip(errInfo)
	}
	var (
		native      = uint32(info.ID)
		allow       = uint32(libseccomp.ActionAllow)
		kill        = uint32(libseccomp.ActionKillProcess)
		traceHandle = uint32(libseccomp.ActionTrace) | uint32(seccomp.MsgHandle)
		traceDeny   = uint32(libseccomp.ActionTrace) | uint32(seccomp.MsgDisallow)
	)
	nr := func(n string) int { return info.SyscallNames[n] }

	record := Builder{
		Allow:   []string{"read", "write", "exit_group"},
		Trace:   []string{"execve"},
		Default: seccomp.ActionTrace.WithReturnCode(seccomp.MsgDisallow),
	}
	deny := Builder{
		Deny:       []string{"socket", "connect"},
		DenyAction: seccomp.ActionKill,
		Default:    seccomp.ActionAllow,
	}
	errno := Builder{
		Deny:       []string{"socket"},
		DenyAction: seccomp.ActionErrno,
		Default:    seccomp.ActionAllow,
	}
	tests := []struct {
		name    string
		builder Builder
		nr      int
		arch    uint32
		want    uint32
	}{
		{"record allow first list", record, nr("read"), native, allow},
		{"record allow last list", record, nr("exit_group"), native, allow},
		{"record trace", record, nr("execve"), native, traceHandle},
		{"record default", record, nr("socket"), native, traceDeny},
		{"deny listed", deny, nr("connect"), native, kill},
		{"deny default", deny, nr("read"), native, allow},
		{"errno defaults to EPERM", errno, nr("socket"), native, uint32(libseccomp.ActionErrno) | uint32(syscall.EPERM)},
		{"allow all", Builder{Default: seccomp.ActionAllow}, nr("connect"), native, allow},
		{"foreign arch", Builder{Default: seccomp.ActionAllow}, nr("read"), native ^ 1, kill},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := tt.builder.Build()
			if err != nil {
				t.Fatal(err)
			}
			if got := run(t, f, tt.nr, tt.arch); got != tt.want {
				t.Errorf("filter returned %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestToSyscallName(t *testing.T) {
	n, err := ToSyscallName(uint(syscall.SYS_READ))
	if err != nil {
		t.Fatal(err)
	}
	if n != "read" {
		t.Errorf("ToSyscallName(SYS_READ) = %q, want read", n)
	}
	if _, err := ToSyscallName(1 << 20); err == nil {
		t.Error("expected error for unknown syscall number")
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		in       []string
		contains []string
		wantErr  bool
	}{
		{name: "exact", in: []string{"read", "write", "read"}, contains: []string{"read", "write"}},
		{name: "pattern", in: []string{"epoll_*"}, contains: []string{"epoll_ctl", "epoll_pwait"}},
		{name: "preset", in: []string{"@default"}, contains: []string{"read", "exit_group", "mmap"}},
		{name: "dynamic preset", in: []string{"@dynamic"}, contains: []string{"openat", "read"}},
		{name: "unknown", in: []string{"no_such_syscall"}, wantErr: true},
		{name: "empty match", in: []string{"zz*"}, wantErr: true},
		{name: "bad pattern", in: []string{"[a"}, wantErr: true},
		{name: "unknown preset", in: []string{"@nothing"}, wantErr: true},
		{name: "blank", in: []string{" "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expand(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			set := make(map[string]int)
			for _, n := range got {
				set[n]++
			}
			for _, n := range tt.contains {
				if set[n] != 1 {
					t.Errorf("Expand(%v) should contain %q exactly once, got %v", tt.in, n, got)
				}
			}
		})
	}
}

// BenchmarkBuildDefaultFilter measures the cost of compiling a typical policy
func BenchmarkBuildDefaultFilter(b *testing.B) {
	for i := 0; i < b.N; i++ {
		builder := Builder{
			Allow:   defaultSyscallAllows,
			Trace:   defaultSyscallTraces,
			Default: seccomp.ActionTrace.WithReturnCode(seccomp.MsgDisallow),
		}
		builder.Build()
	}
}
