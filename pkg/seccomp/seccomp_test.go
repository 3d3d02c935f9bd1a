package seccomp

import (
	"syscall"
	"testing"
)

func TestActionReturnCode(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		base   Action
		code   int16
		str    string
	}{
		{"allow", ActionAllow, ActionAllow, 0, "allow"},
		{"trace disallow", ActionTrace.WithReturnCode(MsgDisallow), ActionTrace, MsgDisallow, "trace(1)"},
		{"trace handle", ActionTrace.WithReturnCode(MsgHandle), ActionTrace, MsgHandle, "trace(2)"},
		{"errno", ActionErrno.WithReturnCode(int16(syscall.EPERM)), ActionErrno, int16(syscall.EPERM), "errno(1)"},
		{"rewrite code", ActionKill.WithReturnCode(3).WithReturnCode(4), ActionKill, 4, "kill(4)"},
		{"invalid", Action(0), Action(0), 0, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.action.Action(); got != tt.base {
				t.Errorf("Action() = %d, want %d", got, tt.base)
			}
			if got := tt.action.ReturnCode(); got != tt.code {
				t.Errorf("ReturnCode() = %d, want %d", got, tt.code)
			}
			if got := tt.action.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestFilterSockFprog(t *testing.T) {
	if Filter(nil).SockFprog() != nil {
		t.Error("empty filter should not produce a program")
	}
	f := Filter{
		{Code: 0x20, K: 4},
		{Code: 0x06, K: 0x7fff0000},
	}
	prog := f.SockFprog()
	if prog.Len != 2 {
		t.Fatalf("Len = %d, want 2", prog.Len)
	}
	if prog.Filter != &f[0] {
		t.Error("program should reference the filter memory")
	}
}
