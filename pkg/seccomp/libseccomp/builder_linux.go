package libseccomp

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"github.com/elastic/go-seccomp-bpf/arch"
	"golang.org/x/net/bpf"

	"github.com/judgecore/sandbox/pkg/seccomp"
)

// offsets into struct seccomp_data
const (
	offsetNr   = 0
	offsetArch = 4
)

// kernel limit BPF_MAXINSNS
const maxInstructions = 4096

// Builder is used to build the filter
//
// Allow lists syscalls that pass through, Trace lists syscalls reported to
// the tracer with MsgHandle, Deny lists syscalls that take DenyAction.
// Every other syscall takes Default.
type Builder struct {
	Allow, Trace, Deny []string
	Default            seccomp.Action
	DenyAction         seccomp.Action
}

type rule struct {
	nr     uint32
	action uint32
}

var actTrace = seccomp.ActionTrace.WithReturnCode(seccomp.MsgHandle)

// Build builds the filter
func (b *Builder) Build() (seccomp.Filter, error) {
	if b.Default.Action() == 0 {
		return nil, fmt.Errorf("seccomp: default action is not set")
	}
	if len(b.Deny) > 0 && b.DenyAction.Action() == 0 {
		return nil, fmt.Errorf("seccomp: deny action is not set")
	}
	if errInfo != nil {
		return nil, fmt.Errorf("seccomp: %w", errInfo)
	}

	// a syscall takes the first list that names it
	var rules []rule
	seen := make(map[string]bool)
	add := func(names []string, action seccomp.Action) error {
		ret := ToSeccompAction(action)
		for _, n := range names {
			if seen[n] {
				continue
			}
			nr, ok := info.SyscallNames[n]
			if !ok {
				return fmt.Errorf("seccomp: assemble: unknown syscall %q for %s", n, info.Name)
			}
			seen[n] = true
			rules = append(rules, rule{nr: uint32(nr | info.SeccompMask), action: ret})
		}
		return nil
	}
	if err := add(b.Deny, b.DenyAction); err != nil {
		return nil, err
	}
	if err := add(b.Allow, seccomp.ActionAllow); err != nil {
		return nil, err
	}
	if err := add(b.Trace, actTrace); err != nil {
		return nil, err
	}
	return ExportBPF(assemble(info, rules, ToSeccompAction(b.Default)))
}

// assemble lays the rules out as a linear program: foreign architectures
// are killed, x32 calls on x86_64 get ENOSYS, every rule is a compare and
// return pair, and the default action closes the program
func assemble(a *arch.Info, rules []rule, def uint32) []bpf.Instruction {
	killProcess := uint32(libseccomp.ActionKillProcess)
	insts := []bpf.Instruction{
		bpf.LoadAbsolute{Off: offsetArch, Size: 4},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(a.ID), SkipTrue: 1},
		bpf.RetConstant{Val: killProcess},
		bpf.LoadAbsolute{Off: offsetNr, Size: 4},
	}
	if a.ID == arch.X86_64.ID {
		insts = append(insts,
			bpf.JumpIf{Cond: bpf.JumpGreaterOrEqual, Val: uint32(arch.X32.SeccompMask), SkipFalse: 1},
			bpf.RetConstant{Val: uint32(libseccomp.ActionErrno) | uint32(syscall.ENOSYS)},
		)
	}
	for _, r := range rules {
		insts = append(insts,
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: r.nr, SkipFalse: 1},
			bpf.RetConstant{Val: r.action},
		)
	}
	return append(insts, bpf.RetConstant{Val: def})
}

// ExportBPF convert BPF instructions to kernel readable filter
func ExportBPF(insts []bpf.Instruction) (seccomp.Filter, error) {
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: bpf: %w", err)
	}
	if len(raw) == 0 || len(raw) > maxInstructions {
		return nil, fmt.Errorf("seccomp: filter length %d out of range", len(raw))
	}
	f := make(seccomp.Filter, len(raw))
	for i, r := range raw {
		f[i] = syscall.SockFilter{
			Code: r.Op,
			Jt:   r.Jt,
			Jf:   r.Jf,
			K:    r.K,
		}
	}
	return f, nil
}
