package policy

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/judgecore/sandbox/pkg/rlimit"
	"github.com/judgecore/sandbox/pkg/seccomp"
	"github.com/judgecore/sandbox/pkg/seccomp/libseccomp"
	"github.com/judgecore/sandbox/runner"
)

// minimal operations the runner needs between loading the filter and the
// target program taking over
var bootstrapOps = []string{"execve", "exit", "exit_group"}

const minOpenFiles = 3

// Policy is a validated, immutable sandbox policy
type Policy struct {
	raw    Spec
	spec   Spec
	filter seccomp.Filter
	limits rlimit.RLimits
}

// Build validates s and compiles its operation filter
func Build(s Spec) (*Policy, error) {
	raw := Merge(Spec{}, s)
	n := raw
	if n.Violation == "" {
		n.Violation = ViolationRecord
	}
	if err := validate(&n); err != nil {
		return nil, err
	}
	if n.WallTime == 0 && n.CPUTime > 0 {
		n.WallTime = n.CPUTime + DefaultWallTimeExtra
	}

	filter, err := buildFilter(&n)
	if err != nil {
		return nil, err
	}

	cpu, cpuHard := rlimit.CPUSeconds(n.CPUTime)
	return &Policy{
		raw:    raw,
		spec:   n,
		filter: filter,
		limits: rlimit.RLimits{
			CPU:          cpu,
			CPUHard:      cpuHard,
			FileSize:     uint64(n.Output),
			Stack:        uint64(n.Stack),
			AddressSpace: uint64(n.AddressSpace),
			OpenFile:     n.OpenFiles,
			Process:      n.Processes,
			DisableCore:  true,
		},
	}, nil
}

// MustBuild is Build for policies known to be valid. It panics on error
func MustBuild(s Spec) *Policy {
	p, err := Build(s)
	if err != nil {
		panic(err)
	}
	return p
}

func validate(s *Spec) error {
	if s.CPUTime < 0 {
		return configError("cpuTime", "negative duration %v", s.CPUTime)
	}
	if s.WallTime < 0 {
		return configError("wallTime", "negative duration %v", s.WallTime)
	}
	if s.WallTime > 0 && s.CPUTime > s.WallTime {
		return configError("wallTime", "%v is shorter than cpuTime %v", s.WallTime, s.CPUTime)
	}
	if s.OpenFiles != 0 && s.OpenFiles < minOpenFiles {
		return configError("openFiles", "%d leaves no room for standard streams", s.OpenFiles)
	}
	switch s.Violation {
	case ViolationRecord, ViolationKill:
	default:
		return configError("violationMode", "unknown mode %q", s.Violation)
	}
	if s.defaultAllow() && len(s.Allow) > 0 {
		return configError("allow", "allow list given with defaultAllow")
	}
	if !s.defaultAllow() && len(s.Deny) > 0 {
		return configError("deny", "deny list requires defaultAllow")
	}
	return nil
}

func buildFilter(s *Spec) (seccomp.Filter, error) {
	var (
		b   libseccomp.Builder
		err error
	)
	if s.defaultAllow() {
		b.Default = seccomp.ActionAllow
		if b.Deny, err = libseccomp.Expand(s.Deny); err != nil {
			return nil, &ConfigError{Field: "deny", Err: err}
		}
		for _, op := range bootstrapOps[1:] {
			if slices.Contains(b.Deny, op) {
				return nil, configError("deny", "%s is required to terminate", op)
			}
		}
		if i := slices.Index(b.Deny, "execve"); i >= 0 {
			if s.Violation == ViolationKill {
				return nil, configError("deny", "execve can only be denied in record mode")
			}
			// the first execve loads the target program
			b.Deny = slices.Delete(b.Deny, i, i+1)
			b.Trace = []string{"execve"}
		}
		b.DenyAction = seccomp.ActionKill
		if s.Violation == ViolationRecord {
			b.DenyAction = seccomp.ActionTrace.WithReturnCode(seccomp.MsgDisallow)
		}
	} else {
		allow, err := libseccomp.Expand(s.Allow)
		if err != nil {
			return nil, &ConfigError{Field: "allow", Err: err}
		}
		b.Allow = append(slices.Clone(bootstrapOps[1:]), allow...)
		switch s.Violation {
		case ViolationKill:
			b.Allow = append(b.Allow, "execve")
			b.Default = seccomp.ActionKill
		case ViolationRecord:
			if !slices.Contains(allow, "execve") {
				b.Trace = []string{"execve"}
			}
			b.Default = seccomp.ActionTrace.WithReturnCode(seccomp.MsgDisallow)
		}
	}

	f, err := b.Build()
	if err != nil {
		return nil, &ConfigError{Field: "allow", Err: err}
	}
	return f, nil
}

// Override returns the policy with the fields set in o replacing its own.
// A nil override returns p itself
func (p *Policy) Override(o *Spec) (*Policy, error) {
	if o == nil {
		return p, nil
	}
	return Build(Merge(p.raw, *o))
}

// CPUTime is the CPU time ceiling, 0 if unlimited
func (p *Policy) CPUTime() time.Duration { return p.spec.CPUTime }

// WallTime is the wall clock ceiling, 0 if unlimited
func (p *Policy) WallTime() time.Duration { return p.spec.WallTime }

// Memory is the peak memory ceiling, 0 if unlimited
func (p *Policy) Memory() runner.Size { return p.spec.Memory }

// Output is the output size ceiling, 0 if unlimited
func (p *Policy) Output() runner.Size { return p.spec.Output }

// Processes is the process / thread count ceiling, 0 if unlimited
func (p *Policy) Processes() uint64 { return p.spec.Processes }

// OpenFiles is the open file ceiling, 0 if unlimited
func (p *Policy) OpenFiles() uint64 { return p.spec.OpenFiles }

// Violation is the violation mode
func (p *Policy) Violation() ViolationMode { return p.spec.Violation }

// Spec returns the normalized spec, with defaults filled in
func (p *Policy) Spec() Spec { return Merge(Spec{}, p.spec) }

// Filter returns the compiled operation filter. It must not be modified
func (p *Policy) Filter() seccomp.Filter { return p.filter }

// RLimits returns a fresh copy of the resource ceilings for the child
func (p *Policy) RLimits() []rlimit.RLimit {
	l := p.limits
	return l.PrepareRLimit()
}

// Limits returns the resource ceilings as rlimit values
func (p *Policy) Limits() rlimit.RLimits { return p.limits }

func (p *Policy) String() string {
	return fmt.Sprintf("Policy[cpu=%v wall=%v mem=%v out=%v proc=%d files=%d mode=%s filter=%d]",
		p.spec.CPUTime, p.spec.WallTime, p.spec.Memory, p.spec.Output,
		p.spec.Processes, p.spec.OpenFiles, p.spec.Violation, len(p.filter))
}

// IsConfigError reports whether err is a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
