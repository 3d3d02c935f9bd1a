// Package policy defines the sandbox policy: resource ceilings and the
// operation filter applied to every run. A Spec is the editable form read
// from configuration; Build validates it into an immutable Policy that can
// be shared by concurrent sessions.
package policy

import (
	"fmt"
	"time"

	"github.com/judgecore/sandbox/runner"
)

// ViolationMode is what happens when the program invokes an operation
// outside the allow-set
type ViolationMode string

// Violation modes
const (
	// ViolationRecord traps the operation, records its name and then
	// terminates the program
	ViolationRecord ViolationMode = "record"
	// ViolationKill kills the program before the operation runs. The
	// operation name is not known
	ViolationKill ViolationMode = "kill"
)

// DefaultWallTimeExtra is added to the CPU time ceiling when no wall time
// ceiling is given
const DefaultWallTimeExtra = 2 * time.Second

// Spec is the editable form of a policy. Zero values mean unlimited
type Spec struct {
	CPUTime      time.Duration `yaml:"cpuTime" json:"cpuTime,omitempty"`
	WallTime     time.Duration `yaml:"wallTime" json:"wallTime,omitempty"`
	Memory       runner.Size   `yaml:"memory" json:"memory,omitempty"`
	Output       runner.Size   `yaml:"output" json:"output,omitempty"`
	Stack        runner.Size   `yaml:"stack" json:"stack,omitempty"`
	AddressSpace runner.Size   `yaml:"addressSpace" json:"addressSpace,omitempty"`
	Processes    uint64        `yaml:"processes" json:"processes,omitempty"`
	OpenFiles    uint64        `yaml:"openFiles" json:"openFiles,omitempty"`

	// Allow lists the permitted syscalls: exact names, glob patterns
	// ("epoll_*") and presets ("@default"). With DefaultAllow every syscall
	// but Deny is permitted instead
	Allow        []string      `yaml:"allow" json:"allow,omitempty"`
	Deny         []string      `yaml:"deny" json:"deny,omitempty"`
	DefaultAllow *bool         `yaml:"defaultAllow" json:"defaultAllow,omitempty"`
	Violation    ViolationMode `yaml:"violationMode" json:"violationMode,omitempty"`
}

// Merge returns base with every field set in override replacing it
func Merge(base, override Spec) Spec {
	ret := base
	if override.CPUTime != 0 {
		ret.CPUTime = override.CPUTime
	}
	if override.WallTime != 0 {
		ret.WallTime = override.WallTime
	}
	if override.Memory != 0 {
		ret.Memory = override.Memory
	}
	if override.Output != 0 {
		ret.Output = override.Output
	}
	if override.Stack != 0 {
		ret.Stack = override.Stack
	}
	if override.AddressSpace != 0 {
		ret.AddressSpace = override.AddressSpace
	}
	if override.Processes != 0 {
		ret.Processes = override.Processes
	}
	if override.OpenFiles != 0 {
		ret.OpenFiles = override.OpenFiles
	}
	if override.Allow != nil {
		ret.Allow = append([]string(nil), override.Allow...)
	}
	if override.Deny != nil {
		ret.Deny = append([]string(nil), override.Deny...)
	}
	if override.DefaultAllow != nil {
		v := *override.DefaultAllow
		ret.DefaultAllow = &v
	}
	if override.Violation != "" {
		ret.Violation = override.Violation
	}
	return ret
}

func (s *Spec) defaultAllow() bool {
	return s.DefaultAllow != nil && *s.DefaultAllow
}

func (s *Spec) String() string {
	return fmt.Sprintf("Spec[cpu=%v wall=%v mem=%v out=%v proc=%d files=%d mode=%s]",
		s.CPUTime, s.WallTime, s.Memory, s.Output, s.Processes, s.OpenFiles, s.Violation)
}
