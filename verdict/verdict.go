// Package verdict classifies the outcome of a run. Classification is a pure
// function of the execution result and the policy it ran under, with a fixed
// priority:
//
//	SystemError > RestrictedOperation > MemoryLimitExceeded >
//	TimeLimitExceeded > OutputLimitExceeded > RuntimeError > Accepted
//
// WrongOutput is only decided by the caller after comparing the output of
// an Accepted run.
package verdict

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
)

// Verdict is the final result of one test case
type Verdict struct {
	Category          Category             `json:"category"`
	CPUTimeMs         runner.Metric[int64] `json:"cpuTimeMs"`
	WallTimeMs        runner.Metric[int64] `json:"wallTimeMs"`
	MemoryKB          runner.Metric[int64] `json:"memoryKB"`
	ExitCode          *int                 `json:"exitCode,omitempty"`
	Signal            *int                 `json:"signal,omitempty"`
	ViolatedOperation string               `json:"violatedOperation,omitempty"`
	Message           string               `json:"message,omitempty"`

	// Conflicts lists the other categories whose conditions also held,
	// e.g. TimeLimitExceeded when MemoryLimitExceeded won
	Conflicts []Category `json:"conflicts,omitempty"`

	Usage runner.Usage `json:"-"`
}

// Classify maps an execution result to a verdict
func Classify(r runner.Result, p *policy.Policy) Verdict {
	v := fromUsage(r.Usage)
	switch r.Kind {
	case runner.TerminationExited:
		code := r.ExitCode
		v.ExitCode = &code
	case runner.TerminationSignaled:
		sig := int(r.Signal)
		v.Signal = &sig
	case runner.TerminationInvalid:
		v.Category = SystemError
		v.Message = joinMessage("termination status unavailable", unknownMessage(r.Usage))
		return v
	}
	v.ViolatedOperation = r.ViolatedOperation

	var breached []Category
	if r.Kind == runner.TerminationKilledByFilter {
		breached = append(breached, RestrictedOperation)
	}
	if memoryExceeded(r, p) {
		breached = append(breached, MemoryLimitExceeded)
	}
	if timeExceeded(r, p) {
		breached = append(breached, TimeLimitExceeded)
	}
	if outputExceeded(r, p) {
		breached = append(breached, OutputLimitExceeded)
	}

	var msg string
	switch {
	case len(breached) > 0:
		v.Category = breached[0]
		v.Conflicts = breached[1:]
		if v.Category == RestrictedOperation {
			op := r.ViolatedOperation
			if op == "" {
				op = "unknown"
			}
			msg = "restricted operation " + op
		}
	case r.Kind == runner.TerminationSignaled:
		v.Category = RuntimeError
		msg = "killed by signal " + r.Signal.String()
	case r.Kind == runner.TerminationExited && r.ExitCode != 0:
		v.Category = RuntimeError
		msg = fmt.Sprintf("exit code %d", r.ExitCode)
	case r.Kind == runner.TerminationKilledByWatchdog:
		v.Category = SystemError
		msg = "killed by watchdog: " + r.KillReason.String()
	default:
		v.Category = Accepted
	}
	if len(v.Conflicts) == 0 {
		v.Conflicts = nil
	}
	v.Message = joinMessage(msg, unknownMessage(r.Usage))
	return v
}

// System creates the verdict of a run that failed on the host side
func System(err error, u runner.Usage) Verdict {
	v := fromUsage(u)
	v.Category = SystemError
	v.Message = joinMessage(err.Error(), unknownMessage(u))
	return v
}

// Compared sets the comparison outcome on an Accepted verdict. Other
// verdicts are returned unchanged
func (v Verdict) Compared(match bool, message string) Verdict {
	if v.Category != Accepted {
		return v
	}
	if !match {
		v.Category = WrongOutput
	}
	v.Message = joinMessage(message, v.Message)
	return v
}

// HasConflict reports whether c was also breached
func (v Verdict) HasConflict(c Category) bool {
	for _, x := range v.Conflicts {
		if x == c {
			return true
		}
	}
	return false
}

func (v Verdict) String() string {
	return fmt.Sprintf("%v[cpu=%vms wall=%vms mem=%vKiB]", v.Category, v.CPUTimeMs, v.WallTimeMs, v.MemoryKB)
}

func memoryExceeded(r runner.Result, p *policy.Policy) bool {
	if r.OOMKilled {
		return true
	}
	if r.Kind == runner.TerminationKilledByWatchdog && r.KillReason == runner.KillMemory {
		return true
	}
	peak, ok := r.Usage.PeakMemory.Get()
	return ok && p.Memory() > 0 && peak > p.Memory()
}

func timeExceeded(r runner.Result, p *policy.Policy) bool {
	if r.Kind == runner.TerminationKilledByWatchdog && r.KillReason == runner.KillWallTime {
		return true
	}
	if r.Kind == runner.TerminationSignaled && r.Signal == syscall.SIGXCPU {
		return true
	}
	if cpu, ok := r.Usage.CPUTime.Get(); ok && p.CPUTime() > 0 && cpu > p.CPUTime() {
		return true
	}
	wall, ok := r.Usage.WallTime.Get()
	return ok && p.WallTime() > 0 && wall > p.WallTime()
}

func outputExceeded(r runner.Result, p *policy.Policy) bool {
	if r.Kind == runner.TerminationKilledByWatchdog && r.KillReason == runner.KillOutput {
		return true
	}
	if r.Kind == runner.TerminationSignaled && r.Signal == syscall.SIGXFSZ {
		return true
	}
	out, ok := r.Usage.OutputBytes.Get()
	return ok && p.Output() > 0 && out > p.Output()
}

func fromUsage(u runner.Usage) Verdict {
	var v Verdict
	v.Usage = u
	if t, ok := u.CPUTime.Get(); ok {
		v.CPUTimeMs = runner.Known(milliseconds(t))
	}
	if t, ok := u.WallTime.Get(); ok {
		v.WallTimeMs = runner.Known(milliseconds(t))
	}
	if m, ok := u.PeakMemory.Get(); ok {
		v.MemoryKB = runner.Known(int64(m.KiB()))
	}
	return v
}

func milliseconds(d time.Duration) int64 {
	return d.Milliseconds()
}

func unknownMessage(u runner.Usage) string {
	unknown := u.Unknown()
	if len(unknown) == 0 {
		return ""
	}
	return "unknown metrics: " + strings.Join(unknown, ", ")
}

func joinMessage(parts ...string) string {
	var ret []string
	for _, p := range parts {
		if p != "" {
			ret = append(ret, p)
		}
	}
	return strings.Join(ret, "; ")
}
