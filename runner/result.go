package runner

import (
	"fmt"
	"syscall"
	"time"
)

// Result is the execution result, produced exactly once per request
type Result struct {
	Kind     TerminationKind
	ExitCode int            // valid when Kind is TerminationExited
	Signal   syscall.Signal // valid when Kind is TerminationSignaled

	// ViolatedOperation is the syscall name when the filter fired in record
	// mode, empty when unknown (kill mode)
	ViolatedOperation string

	// KillReason is set when the monitor side killed the child
	KillReason KillReason

	// OOMKilled is set when the platform memory controller killed the tree
	OOMKilled bool

	Usage Usage

	// metrics for the executor
	SetUpTime   time.Duration
	RunningTime time.Duration
}

func (r Result) String() string {
	switch r.Kind {
	case TerminationExited:
		return fmt.Sprintf("Result[Exited(%d)][%v][%v %v]", r.ExitCode, r.Usage, r.SetUpTime, r.RunningTime)

	case TerminationSignaled:
		return fmt.Sprintf("Result[Signaled(%v)][%v][%v %v]", r.Signal, r.Usage, r.SetUpTime, r.RunningTime)

	case TerminationKilledByWatchdog:
		return fmt.Sprintf("Result[KilledByWatchdog(%v)][%v][%v %v]", r.KillReason, r.Usage, r.SetUpTime, r.RunningTime)

	case TerminationKilledByFilter:
		op := r.ViolatedOperation
		if op == "" {
			op = "unknown"
		}
		return fmt.Sprintf("Result[KilledByFilter(%s)][%v][%v %v]", op, r.Usage, r.SetUpTime, r.RunningTime)

	default:
		return fmt.Sprintf("Result[%v][%v][%v %v]", r.Kind, r.Usage, r.SetUpTime, r.RunningTime)
	}
}
