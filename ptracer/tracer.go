// Package ptracer follows a process tree started in ptrace mode and records
// the first restricted operation reported by the syscall filter.
//
// The filter marks restricted syscalls with MsgDisallow and the syscalls
// that are only allowed once (execve) with MsgHandle. Traps of the leader
// before its exec event come from the runner bootstrap and are allowed.
package ptracer

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/judgecore/sandbox/runner"
)

// Group is the traced process group. Terminate kills every member and is a
// no-op after Release. Release is called once the leader terminated and
// before it is reaped, so that the leader pid is never signalled after
// it could be reused. Execed is called when the leader loaded the target
// program
type Group interface {
	Terminate()
	Release()
	Execed()
}

// Tracer traces one process group. It must be used by the same locked OS
// thread that started the tracee
type Tracer struct {
	Logger *zap.Logger
}

// Result is the outcome of a traced run
type Result struct {
	// Status and Rusage of the group leader
	Status unix.WaitStatus
	Rusage unix.Rusage

	// Violation is the name of the first restricted operation, empty if
	// none was attempted
	Violation string

	// Execved is set when the leader completed its bootstrap execve
	Execved  bool
	ExecTime time.Time

	// PeakMemory is the VmHWM of the leader read at its exit event. Unknown
	// when the leader was killed, since SIGKILL skips the event
	PeakMemory runner.Metric[runner.Size]
}
