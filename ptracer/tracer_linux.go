package ptracer

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/judgecore/sandbox/pkg/forkexec"
	"github.com/judgecore/sandbox/pkg/seccomp"
	"github.com/judgecore/sandbox/pkg/seccomp/libseccomp"
	"github.com/judgecore/sandbox/pkg/watchdog"
	"github.com/judgecore/sandbox/runner"
)

const ptraceFlags = unix.PTRACE_O_TRACESECCOMP | unix.PTRACE_O_EXITKILL | unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACECLONE | unix.PTRACE_O_TRACEEXEC | unix.PTRACE_O_TRACEVFORK | unix.PTRACE_O_TRACEEXIT

type traceState struct {
	*Tracer
	pid    int
	group  Group
	traced map[int]bool
	result Result
}

// Trace traces the process tree of pid until the leader terminated. pid must
// be the leader of its process group and stopped itself before loading the
// filter
func (t *Tracer) Trace(pid int, g Group) (Result, error) {
	s := &traceState{
		Tracer: t,
		pid:    pid,
		group:  g,
		traced: make(map[int]bool),
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	defer collectZombie(pid)

	for {
		// the leader must have called setsid before it stopped, but its
		// children only join the process group once traced
		idtype, id := unix.P_PID, pid
		if s.result.Execved {
			idtype = unix.P_PGID
		}
		info, err := forkexec.WaitID(idtype, id, unix.WEXITED|unix.WSTOPPED|unix.WNOWAIT|unix.WALL)
		if err != nil {
			g.Release()
			return s.result, fmt.Errorf("ptracer: waitid: %w", err)
		}
		wpid := int(info.Pid)
		if wpid == 0 {
			continue
		}

		if wpid == pid && info.Terminated() {
			g.Release()
			ws, ru, err := forkexec.Reap(pid, unix.WALL)
			if err != nil {
				return s.result, fmt.Errorf("ptracer: wait4: %w", err)
			}
			s.result.Status, s.result.Rusage = ws, ru
			s.Logger.Debug("leader terminated", zap.Int("pid", pid), zap.Stringer("status", waitStatus(ws)))
			return s.result, nil
		}

		ws, _, err := forkexec.Reap(wpid, unix.WALL)
		if err != nil {
			g.Release()
			return s.result, fmt.Errorf("ptracer: wait4: %w", err)
		}
		if err := s.handle(wpid, ws); err != nil {
			g.Terminate()
			g.Release()
			forkexec.Reap(pid, unix.WALL)
			return s.result, err
		}
	}
}

func (s *traceState) handle(pid int, ws unix.WaitStatus) error {
	switch {
	case ws.Exited(), ws.Signaled():
		delete(s.traced, pid)
		return nil

	case !ws.Stopped():
		return nil
	}

	// set option if the process is newly forked
	if !s.traced[pid] {
		s.traced[pid] = true
		if err := unix.PtraceSetOptions(pid, ptraceFlags); err != nil {
			return fmt.Errorf("ptracer: set options for %d: %w", pid, err)
		}
	}

	stopSig := ws.StopSignal()
	if stopSig != unix.SIGTRAP {
		// group stop of the bootstrap SIGSTOP is swallowed, every other
		// signal is delivered
		if stopSig == unix.SIGSTOP {
			stopSig = 0
		}
		unix.PtraceCont(pid, int(stopSig))
		return nil
	}

	switch cause := ws.TrapCause(); cause {
	case unix.PTRACE_EVENT_SECCOMP:
		if s.handleSeccomp(pid) {
			// keep the violating process stopped until it is killed
			return nil
		}

	case unix.PTRACE_EVENT_EXEC:
		if !s.result.Execved && pid == s.pid {
			s.result.Execved = true
			s.result.ExecTime = time.Now()
			s.group.Execed()
		}

	case unix.PTRACE_EVENT_EXIT:
		// the address space of the target program is still attached here
		if s.result.Execved && pid == s.pid {
			if m, err := watchdog.ProcMemory(pid)(); err == nil {
				s.result.PeakMemory = runner.Known(m)
			} else {
				s.Logger.Debug("read peak memory failed", zap.Int("pid", pid), zap.Error(err))
			}
		}

	case unix.PTRACE_EVENT_CLONE, unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK:
		s.Logger.Debug("tracee forked", zap.Int("pid", pid))

	default:
		s.Logger.Debug("unexpected trap cause", zap.Int("pid", pid), zap.Int("cause", cause))
	}
	unix.PtraceCont(pid, 0)
	return nil
}

// handleSeccomp returns true if the trapped syscall is a violation
func (s *traceState) handleSeccomp(pid int) bool {
	msg, err := unix.PtraceGetEventMsg(pid)
	if err != nil {
		s.Logger.Warn("PtraceGetEventMsg failed", zap.Int("pid", pid), zap.Error(err))
		return false
	}

	// the runner itself until the target program is loaded: the bootstrap
	// execve and its error reporting
	if !s.result.Execved && pid == s.pid {
		return false
	}

	var name string
	switch int16(msg) {
	case seccomp.MsgHandle:
		name = s.syscallName(pid, "execve")

	case seccomp.MsgDisallow:
		name = s.syscallName(pid, "unknown")

	default:
		s.Logger.Warn("unknown seccomp trap message", zap.Int("pid", pid), zap.Uint("msg", msg))
		return false
	}

	s.Logger.Debug("restricted operation", zap.Int("pid", pid), zap.String("syscall", name))
	if s.result.Violation == "" {
		s.result.Violation = name
	}
	s.group.Terminate()
	return true
}

func (s *traceState) syscallName(pid int, fallback string) string {
	no, err := syscallNumber(pid)
	if err != nil {
		s.Logger.Debug("read syscall number failed", zap.Int("pid", pid), zap.Error(err))
		return fallback
	}
	name, err := libseccomp.ToSyscallName(no)
	if err != nil {
		return fmt.Sprintf("syscall_%d", no)
	}
	return name
}

// collect died child processes
func collectZombie(pgid int) {
	var wstatus unix.WaitStatus
	for {
		wpid, err := unix.Wait4(-pgid, &wstatus, unix.WALL|unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || wpid <= 0 {
			return
		}
	}
}

type waitStatus unix.WaitStatus

func (w waitStatus) String() string {
	ws := unix.WaitStatus(w)
	switch {
	case ws.Exited():
		return fmt.Sprintf("exited(%d)", ws.ExitStatus())
	case ws.Signaled():
		return fmt.Sprintf("signaled(%v)", ws.Signal())
	case ws.Stopped():
		return fmt.Sprintf("stopped(%v)", ws.StopSignal())
	}
	return fmt.Sprintf("status(%#x)", uint32(ws))
}
