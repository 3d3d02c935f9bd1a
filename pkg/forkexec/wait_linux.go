package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// si_code values of SIGCHLD
const (
	CLDExited    = 1
	CLDKilled    = 2
	CLDDumped    = 3
	CLDTrapped   = 4
	CLDStopped   = 5
	CLDContinued = 6
)

// Siginfo is the SIGCHLD layout of siginfo_t filled by waitid
type Siginfo struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Pid    int32
	UID    uint32
	Status int32
	_      [100]byte
}

// Terminated reports whether the waited process exited or was killed
func (s *Siginfo) Terminated() bool {
	switch s.Code {
	case CLDExited, CLDKilled, CLDDumped:
		return true
	}
	return false
}

// WaitID calls waitid(2) and retries on EINTR. With unix.WNOWAIT the
// process stays waitable, so its pid cannot be reused until it is reaped
func WaitID(idtype, id, options int) (Siginfo, error) {
	var info Siginfo
	for {
		_, _, errno := syscall.Syscall6(unix.SYS_WAITID, uintptr(idtype), uintptr(id),
			uintptr(unsafe.Pointer(&info)), uintptr(options), 0, 0)
		switch errno {
		case 0:
			return info, nil
		case syscall.EINTR:
			continue
		default:
			return info, errno
		}
	}
}

// Reap consumes the state change of pid with wait4 and returns its status
// and resource usage
func Reap(pid, options int) (unix.WaitStatus, unix.Rusage, error) {
	var (
		ws unix.WaitStatus
		ru unix.Rusage
	)
	_, err := unix.Wait4(pid, &ws, options, &ru)
	for err == unix.EINTR {
		_, err = unix.Wait4(pid, &ws, options, &ru)
	}
	return ws, ru, err
}
