package forkexec

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Start will fork, apply limits, load seccomp and execve, optionally being
// traced by ptrace. Return pid and potential error.
// The runtime OS thread must be locked before calling this function
// if ptrace is set to true
//
// On success, the child is in its own session and process group (pgid == pid).
// Without ptrace, Start returns after execve succeeded; with ptrace, Start
// returns once the child was acknowledged and the tracer must wait for the
// SIGSTOP before the filter is loaded.
func (r *Runner) Start() (int, error) {
	ep, err := r.prepareExec()
	if err != nil {
		return 0, err
	}

	// socketpair p used to notify child the uid / gid mapping have been setup
	// socketpair p is also used to sync with parent before final execve
	// p[0] is used by parent and p[1] is used by child
	p, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	// fork in child
	pid, err1 := forkAndExecInChild(r, ep, p)

	// restore all signals
	afterFork()
	syscall.ForkLock.Unlock()

	return syncWithChild(r, p, int(pid), err1)
}

func syncWithChild(r *Runner, p [2]int, pid int, err1 syscall.Errno) (int, error) {
	var (
		err2        syscall.Errno
		err         error
		unshareUser = r.CloneFlags&unix.CLONE_NEWUSER == unix.CLONE_NEWUSER
	)

	// sync with child
	unix.Close(p[1])

	// clone syscall failed
	if err1 != 0 {
		unix.Close(p[0])
		return 0, err1
	}

	// synchronize with child for uid / gid map
	if unshareUser {
		if err = writeIDMaps(r, pid); err != nil {
			if errno, ok := err.(syscall.Errno); ok {
				err2 = errno
			} else {
				err2 = syscall.EPERM
			}
		}
		syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&err2)), uintptr(unsafe.Sizeof(err2)))
	}

	// child reached the sync point with limits in force, or failed
	if err = readChildStatus(p[0], true); err != nil {
		goto fail
	}

	// if syncfunc return error, then fail child immediately
	if r.SyncFunc != nil {
		if err = r.SyncFunc(pid); err != nil {
			goto fail
		}
	}
	// otherwise, ack child (err1 == 0)
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(p[0]), uintptr(unsafe.Pointer(&err1)), uintptr(unsafe.Sizeof(err1)))

	// if stopped before execve by SIGSTOP, then do not wait until execve
	if r.Ptrace {
		// let's wait it in another goroutine to avoid blocking the tracer
		go func() {
			err := readChildStatus(p[0], false)
			unix.Close(p[0])
			if err != nil && r.SetupError != nil {
				select {
				case r.SetupError <- err:
				default:
				}
			}
		}()
		return pid, nil
	}

	// if read anything mean child failed after sync (close_on_exec so it should not block)
	err = readChildStatus(p[0], false)
	unix.Close(p[0])
	if err != nil {
		goto failAfterClose
	}
	return pid, nil

fail:
	unix.Close(p[0])

failAfterClose:
	handleChildFailed(pid)
	return 0, err
}

// readChildStatus reads the sync message (an Errno of 0) or a ChildError.
// When ready is false, a closed pipe (execve succeeded) is the success case.
func readChildStatus(fd int, ready bool) error {
	var (
		buf = make([]byte, unsafe.Sizeof(ChildError{}))
		n   int
		err error
	)
	for {
		n, err = unix.Read(fd, buf)
		if err != unix.EINTR {
			break
		}
	}
	switch {
	case err != nil:
		return err

	case n == 0:
		if ready {
			return syscall.EPIPE
		}
		return nil

	case n == int(unsafe.Sizeof(ChildError{})):
		return *(*ChildError)(unsafe.Pointer(&buf[0]))

	case ready && n == int(unsafe.Sizeof(syscall.Errno(0))):
		if errno := *(*syscall.Errno)(unsafe.Pointer(&buf[0])); errno != 0 {
			return errno
		}
		return nil
	}
	return syscall.EPIPE
}

func handleChildFailed(pid int) {
	var wstatus syscall.WaitStatus
	// make sure not blocked
	syscall.Kill(pid, syscall.SIGKILL)
	// child failed; wait for it to exit, to make sure the zombies don't accumulate
	_, err := syscall.Wait4(pid, &wstatus, 0, nil)
	for err == syscall.EINTR {
		_, err = syscall.Wait4(pid, &wstatus, 0, nil)
	}
}
