package forkexec

import (
	"fmt"
	"syscall"
)

// ErrorLocation defines the location where child process failed to exec
type ErrorLocation int

// ChildError defines the specific error and location where it failed
type ChildError struct {
	Err      syscall.Errno
	Location ErrorLocation
	Index    int
}

// Location constants
const (
	LocClone ErrorLocation = iota + 1
	LocCloseWrite
	LocUnshareUserRead
	LocGetPid
	LocSetGroups
	LocSetGid
	LocSetUid
	LocDup3
	LocFcntl
	LocSetSid
	LocChroot
	LocChdir
	LocSetRlimit
	LocSetNoNewPrivs
	LocSetCap
	LocSyncWrite
	LocSyncRead
	LocPtraceMe
	LocStop
	LocSeccomp
	LocExecve
)

var locToString = []string{
	"unknown",
	"clone",
	"close_write",
	"unshare_user_read",
	"getpid",
	"setgroups",
	"setgid",
	"setuid",
	"dup3",
	"fcntl",
	"setsid",
	"chroot",
	"chdir",
	"setrlimit",
	"set_no_new_privs",
	"set_cap",
	"sync_write",
	"sync_read",
	"ptrace_me",
	"stop",
	"seccomp",
	"execve",
}

func (e ErrorLocation) String() string {
	if e >= LocClone && e <= LocExecve {
		return locToString[e]
	}
	return "unknown"
}

func (e ChildError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s(%d): %s", e.Location.String(), e.Index, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Location.String(), e.Err.Error())
}

// Unwrap returns the errno so callers can match it with errors.Is
func (e ChildError) Unwrap() error {
	return e.Err
}

// Restricting reports whether the failure happened while applying resource
// limits or the syscall filter
func (e ChildError) Restricting() bool {
	switch e.Location {
	case LocSetRlimit, LocSetNoNewPrivs, LocSetCap, LocPtraceMe, LocStop, LocSeccomp:
		return true
	}
	return false
}
