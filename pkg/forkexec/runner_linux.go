package forkexec

import (
	"syscall"

	"github.com/judgecore/sandbox/pkg/rlimit"
)

// Runner is the configuration including the exec path, argv
// and resource limits. It creates the child for the executor, optionally as
// a ptrace tracee or inside new namespaces
type Runner struct {
	// argv and env for execve syscall for the child process
	Args []string
	Env  []string

	// POSIX Resource limit set by prlimit64
	RLimits []rlimit.RLimit

	// file disriptors map for new process, from 0 to len - 1
	Files []uintptr

	// Chroot changes the root directory of the child before WorkDir applies,
	// requires CAP_SYS_CHROOT (e.g. unshare user namespace)
	Chroot string

	// work path set by chdir(dir) (current working directory for child)
	WorkDir string

	// seccomp syscall filter applied to child, the last step before execve
	Seccomp *syscall.SockFprog

	// clone unshare flag to create linux namespace, effective when clone child
	// since unshare syscall does not join the new pid group
	CloneFlags uintptr

	// UidMappings / GidMappings for unshared user namespaces, default maps
	// root inside to the current euid / egid
	UIDMappings []syscall.SysProcIDMap
	GIDMappings []syscall.SysProcIDMap

	// GidMappingsEnableSetgroups allows / disallows setgroups syscall.
	// deny if GIDMappings is nil
	GIDMappingsEnableSetgroups bool

	// Credential holds user and group identities to be assumed
	// by the child process
	Credential *syscall.Credential

	// Parent and child process with sync sataus through a socket pair.
	// SyncFunc will invoke with the child pid after resource limits are in
	// force and before the filter is loaded. If SyncFunc return some error,
	// parent will kill the child and report the error
	SyncFunc func(int) error

	// ptrace controls child process to call ptrace(PTRACE_TRACEME) and stop
	// itself with SIGSTOP before loading the filter.
	// runtime.LockOSThread is required for tracer to call ptrace syscalls
	Ptrace bool

	// SetupError receives the error reported by the child after the parent
	// acknowledged it (only in ptrace mode, where Start does not wait for
	// execve). It should be buffered.
	SetupError chan<- error

	// no_new_privs calls prctl(PR_SET_NO_NEW_PRIVS) to disable calls to
	// setuid processes. It is automatically enabled when seccomp filter is provided
	NoNewPrivs bool

	// drop_caps calls cap_set(self, 0) to drop all capabilities
	// from effective, permitted, inheritable capability sets before execve
	DropCaps bool
}
