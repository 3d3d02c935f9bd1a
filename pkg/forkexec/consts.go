package forkexec

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// defines missing consts from syscall package
const (
	SECCOMP_SET_MODE_STRICT   = 0
	SECCOMP_SET_MODE_FILTER   = 1
	SECCOMP_FILTER_FLAG_TSYNC = 1

	// UnshareFlags are the namespace flags accepted by clone
	UnshareFlags = unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWNS |
		unix.CLONE_NEWPID | unix.CLONE_NEWUSER | unix.CLONE_NEWUTS | unix.CLONE_NEWCGROUP
)

var (
	slash = [...]byte{'/', 0}

	// Drop all capabilities
	dropCapHeader = unix.CapUserHeader{
		Version: unix.LINUX_CAPABILITY_VERSION_3,
		Pid:     0,
	}

	dropCapData = [2]unix.CapUserData{}

	// wait between execve attempts on ETXTBSY
	etxtbsyRetryInterval = syscall.Timespec{
		Nsec: 20 * 1000 * 1000,
	}
)
