package libseccomp

import (
	"fmt"
	"path"
	"strings"
)

// presets are expanded by name (e.g. "@default"). Entries missing on the
// native architecture are skipped silently, e.g. open(2) on arm64.
var presets = map[string][]string{
	"default": {
		"read", "write", "readv", "writev", "pread64", "pwrite64", "close", "fstat", "newfstatat", "lseek",
		"dup", "dup2", "dup3", "ioctl", "fcntl", "fadvise64",
		"mmap", "mprotect", "munmap", "brk", "mremap", "msync", "mincore", "madvise",
		"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "rt_sigpending", "sigaltstack",
		"getcwd", "exit", "exit_group", "arch_prctl", "set_tid_address", "set_robust_list", "rseq",
		"gettimeofday", "getrlimit", "prlimit64", "getrusage", "times", "time", "clock_gettime",
		"clock_getres", "clock_nanosleep", "nanosleep", "restart_syscall", "getrandom", "futex",
		"uname", "getpid", "gettid", "getuid", "geteuid", "getgid", "getegid", "sched_yield",
		"stat", "lstat", "statx", "readlink", "readlinkat", "access", "faccessat", "faccessat2",
	},
	// dynamic loader opens shared objects
	"dynamic": {"open", "openat"},
}

// Expand resolves exact syscall names, glob patterns (e.g. "epoll_*") and
// presets (e.g. "@default") into a sorted, de-duplicated list of syscall
// names. An exact name or a pattern that matches nothing is an error.
func Expand(entries []string) ([]string, error) {
	all, err := SyscallNames()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ret []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			ret = append(ret, n)
		}
	}

	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
			return nil, fmt.Errorf("empty syscall entry")

		case strings.HasPrefix(e, "@"):
			names, ok := presets[e[1:]]
			if !ok {
				return nil, fmt.Errorf("unknown syscall preset %q", e)
			}
			if e == "@dynamic" {
				for _, n := range presets["default"] {
					if knownSyscall(n) {
						add(n)
					}
				}
			}
			for _, n := range names {
				if knownSyscall(n) {
					add(n)
				}
			}

		case strings.ContainsAny(e, "*?["):
			if _, err := path.Match(e, ""); err != nil {
				return nil, fmt.Errorf("bad syscall pattern %q: %w", e, err)
			}
			matched := false
			for _, n := range all {
				if ok, _ := path.Match(e, n); ok {
					add(n)
					matched = true
				}
			}
			if !matched {
				return nil, fmt.Errorf("syscall pattern %q matches nothing", e)
			}

		default:
			if !knownSyscall(e) {
				return nil, fmt.Errorf("unknown syscall %q", e)
			}
			add(e)
		}
	}
	return ret, nil
}
