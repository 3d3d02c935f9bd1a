package ptracer

import (
	"bytes"
	"errors"
	"os"
	"strconv"
)

var errNotInSyscall = errors.New("ptracer: tracee is not in a syscall")

// syscallNumber reads the syscall number of a stopped tracee from
// /proc/<pid>/syscall
func syscallNumber(pid int) (uint, error) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/syscall")
	if err != nil {
		return 0, err
	}
	return parseSyscall(b)
}

func parseSyscall(b []byte) (uint, error) {
	f := bytes.Fields(b)
	if len(f) == 0 || string(f[0]) == "running" {
		return 0, errNotInSyscall
	}
	no, err := strconv.ParseInt(string(f[0]), 10, 64)
	if err != nil {
		return 0, err
	}
	if no < 0 {
		return 0, errNotInSyscall
	}
	return uint(no), nil
}
