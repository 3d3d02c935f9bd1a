package libseccomp

import (
	"fmt"
	"sort"

	"github.com/elastic/go-seccomp-bpf/arch"
)

var info, errInfo = arch.GetInfo("")

// ToSyscallName convert syscallno to syscall name
func ToSyscallName(sysno uint) (string, error) {
	if errInfo != nil {
		return "", errInfo
	}
	n, ok := info.SyscallNumbers[int(sysno)]
	if !ok {
		return "", fmt.Errorf("syscall no %d does not exist", sysno)
	}
	return n, nil
}

// SyscallNames returns all syscall names known for the native architecture
func SyscallNames() ([]string, error) {
	if errInfo != nil {
		return nil, errInfo
	}
	names := make([]string, 0, len(info.SyscallNumbers))
	for _, n := range info.SyscallNumbers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func knownSyscall(name string) bool {
	if errInfo != nil {
		return false
	}
	for _, n := range info.SyscallNumbers {
		if n == name {
			return true
		}
	}
	return false
}
