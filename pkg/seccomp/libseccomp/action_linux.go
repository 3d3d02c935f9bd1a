package libseccomp

import (
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"github.com/judgecore/sandbox/pkg/seccomp"
)

// ToSeccompAction converts action to the SECCOMP_RET value returned by the
// filter program. The return code of the action fills SECCOMP_RET_DATA
func ToSeccompAction(a seccomp.Action) uint32 {
	var action libseccomp.Action
	switch a.Action() {
	case seccomp.ActionAllow:
		return uint32(libseccomp.ActionAllow)
	case seccomp.ActionErrno:
		action = libseccomp.ActionErrno
		if a.ReturnCode() == 0 {
			a = a.WithReturnCode(int16(syscall.EPERM))
		}
	case seccomp.ActionTrace:
		action = libseccomp.ActionTrace
	default:
		return uint32(libseccomp.ActionKillProcess)
	}
	return uint32(action) | uint32(uint16(a.ReturnCode()))
}
