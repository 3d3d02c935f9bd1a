// Package rlimit maps policy ceilings to the prlimit64 values the child sets
// on itself before it loads the target program.
package rlimit

import (
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/judgecore/sandbox/runner"
)

// RLimits are the resource ceilings of one execution. A zero field leaves the
// inherited limit in place
type RLimits struct {
	CPU          uint64 // soft limit in s, SIGXCPU
	CPUHard      uint64 // hard limit in s, SIGKILL
	FileSize     uint64 // in bytes, SIGXFSZ
	Stack        uint64 // in bytes
	AddressSpace uint64 // in bytes
	OpenFile     uint64 // number of fd
	Process      uint64 // number of processes of the real uid
	DisableCore  bool
}

// RLimit is one resource with its soft and hard limit
type RLimit struct {
	Res  int
	Rlim syscall.Rlimit
}

// rlimitNproc is missing from the syscall package
const rlimitNproc = 0x6

type unit int

const (
	unitCount unit = iota
	unitSecond
	unitByte
)

var resources = map[int]struct {
	name string
	unit unit
}{
	syscall.RLIMIT_CPU:    {"CPU", unitSecond},
	syscall.RLIMIT_FSIZE:  {"File", unitByte},
	syscall.RLIMIT_STACK:  {"Stack", unitByte},
	syscall.RLIMIT_AS:     {"AddressSpace", unitByte},
	syscall.RLIMIT_NOFILE: {"OpenFile", unitCount},
	rlimitNproc:           {"Process", unitCount},
	syscall.RLIMIT_CORE:   {"Core", unitByte},
}

// CPUSeconds converts a CPU time ceiling to the RLIMIT_CPU soft and hard
// values. The soft limit rounds up to whole seconds, the hard limit is one
// second later
func CPUSeconds(d time.Duration) (soft, hard uint64) {
	if d <= 0 {
		return 0, 0
	}
	soft = uint64((d + time.Second - 1) / time.Second)
	return soft, soft + 1
}

// PrepareRLimit returns the limits to set, in a fixed order
func (r *RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	add := func(res int, soft, hard uint64) {
		ret = append(ret, RLimit{Res: res, Rlim: syscall.Rlimit{Cur: soft, Max: hard}})
	}
	if r.CPU > 0 {
		add(syscall.RLIMIT_CPU, r.CPU, max(r.CPU, r.CPUHard))
	}
	for _, l := range []struct {
		res int
		v   uint64
	}{
		{syscall.RLIMIT_FSIZE, r.FileSize},
		{syscall.RLIMIT_STACK, r.Stack},
		{syscall.RLIMIT_AS, r.AddressSpace},
		{syscall.RLIMIT_NOFILE, r.OpenFile},
		{rlimitNproc, r.Process},
	} {
		if l.v > 0 {
			add(l.res, l.v, l.v)
		}
	}
	if r.DisableCore {
		add(syscall.RLIMIT_CORE, 0, 0)
	}
	return ret
}

func (r RLimit) String() string {
	res, ok := resources[r.Res]
	if !ok {
		return fmt.Sprintf("RLimit(%d)[%d:%d]", r.Res, r.Rlim.Cur, r.Rlim.Max)
	}
	switch res.unit {
	case unitSecond:
		return fmt.Sprintf("%s[%d s:%d s]", res.name, r.Rlim.Cur, r.Rlim.Max)
	case unitByte:
		return fmt.Sprintf("%s[%v:%v]", res.name, runner.Size(r.Rlim.Cur), runner.Size(r.Rlim.Max))
	default:
		return fmt.Sprintf("%s[%d:%d]", res.name, r.Rlim.Cur, r.Rlim.Max)
	}
}

func (r RLimits) String() string {
	rls := r.PrepareRLimit()
	s := make([]string, len(rls))
	for i, rl := range rls {
		s[i] = rl.String()
	}
	return "RLimits[" + strings.Join(s, ",") + "]"
}
