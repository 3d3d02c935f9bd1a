package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupported is returned when /sys/fs/cgroup is not a cgroup v2
// hierarchy
var ErrUnsupported = errors.New("cgroup: v2 hierarchy unavailable")

// Group is a single cgroup v2 directory
type Group struct {
	path string
}

// Open opens an existing cgroup directory. A relative prefix is resolved
// against /sys/fs/cgroup
func Open(prefix string) (*Group, error) {
	if DetectType() != TypeV2 {
		return nil, ErrUnsupported
	}
	p := prefix
	if !path.IsAbs(p) || !strings.HasPrefix(p, basePath) {
		p = path.Join(basePath, prefix)
	}
	if _, err := os.Stat(p); err != nil {
		return nil, err
	}
	return &Group{path: p}, nil
}

// Self opens the cgroup of the current process
func Self() (*Group, error) {
	b, err := readFile(procSelfCgroup)
	if err != nil {
		return nil, err
	}
	p, err := parseSelfCgroup(b)
	if err != nil {
		return nil, ErrUnsupported
	}
	return Open(p)
}

// Path returns the absolute directory of the cgroup
func (g *Group) Path() string {
	return g.path
}

// EnableControllers writes the controllers into cgroup.subtree_control so
// that sub-cgroups can use them
func (g *Group) EnableControllers(ct ...string) error {
	if len(ct) == 0 {
		return nil
	}
	return g.WriteFile(cgroupSubtreeControl, []byte("+"+strings.Join(ct, " +")))
}

// Controllers returns the controllers available to this cgroup
func (g *Group) Controllers() (map[string]bool, error) {
	b, err := g.ReadFile(cgroupControllers)
	if err != nil {
		return nil, err
	}
	m := make(map[string]bool)
	for _, c := range strings.Fields(string(b)) {
		m[c] = true
	}
	return m, nil
}

// New creates a sub-cgroup. It fails if the name already exists
func (g *Group) New(name string) (*Group, error) {
	p := path.Join(g.path, name)
	if err := os.Mkdir(p, dirPerm); err != nil {
		return nil, fmt.Errorf("cgroup: create %s: %w", p, err)
	}
	return &Group{path: p}, nil
}

// AddProc add a process into the cgroup
func (g *Group) AddProc(pid int) error {
	return g.WriteUint(cgroupProcs, uint64(pid))
}

// Processes lists all existing process pid from the cgroup
func (g *Group) Processes() ([]int, error) {
	b, err := g.ReadFile(cgroupProcs)
	if err != nil {
		return nil, err
	}
	var ret []int
	for _, f := range strings.Fields(string(b)) {
		pid, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		ret = append(ret, pid)
	}
	return ret, nil
}

// SetMemoryLimit sets memory.max
func (g *Group) SetMemoryLimit(l uint64) error {
	return g.WriteUint(memoryMax, l)
}

// SetProcLimit sets pids.max
func (g *Group) SetProcLimit(l uint64) error {
	return g.WriteUint(pidsMax, l)
}

// CPUUsage reads usage_usec from cpu.stat
func (g *Group) CPUUsage() (time.Duration, error) {
	b, err := g.ReadFile(cpuStat)
	if err != nil {
		return 0, err
	}
	v, err := parseKeyed(b, "usage_usec")
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Microsecond, nil
}

// MemoryUsage reads memory.current
func (g *Group) MemoryUsage() (uint64, error) {
	return g.ReadUint(memoryCurrent)
}

// MemoryPeak reads memory.peak. Not exist with kernel version < 5.19
func (g *Group) MemoryPeak() (uint64, error) {
	return g.ReadUint(memoryPeak)
}

// OOMKilled reports whether the OOM killer killed any member
func (g *Group) OOMKilled() (bool, error) {
	b, err := g.ReadFile(memoryEvents)
	if err != nil {
		return false, err
	}
	v, err := parseKeyed(b, "oom_kill")
	if err != nil {
		return false, err
	}
	return v > 0, nil
}

// Kill kills every process in the cgroup. Requires kernel >= 5.14
func (g *Group) Kill() error {
	return g.WriteFile(cgroupKill, []byte("1"))
}

// Destroy deletes the cgroup, retrying while the killed members are still
// being released
func (g *Group) Destroy() error {
	var err error
	for i := 0; i < 10; i++ {
		if err = os.Remove(g.path); err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return err
}

// WriteUint writes uint64 into given file
func (g *Group) WriteUint(filename string, i uint64) error {
	return g.WriteFile(filename, []byte(strconv.FormatUint(i, 10)))
}

// ReadUint read uint64 from given file
func (g *Group) ReadUint(filename string) (uint64, error) {
	b, err := g.ReadFile(filename)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

// WriteFile writes cgroup file and handles potential EINTR error while writes to
// the slow device (cgroup)
func (g *Group) WriteFile(name string, content []byte) error {
	return writeFile(path.Join(g.path, name), content)
}

// ReadFile reads cgroup file and handles potential EINTR error while read to
// the slow device (cgroup)
func (g *Group) ReadFile(name string) ([]byte, error) {
	return readFile(path.Join(g.path, name))
}

func (g *Group) String() string {
	return "Cgroup[" + g.path + "]"
}

// SetSwapLimit sets memory.swap.max
func (g *Group) SetSwapLimit(l uint64) error {
	return g.WriteUint(memorySwapMax, l)
}
