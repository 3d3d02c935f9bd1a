package cgroup

const (
	// systemd mounted cgroups
	basePath       = "/sys/fs/cgroup"
	procSelfCgroup = "/proc/self/cgroup"

	cgroupProcs          = "cgroup.procs"
	cgroupSubtreeControl = "cgroup.subtree_control"
	cgroupControllers    = "cgroup.controllers"
	cgroupKill           = "cgroup.kill"

	cpuStat       = "cpu.stat"
	memoryMax     = "memory.max"
	memoryPeak    = "memory.peak"
	memoryCurrent = "memory.current"
	memoryEvents  = "memory.events"
	memorySwapMax = "memory.swap.max"
	pidsMax       = "pids.max"

	filePerm = 0644
	dirPerm  = 0755

	CPU    = "cpu"
	Memory = "memory"
	Pids   = "pids"
)

// Type is the cgroup hierarchy mounted at /sys/fs/cgroup
type Type int

// cgroup hierarchy types
const (
	TypeNone Type = iota
	TypeV1
	TypeV2
)

func (t Type) String() string {
	switch t {
	case TypeV1:
		return "v1"
	case TypeV2:
		return "v2"
	default:
		return "none"
	}
}
