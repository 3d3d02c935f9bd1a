// Package cgroup provides a minimal cgroup v2 controller to confine one
// execution: memory.max, pids.max, peak memory, cpu usage, OOM events and
// killing every member through cgroup.kill.
//
// Available cgroup controller:
//
//	cpu
//	memory
//	pids
//
// cgroup v1 hierarchies are detected and reported as unsupported.
package cgroup
