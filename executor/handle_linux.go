package executor

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/judgecore/sandbox/pkg/cgroup"
	"github.com/judgecore/sandbox/runner"
)

// handle is the identity of one child process tree. Its pid is only
// signalled before the leader reached StateTerminated, so a late kill never
// reaches a reused pid
type handle struct {
	mu     sync.Mutex
	pid    int
	cg     *cgroup.Group
	reason runner.KillReason
	killed bool
	state  State

	// beforeRelease runs outside the lock before the leader is released
	beforeRelease func()
}

func newHandle(pid int, cg *cgroup.Group) *handle {
	return &handle{pid: pid, cg: cg, state: StateIsolated}
}

// Kill kills the tree on behalf of the watchdog. The reason of the first
// kill is recorded only while the target program runs, an earlier kill
// aborts the setup instead. No-op once the leader was released
func (h *handle) Kill(reason runner.KillReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state >= StateTerminated {
		return
	}
	if !h.killed && h.state == StateExecuting {
		h.killed = true
		h.reason = reason
	}
	h.killLocked()
}

// Terminate kills the tree without recording a reason
func (h *handle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state < StateTerminated {
		h.killLocked()
	}
}

// Execed marks the target program as loaded
func (h *handle) Execed() {
	h.advance(StateExecuting)
}

// Release marks the leader as terminated and kills what is left of its
// process group. The leader is a zombie at this point, so its pid is
// still reserved
func (h *handle) Release() {
	if h.beforeRelease != nil {
		h.beforeRelease()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state >= StateTerminated {
		return
	}
	h.killLocked()
	h.state = StateTerminated
}

func (h *handle) killLocked() {
	unix.Kill(-h.pid, unix.SIGKILL)
	if h.cg != nil {
		h.cg.Kill()
	}
}

// killReason returns the reason if the watchdog killed a live tree
func (h *handle) killReason() (runner.KillReason, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason, h.killed
}

func (h *handle) current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// advance moves the state forward and reports whether it moved
func (h *handle) advance(s State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s <= h.state {
		return false
	}
	h.state = s
	return true
}
