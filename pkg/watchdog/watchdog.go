// Package watchdog kills a running process tree when it exceeds its wall
// clock budget, its memory budget (when no memory controller enforces it)
// or its output budget, or when the caller cancels it.
package watchdog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/judgecore/sandbox/runner"
)

// DefaultProbeInterval is used when Config.ProbeInterval is not set
const DefaultProbeInterval = 10 * time.Millisecond

// ErrNotReady is returned by a memory probe when the process cannot be
// measured yet. The probe is retried on the next tick
var ErrNotReady = errors.New("watchdog: process not ready to probe")

// Killer kills the watched process tree. Kill must be safe to call more
// than once and after the tree was reaped
type Killer interface {
	Kill(reason runner.KillReason)
}

// Config defines what the watchdog enforces. Zero values disable a check
type Config struct {
	WallTime time.Duration

	MemoryLimit   runner.Size
	MemoryProbe   func() (runner.Size, error)
	ProbeInterval time.Duration

	OutputExceeded <-chan struct{}
}

// Watch is a running watchdog
type Watch struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	peak   atomic.Uint64
	fired  atomic.Int32
}

// Start starts watching in a new goroutine. Stop must be called once the
// process tree terminated
func Start(ctx context.Context, cfg Config, k Killer) *Watch {
	cctx, cancel := context.WithCancel(context.Background())
	w := &Watch{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx, cctx, cfg, k)
	return w
}

func (w *Watch) run(parent, ctx context.Context, cfg Config, k Killer) {
	defer close(w.done)

	var wall <-chan time.Time
	if cfg.WallTime > 0 {
		t := time.NewTimer(cfg.WallTime)
		defer t.Stop()
		wall = t.C
	}

	var probe <-chan time.Time
	if cfg.MemoryProbe != nil {
		interval := cfg.ProbeInterval
		if interval <= 0 {
			interval = DefaultProbeInterval
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		probe = t.C
	}

	kill := func(r runner.KillReason) {
		w.fired.CompareAndSwap(0, int32(r)+1)
		k.Kill(r)
	}

	// sample reports whether the memory ceiling was exceeded
	sample := func() bool {
		m, err := cfg.MemoryProbe()
		switch {
		case errors.Is(err, ErrNotReady):
			return false
		case err != nil:
			// the process is gone or not readable anymore
			probe = nil
			return false
		}
		w.observe(m)
		return cfg.MemoryLimit > 0 && m > cfg.MemoryLimit
	}
	// short runs may end before the first tick
	if probe != nil && sample() {
		kill(runner.KillMemory)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-parent.Done():
			kill(runner.KillCanceled)
			return

		case <-wall:
			kill(runner.KillWallTime)
			return

		case <-cfg.OutputExceeded:
			kill(runner.KillOutput)
			return

		case <-probe:
			if sample() {
				kill(runner.KillMemory)
				return
			}
		}
	}
}

func (w *Watch) observe(m runner.Size) {
	for {
		old := w.peak.Load()
		if uint64(m) <= old || w.peak.CompareAndSwap(old, uint64(m)) {
			return
		}
	}
}

// Stop stops the watchdog and waits for its goroutine to exit
func (w *Watch) Stop() {
	w.once.Do(w.cancel)
	<-w.done
}

// Fired returns the reason of the first kill issued by the watchdog
func (w *Watch) Fired() (runner.KillReason, bool) {
	f := w.fired.Load()
	if f == 0 {
		return runner.KillNone, false
	}
	return runner.KillReason(f - 1), true
}

// Peak returns the highest memory usage observed by the probe
func (w *Watch) Peak() (runner.Size, bool) {
	p := w.peak.Load()
	return runner.Size(p), p > 0
}
