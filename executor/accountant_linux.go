package executor

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/judgecore/sandbox/pkg/cgroup"
	"github.com/judgecore/sandbox/pkg/watchdog"
	"github.com/judgecore/sandbox/runner"
)

// accountant extracts the resource usage of a finished tree. A metric that
// cannot be read is reported unknown, never zero
type accountant struct {
	logger *zap.Logger
	cg     *cgroup.Group
	watch  *watchdog.Watch
	stdio  *stdio

	// exitPeak is the VmHWM of the leader at its exit event (record mode)
	exitPeak runner.Metric[runner.Size]
	// selfPeak is the high water mark of this process. The child started
	// as a copy of it and exec folds that copy into its maxrss
	selfPeak runner.Size
}

func (a *accountant) usage(ru *unix.Rusage, wall time.Duration) runner.Usage {
	return runner.Usage{
		CPUTime:     a.cpuTime(ru),
		WallTime:    runner.Known(wall),
		PeakMemory:  a.peakMemory(ru),
		OutputBytes: a.stdio.outputBytes(),
	}
}

func (a *accountant) cpuTime(ru *unix.Rusage) runner.Metric[time.Duration] {
	if a.cg != nil {
		t, err := a.cg.CPUUsage()
		if err == nil {
			return runner.Known(t)
		}
		a.logger.Debug("cgroup cpu usage unavailable", zap.Error(err))
	}
	if ru == nil {
		return runner.Unknown[time.Duration]()
	}
	return runner.Known(time.Duration(ru.Utime.Nano() + ru.Stime.Nano()))
}

// peakMemory prefers the cgroup peak, then the samples taken after exec.
// maxrss only counts when it exceeds what the pre-exec copy could have
// contributed
func (a *accountant) peakMemory(ru *unix.Rusage) runner.Metric[runner.Size] {
	if a.cg != nil {
		m, err := a.cg.MemoryPeak()
		if err == nil {
			return runner.Known(runner.Size(m))
		}
		a.logger.Debug("cgroup memory peak unavailable", zap.Error(err))
	}
	var (
		peak  runner.Size
		known bool
	)
	if p, ok := a.exitPeak.Get(); ok {
		peak, known = p, true
	}
	if a.watch != nil {
		if p, ok := a.watch.Peak(); ok {
			peak, known = max(peak, p), true
		}
	}
	if ru != nil {
		// maxrss is in KiB
		if rss := runner.Size(ru.Maxrss) << 10; rss > a.selfPeak {
			peak, known = max(peak, rss), true
		} else if !known {
			a.logger.Debug("maxrss not attributable to the child",
				zap.Stringer("maxrss", rss), zap.Stringer("self", a.selfPeak))
		}
	}
	if !known {
		return runner.Unknown[runner.Size]()
	}
	return runner.Known(peak)
}

// selfMaxRSS returns the resident high water mark of this process
func selfMaxRSS() runner.Size {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		// maxrss of the child is then never trusted
		return ^runner.Size(0)
	}
	return runner.Size(ru.Maxrss) << 10
}

func (a *accountant) oomKilled() bool {
	if a.cg == nil {
		return false
	}
	oom, err := a.cg.OOMKilled()
	if err != nil {
		a.logger.Debug("cgroup memory events unavailable", zap.Error(err))
	}
	return oom
}
