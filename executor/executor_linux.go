package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/judgecore/sandbox/pkg/cgroup"
	"github.com/judgecore/sandbox/pkg/forkexec"
	"github.com/judgecore/sandbox/pkg/logger"
	"github.com/judgecore/sandbox/pkg/watchdog"
	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/ptracer"
	"github.com/judgecore/sandbox/runner"
)

const (
	defaultOutputGrace = 100 * time.Millisecond
	setupErrorTimeout  = time.Second
)

// Options configures an Executor
type Options struct {
	Logger *zap.Logger

	// CgroupRoot is a delegated cgroup v2 directory, absolute or relative
	// to /sys/fs/cgroup, holding no process itself. Every execution gets
	// its own sub-cgroup. Empty disables the cgroup backend and memory is
	// enforced by the watchdog probe instead
	CgroupRoot string

	// ProbeInterval is the memory probe interval without cgroup
	ProbeInterval time.Duration

	// OutputGrace is how long output is drained after the program
	// terminated before the pipes are closed
	OutputGrace time.Duration
}

// Executor runs requests. It holds no per-execution state and is safe for
// concurrent use
type Executor struct {
	logger        *zap.Logger
	cgroup        *cgroup.Group
	probeInterval time.Duration
	outputGrace   time.Duration
}

// New creates an executor
func New(opt Options) (*Executor, error) {
	e := &Executor{
		logger:        opt.Logger,
		probeInterval: opt.ProbeInterval,
		outputGrace:   opt.OutputGrace,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.outputGrace <= 0 {
		e.outputGrace = defaultOutputGrace
	}
	if opt.CgroupRoot != "" {
		g, err := cgroup.Open(opt.CgroupRoot)
		if err != nil {
			return nil, newError("cgroup", ErrSetup, err)
		}
		if err := g.EnableControllers(cgroup.CPU, cgroup.Memory, cgroup.Pids); err != nil {
			return nil, newError("cgroup", ErrSetup, err)
		}
		e.cgroup = g
	}
	return e, nil
}

// CgroupEnabled reports whether executions are confined in cgroups
func (e *Executor) CgroupEnabled() bool {
	return e.cgroup != nil
}

// Execute runs the request and waits for the whole process tree to
// terminate. An error is returned when the program could not be run or
// observed; every outcome of the program itself is a Result
func (e *Executor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if err := checkRequest(req); err != nil {
		if req != nil {
			releaseSource(req.Stdin)
		}
		return nil, err
	}
	if err := checkTarget(req); err != nil {
		releaseSource(req.Stdin)
		return nil, err
	}
	log := logger.FromContext(ctx, e.logger)

	start := time.Now()
	s, err := prepareStdio(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.close(); err != nil {
			log.Warn("close stdio failed", zap.Error(err))
		}
	}()

	var cg *cgroup.Group
	if e.cgroup != nil {
		if cg, err = e.newCgroup(req.Policy); err != nil {
			return nil, err
		}
		defer func() {
			cg.Kill()
			if err := cg.Destroy(); err != nil {
				log.Warn("destroy cgroup failed", zap.String("cgroup", cg.Path()), zap.Error(err))
			}
		}()
	}

	pol := req.Policy
	record := pol.Violation() == policy.ViolationRecord
	if record {
		// ptrace is thread based
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	setupErr := make(chan error, 1)
	r := &forkexec.Runner{
		Args:       append([]string{req.TargetPath}, req.Args...),
		Env:        req.Env,
		RLimits:    pol.RLimits(),
		Files:      s.fds(),
		Chroot:     req.Chroot,
		WorkDir:    req.WorkDir,
		Seccomp:    pol.Filter().SockFprog(),
		CloneFlags: req.CloneFlags,
		Credential: req.Credential,
		Ptrace:     record,
		SetupError: setupErr,
		NoNewPrivs: true,
		DropCaps:   true,
	}
	if cg != nil {
		r.SyncFunc = func(pid int) error {
			if err := cg.AddProc(pid); err != nil {
				return newError("cgroup", ErrSetup, err)
			}
			return nil
		}
	}

	pid, err := r.Start()
	if cerr := s.closeChild(); cerr != nil {
		log.Warn("close child stdio failed", zap.Error(cerr))
	}
	if err != nil {
		return nil, startError(err)
	}
	started := time.Now()
	h := newHandle(pid, cg)
	h.advance(StateRestricted)
	if !record {
		// Start returned after a successful execve
		h.Execed()
	}
	log.Debug("child started", zap.Int("pid", pid), zap.Bool("traced", record), zap.Stringer("policy", pol))

	watch := watchdog.Start(ctx, e.watchConfig(pol, h, cg, s), h)
	h.beforeRelease = watch.Stop
	defer watch.Stop()

	var (
		ws        unix.WaitStatus
		ru        unix.Rusage
		violation string
		execTime  = started
		exitPeak  runner.Metric[runner.Size]
	)
	if record {
		tr := ptracer.Tracer{Logger: log}
		tres, err := tr.Trace(pid, h)
		if err != nil {
			return nil, newError("trace", ErrWait, err)
		}
		if !tres.Execved {
			if ctx.Err() != nil {
				return nil, newError("wait", ErrCanceled, ctx.Err())
			}
			return nil, setupFailure(setupErr, tres.Status)
		}
		ws, ru, violation, execTime = tres.Status, tres.Rusage, tres.Violation, tres.ExecTime
		exitPeak = tres.PeakMemory
	} else {
		if ws, ru, err = waitLeader(pid, h); err != nil {
			return nil, err
		}
	}
	finished := time.Now()
	// usage is only final once the leader was reaped
	if st := h.current(); st != StateTerminated {
		return nil, newError("wait", ErrWait, fmt.Errorf("leader not terminated, state %s", st))
	}
	s.drain(e.outputGrace)

	reason, killed := h.killReason()
	if killed && reason == runner.KillCanceled {
		return nil, newError("wait", ErrCanceled, ctx.Err())
	}

	acc := accountant{
		logger:   log,
		cg:       cg,
		watch:    watch,
		stdio:    s,
		exitPeak: exitPeak,
		selfPeak: selfMaxRSS(),
	}
	res := &Result{Result: classify(ws, violation, pol.Violation(), reason, killed)}
	res.OOMKilled = acc.oomKilled()
	res.Usage = acc.usage(&ru, finished.Sub(start))
	res.SetUpTime = execTime.Sub(start)
	res.RunningTime = finished.Sub(execTime)
	if s.stdout != nil && req.Stdout.Kind == SinkCapture {
		res.Stdout = s.stdout.Bytes()
	}
	if s.stderr != nil && req.Stderr.Kind == SinkCapture {
		res.Stderr = s.stderr.Bytes()
	}
	log.Debug("child finished", zap.Int("pid", pid), zap.Stringer("result", res.Result))
	return res, nil
}

func (e *Executor) newCgroup(pol *policy.Policy) (*cgroup.Group, error) {
	cg, err := e.cgroup.New("run-" + uuid.NewString())
	if err != nil {
		return nil, newError("cgroup", ErrSetup, err)
	}
	if m := pol.Memory(); m > 0 {
		if err := cg.SetMemoryLimit(uint64(m)); err != nil {
			cg.Destroy()
			return nil, newError("cgroup", ErrSetup, err)
		}
		// without swap the ceiling is reached by resident memory; absent
		// when swap accounting is off
		cg.SetSwapLimit(0)
	}
	if p := pol.Processes(); p > 0 {
		if err := cg.SetProcLimit(p); err != nil {
			cg.Destroy()
			return nil, newError("cgroup", ErrSetup, err)
		}
	}
	return cg, nil
}

func (e *Executor) watchConfig(pol *policy.Policy, h *handle, cg *cgroup.Group, s *stdio) watchdog.Config {
	cfg := watchdog.Config{
		WallTime:      pol.WallTime(),
		ProbeInterval: e.probeInterval,
	}
	// the memory controller accounts and enforces memory by itself
	if cg == nil {
		cfg.MemoryLimit = pol.Memory()
		cfg.MemoryProbe = memoryProbe(h)
	}
	if s.limited {
		cfg.OutputExceeded = s.stdout.Exceeded
	}
	return cfg
}

var errReleased = errors.New("process released")

// memoryProbe samples the leader only while the target program runs. Before
// exec its address space is still a copy of this process
func memoryProbe(h *handle) func() (runner.Size, error) {
	read := watchdog.ProcMemory(h.pid)
	return func() (runner.Size, error) {
		switch h.current() {
		case StateExecuting:
			return read()
		case StateTerminated:
			return 0, errReleased
		}
		return 0, watchdog.ErrNotReady
	}
}

// waitLeader peeks at the termination of the leader, releases its handle
// and then reaps it
func waitLeader(pid int, h *handle) (unix.WaitStatus, unix.Rusage, error) {
	if _, err := forkexec.WaitID(unix.P_PID, pid, unix.WEXITED|unix.WNOWAIT); err != nil {
		h.Terminate()
		h.Release()
		ws, ru, _ := forkexec.Reap(pid, 0)
		return ws, ru, newError("wait", ErrWait, err)
	}
	h.Release()
	ws, ru, err := forkexec.Reap(pid, 0)
	if err != nil {
		return ws, ru, newError("wait", ErrWait, err)
	}
	return ws, ru, nil
}

func classify(ws unix.WaitStatus, violation string, mode policy.ViolationMode, reason runner.KillReason, killed bool) runner.Result {
	var r runner.Result
	switch {
	case violation != "":
		r.Kind = runner.TerminationKilledByFilter
		r.ViolatedOperation = violation

	case killed:
		r.Kind = runner.TerminationKilledByWatchdog
		r.KillReason = reason

	case ws.Signaled() && ws.Signal() == unix.SIGSYS && mode == policy.ViolationKill:
		r.Kind = runner.TerminationKilledByFilter

	case ws.Signaled():
		r.Kind = runner.TerminationSignaled
		r.Signal = syscall.Signal(ws.Signal())

	case ws.Exited():
		r.Kind = runner.TerminationExited
		r.ExitCode = ws.ExitStatus()
	}
	if ws.Signaled() {
		r.Signal = syscall.Signal(ws.Signal())
	}
	return r
}

func checkRequest(req *Request) error {
	switch {
	case req == nil:
		return newError("request", ErrInvalidRequest, nil)
	case req.Policy == nil:
		return newError("request", ErrInvalidRequest, errors.New("no policy"))
	case req.TargetPath == "":
		return newError("request", ErrInvalidRequest, errors.New("no target"))
	}
	return nil
}

// checkTarget rejects a target that cannot be executed before any child
// exists
func checkTarget(req *Request) error {
	p := req.TargetPath
	if req.Chroot != "" {
		p = filepath.Join(req.Chroot, p)
	} else if !filepath.IsAbs(p) && req.WorkDir != "" {
		p = filepath.Join(req.WorkDir, p)
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newError("target", ErrTargetNotFound, err)
		}
		return newError("target", ErrTargetNotExecutable, err)
	}
	if !fi.Mode().IsRegular() {
		return newError("target", ErrTargetNotExecutable, errors.New(p+" is not a regular file"))
	}
	if err := unix.Access(p, unix.X_OK); err != nil {
		return newError("target", ErrTargetNotExecutable, err)
	}
	return nil
}

// startError classifies a failure of forkexec.Runner.Start
func startError(err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	var ce forkexec.ChildError
	if errors.As(err, &ce) {
		if ce.Location == forkexec.LocExecve {
			return execError(ce)
		}
		return newError("setup", ErrSetup, ce)
	}
	return newError("spawn", ErrSpawn, err)
}

func execError(ce forkexec.ChildError) error {
	switch ce.Err {
	case syscall.ENOENT, syscall.ENOTDIR:
		return newError("execve", ErrTargetNotFound, ce)
	case syscall.EACCES, syscall.ENOEXEC, syscall.EPERM, syscall.EISDIR, syscall.ELIBBAD:
		return newError("execve", ErrTargetNotExecutable, ce)
	case syscall.ETXTBSY, syscall.EAGAIN, syscall.ENOMEM:
		return newError("execve", ErrSpawn, ce)
	}
	return newError("execve", ErrSetup, ce)
}

// setupFailure reports why a traced child terminated before its execve
func setupFailure(ch <-chan error, ws unix.WaitStatus) error {
	select {
	case err := <-ch:
		var ce forkexec.ChildError
		if errors.As(err, &ce) && ce.Location == forkexec.LocExecve {
			return execError(ce)
		}
		return newError("setup", ErrSetup, err)
	case <-time.After(setupErrorTimeout):
		return newError("setup", ErrSetup, errors.New("child terminated before execve: "+waitString(ws)))
	}
}

func waitString(ws unix.WaitStatus) string {
	switch {
	case ws.Exited():
		return "exit " + syscall.Errno(ws.ExitStatus()).Error()
	case ws.Signaled():
		return "signal " + ws.Signal().String()
	}
	return "unknown status"
}
