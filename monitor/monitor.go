// Package monitor runs test cases against a program: it builds the
// execution request from the test case and the base policy, executes it in
// the sandbox, classifies the result and, for runs within every ceiling,
// compares the produced output with the expected one.
//
// Every failure ends in a verdict; host side failures become SystemError
// verdicts and never affect other sessions.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/judgecore/sandbox/executor"
	"github.com/judgecore/sandbox/pkg/logger"
	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
	"github.com/judgecore/sandbox/verdict"
)

// stderrExcerpt bounds the stderr attached to runtime error messages
const stderrExcerpt = 256

// ErrInvalidOptions is returned by New for incomplete options
var ErrInvalidOptions = errors.New("monitor: invalid options")

// Runner executes sandboxed requests. *executor.Executor implements it
type Runner interface {
	Execute(ctx context.Context, req *executor.Request) (*executor.Result, error)
}

// TestCase is one input of the program with its expected output
type TestCase struct {
	Name string

	// Input is fed to stdin. InputPath feeds a file instead when set
	Input     []byte
	InputPath string

	// Expected is compared with the produced output of Accepted runs. Nil
	// skips the comparison
	Expected []byte

	// PolicyOverride replaces the fields it sets in the base policy
	PolicyOverride *policy.Spec
}

// Session is one evaluation of a test case
type Session struct {
	ID       string
	Case     string
	Target   string
	Attempts int

	Verdict verdict.Verdict
	Result  *executor.Result
	Err     error

	Started  time.Time
	Finished time.Time
}

// Options configures a Monitor
type Options struct {
	Runner Runner
	Policy *policy.Policy

	// Comparator defaults to Lines
	Comparator Comparator
	// Interactor, when set, talks with the program instead of feeding it
	// the input, and replaces the comparator
	Interactor *Interactor

	// Args and Env are passed to every execution
	Args    []string
	Env     []string
	WorkDir string

	Retry RetryConfig
	// Concurrency bounds RunAll, defaults to 1
	Concurrency int

	Logger  *zap.Logger
	Metrics *Metrics
	// Tracer defaults to the global otel tracer provider
	Tracer trace.Tracer
}

// Monitor evaluates test cases. It is safe for concurrent use
type Monitor struct {
	runner      Runner
	policy      *policy.Policy
	comparator  Comparator
	interactor  *Interactor
	args        []string
	env         []string
	workDir     string
	retry       RetryConfig
	concurrency int
	logger      *zap.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// New creates a Monitor
func New(opt Options) (*Monitor, error) {
	if opt.Runner == nil {
		return nil, fmt.Errorf("%w: no runner", ErrInvalidOptions)
	}
	if opt.Policy == nil {
		return nil, fmt.Errorf("%w: no policy", ErrInvalidOptions)
	}
	if it := opt.Interactor; it != nil && (it.Path == "" || it.Policy == nil) {
		return nil, fmt.Errorf("%w: interactor needs a path and a policy", ErrInvalidOptions)
	}
	m := &Monitor{
		runner:      opt.Runner,
		policy:      opt.Policy,
		comparator:  opt.Comparator,
		interactor:  opt.Interactor,
		args:        opt.Args,
		env:         opt.Env,
		workDir:     opt.WorkDir,
		retry:       opt.Retry,
		concurrency: max(opt.Concurrency, 1),
		logger:      opt.Logger,
		metrics:     opt.Metrics,
		tracer:      opt.Tracer,
	}
	if m.comparator == nil {
		m.comparator = Lines{}
	}
	if m.retry == (RetryConfig{}) {
		m.retry = DefaultRetry
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m, nil
}

// Run evaluates one test case. The returned error is set only for
// SystemError verdicts
func (m *Monitor) Run(ctx context.Context, target string, tc TestCase) (verdict.Verdict, error) {
	s := m.Evaluate(ctx, target, tc)
	return s.Verdict, s.Err
}

// RunAll evaluates the test cases concurrently and returns the verdicts in
// input order. The error combines the errors of the failed sessions
func (m *Monitor) RunAll(ctx context.Context, target string, cases []TestCase) ([]verdict.Verdict, error) {
	ret := make([]verdict.Verdict, len(cases))
	errs := make([]error, len(cases))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i := range cases {
		i := i
		g.Go(func() error {
			ret[i], errs[i] = m.Run(ctx, target, cases[i])
			return nil
		})
	}
	_ = g.Wait()
	return ret, multierr.Combine(errs...)
}

// Evaluate runs one session and returns its full record
func (m *Monitor) Evaluate(ctx context.Context, target string, tc TestCase) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Case:    tc.Name,
		Target:  target,
		Started: time.Now(),
	}
	ctx = logger.WithSession(ctx, s.ID)
	ctx = logger.WithCase(ctx, tc.Name)
	log := logger.FromContext(ctx, m.logger)

	ctx, span := m.tracer.Start(ctx, "monitor.session", trace.WithAttributes(
		AttrSessionID.String(s.ID),
		AttrCase.String(tc.Name),
		AttrTarget.String(target),
	))
	m.metrics.started()
	log.Info("session started", zap.String("target", target))

	s.Verdict, s.Err = m.evaluate(ctx, log, s, tc)
	if s.Err != nil {
		s.Verdict = verdict.System(s.Err, s.Verdict.Usage)
		log.Error("system error", zap.Int("attempts", s.Attempts), zap.Error(s.Err))
	}

	s.Finished = time.Now()
	m.metrics.finished(s.Verdict, s.Finished.Sub(s.Started))
	endSpan(span, s)
	log.Info("session finished",
		zap.Stringer("category", s.Verdict.Category),
		zap.Stringer("cpuTimeMs", s.Verdict.CPUTimeMs),
		zap.Stringer("wallTimeMs", s.Verdict.WallTimeMs),
		zap.Stringer("memoryKB", s.Verdict.MemoryKB),
		zap.Duration("elapsed", s.Finished.Sub(s.Started)),
	)
	return s
}

func (m *Monitor) evaluate(ctx context.Context, log *zap.Logger, s *Session, tc TestCase) (verdict.Verdict, error) {
	pol, err := m.policy.Override(tc.PolicyOverride)
	if err != nil {
		return verdict.Verdict{}, fmt.Errorf("policy override: %w", err)
	}

	req := m.request(s.Target, tc, pol)
	var (
		res      *executor.Result
		attempts int
		inter    *Interaction
	)
	if m.interactor != nil {
		res, attempts, err = m.retrying(ctx, log, func() (*executor.Result, error) {
			in, err := m.interactor.Interact(ctx, m.runner, req, comparison(tc, nil))
			if err != nil {
				return nil, err
			}
			inter = in
			return in.Program, nil
		})
	} else {
		res, attempts, err = m.execute(ctx, log, req)
	}
	s.Attempts = attempts
	s.Result = res
	if err != nil {
		return verdict.Verdict{}, err
	}

	v := verdict.Classify(res.Result, pol)
	if v.Category == verdict.MemoryLimitExceeded && v.HasConflict(verdict.TimeLimitExceeded) {
		log.Warn("memory and time ceilings both breached",
			zap.Stringer("result", res.Result),
			zap.Stringer("policy", pol),
		)
	} else if len(v.Conflicts) > 0 {
		log.Debug("ceilings breached", zap.Stringer("category", v.Category), zap.Any("conflicts", v.Conflicts))
	}

	switch v.Category {
	case verdict.RuntimeError:
		if e := excerpt(res.Stderr); e != "" {
			v.Message = v.Message + "; stderr: " + e
		}
	case verdict.Accepted:
		if inter != nil {
			if inter.Err != nil {
				return v, fmt.Errorf("interact: %w", inter.Err)
			}
			v = v.Compared(inter.Outcome.Match, inter.Outcome.Message)
			break
		}
		if tc.Expected == nil {
			break
		}
		out, err := m.comparator.Compare(ctx, comparison(tc, res.Stdout))
		if err != nil {
			return v, fmt.Errorf("compare: %w", err)
		}
		v = v.Compared(out.Match, out.Message)
	case verdict.SystemError:
		return v, errors.New(v.Message)
	}
	if inter != nil && inter.Err != nil && v.Category != verdict.Accepted {
		log.Debug("interactor failed after the program", zap.Stringer("category", v.Category), zap.Error(inter.Err))
	}
	return v, nil
}

func comparison(tc TestCase, produced []byte) Comparison {
	return Comparison{
		Input:     tc.Input,
		InputPath: tc.InputPath,
		Produced:  produced,
		Expected:  tc.Expected,
	}
}

func (m *Monitor) request(target string, tc TestCase, pol *policy.Policy) *executor.Request {
	req := &executor.Request{
		TargetPath: target,
		Args:       m.args,
		Env:        m.env,
		WorkDir:    m.workDir,
		Stdout:     executor.Capture(),
		Stderr:     executor.CaptureLimit(executor.DefaultStderrLimit),
		Policy:     pol,
	}
	switch {
	case tc.InputPath != "":
		req.Stdin = executor.StdinFile(tc.InputPath)
	case tc.Input != nil:
		req.Stdin = executor.StdinBytes(tc.Input)
	}
	return req
}

func excerpt(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > stderrExcerpt {
		b = b[:stderrExcerpt]
	}
	return string(b)
}

// Usage returns the resource usage of the session, all unknown when the
// program did not run
func (s *Session) Usage() runner.Usage {
	if s.Result == nil {
		return runner.Usage{}
	}
	return s.Result.Usage
}
