package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/judgecore/sandbox/executor"
	"github.com/judgecore/sandbox/policy"
)

var errInteractor = errors.New("interactor failed")

// Interactor judges programs that talk with a second program instead of
// reading a fixed input. The interactor is invoked as
//
//	interactor <input> <expected> <report>
//
// with its standard output connected to the standard input of the program
// and the program's standard output connected to its standard input. The
// exit code and report file decide like those of a Checker.
type Interactor struct {
	// Runner executes the interactor. Nil uses the runner of the program
	Runner Runner
	Path   string
	Env    []string
	Policy *policy.Policy

	// TempDir holds the files passed to the interactor. Empty uses the
	// default temporary directory
	TempDir string
}

// Interaction is the outcome of one Interact call
type Interaction struct {
	Program *executor.Result
	Outcome Outcome
	// Err is set when the interactor failed; Program stays valid
	Err error
}

// Interact runs the program of req against the interactor, both through
// their runners and at the same time. The standard input and output of req
// are replaced by the pipes to the interactor. The returned error is set
// when the program could not be run or the interactor could not be
// spawned
func (it *Interactor) Interact(ctx context.Context, prog Runner, req *executor.Request, cmp Comparison) (ret *Interaction, err error) {
	dir, err := os.MkdirTemp(it.TempDir, "interactor-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInteractor, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(func() error {
		return os.RemoveAll(dir)
	}))

	input := cmp.InputPath
	if input == "" {
		input = filepath.Join(dir, "input")
		if err := os.WriteFile(input, cmp.Input, 0o644); err != nil {
			return nil, fmt.Errorf("%w: %w", errInteractor, err)
		}
	}
	expected := filepath.Join(dir, "expected")
	report := filepath.Join(dir, "report")
	for _, f := range []struct {
		path string
		b    []byte
	}{{expected, cmp.Expected}, {report, nil}} {
		if err := os.WriteFile(f.path, f.b, 0o644); err != nil {
			return nil, fmt.Errorf("%w: %w", errInteractor, err)
		}
	}

	// program stdout to interactor stdin
	toR, toW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInteractor, err)
	}
	// interactor stdout to program stdin
	fromR, fromW, err := os.Pipe()
	if err != nil {
		toR.Close()
		toW.Close()
		return nil, fmt.Errorf("%w: %w", errInteractor, err)
	}
	// the read ends belong to the executions, closing twice is harmless
	defer func() {
		for _, f := range []*os.File{toR, toW, fromR, fromW} {
			f.Close()
		}
	}()

	preq := *req
	preq.Stdin = executor.StdinPipe(fromR)
	preq.Stdout = executor.ToWriter(toW)
	ireq := &executor.Request{
		TargetPath: it.Path,
		Args:       []string{input, expected, report},
		Env:        it.Env,
		Stdin:      executor.StdinPipe(toR),
		Stdout:     executor.ToWriter(fromW),
		Stderr:     executor.CaptureLimit(maxReport),
		Policy:     it.Policy,
	}
	r := it.Runner
	if r == nil {
		r = prog
	}

	var (
		ires *executor.Result
		ierr error
		done = make(chan struct{})
	)
	go func() {
		defer close(done)
		ires, ierr = r.Execute(ctx, ireq)
		// the program reads EOF once the interactor is gone
		fromW.Close()
	}()
	pres, perr := prog.Execute(ctx, &preq)
	toW.Close()
	<-done

	if perr != nil {
		return nil, perr
	}
	if ierr != nil && executor.IsRetryable(ierr) {
		return nil, fmt.Errorf("%w: %w", errInteractor, ierr)
	}

	ret = &Interaction{Program: pres}
	if ierr != nil {
		ret.Err = fmt.Errorf("%w: %w", errInteractor, ierr)
		return ret, nil
	}
	msg, rerr := readReport(report)
	if rerr != nil {
		ret.Err = fmt.Errorf("%w: %w", errInteractor, rerr)
		return ret, nil
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(ires.Stderr))
	}
	ret.Outcome, ret.Err = judged(ires, msg, errInteractor)
	return ret, nil
}
