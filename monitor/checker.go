package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/judgecore/sandbox/executor"
	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
)

// Checker and interactor exit codes
const (
	CheckerAccepted     = 0
	CheckerWrongAnswer  = 1
	CheckerPresentation = 2
)

// maxReport bounds the checker report attached to the verdict message
const maxReport = 4 << 10

var errChecker = errors.New("checker failed")

// Checker compares through an external checker program, invoked as
//
//	checker <input> <produced> <expected> <report>
//
// Exit code 0 is a match, 1 and 2 are a mismatch. Anything else, including a
// resource violation of the checker itself, fails the comparison. The report
// file content becomes the message.
type Checker struct {
	Runner Runner
	Path   string
	Policy *policy.Policy

	// TempDir holds the files passed to the checker. Empty uses the
	// default temporary directory
	TempDir string
}

// Compare implements Comparator
func (c *Checker) Compare(ctx context.Context, cmp Comparison) (ret Outcome, err error) {
	dir, err := os.MkdirTemp(c.TempDir, "checker-")
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", errChecker, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(func() error {
		return os.RemoveAll(dir)
	}))

	input := cmp.InputPath
	if input == "" {
		input = filepath.Join(dir, "input")
		if err := os.WriteFile(input, cmp.Input, 0o644); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", errChecker, err)
		}
	}
	produced := filepath.Join(dir, "produced")
	expected := filepath.Join(dir, "expected")
	report := filepath.Join(dir, "report")
	for _, f := range []struct {
		path string
		b    []byte
	}{{produced, cmp.Produced}, {expected, cmp.Expected}, {report, nil}} {
		if err := os.WriteFile(f.path, f.b, 0o644); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", errChecker, err)
		}
	}

	res, err := c.Runner.Execute(ctx, &executor.Request{
		TargetPath: c.Path,
		Args:       []string{input, produced, expected, report},
		Stderr:     executor.CaptureLimit(maxReport),
		Policy:     c.Policy,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", errChecker, err)
	}

	msg, err := readReport(report)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", errChecker, err)
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(res.Stderr))
	}

	return judged(res, msg, errChecker)
}

// judged maps the exit code of a checker or interactor to the outcome
func judged(res *executor.Result, msg string, fail error) (Outcome, error) {
	if res.Kind != runner.TerminationExited {
		return Outcome{}, fmt.Errorf("%w: %v", fail, res.Result)
	}
	switch res.ExitCode {
	case CheckerAccepted:
		return Outcome{Match: true, Message: msg}, nil
	case CheckerWrongAnswer, CheckerPresentation:
		return Outcome{Message: msg}, nil
	default:
		return Outcome{}, fmt.Errorf("%w: exit code %d: %s", fail, res.ExitCode, msg)
	}
}

func readReport(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxReport))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(b)), nil
}
