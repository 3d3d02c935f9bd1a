package main

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/judgecore/sandbox/config"
	"github.com/judgecore/sandbox/monitor"
	"github.com/judgecore/sandbox/verdict"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type judgeFlags struct {
	policyName string
	inputs     []string
	expected   []string
	checker    string
	comparator string
}

// caseVerdict is one line of judge output
type caseVerdict struct {
	Case string `json:"case"`
	verdict.Verdict
}

func newJudgeCommand() *cobra.Command {
	var f judgeFlags
	cmd := &cobra.Command{
		Use:   "judge [flags] -- program [args...]",
		Short: "Evaluate test cases and print one verdict per line as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return judge(cmd, &f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.policyName, "policy", "p", config.DefaultPolicy, "Policy template from the configuration")
	fl.StringArrayVarP(&f.inputs, "input", "i", nil, "Input file of a test case, repeatable")
	fl.StringArrayVarP(&f.expected, "expected", "e", nil, "Expected output file, one per input")
	fl.StringVar(&f.checker, "checker", "", "Checker program, overrides the configured comparator")
	fl.StringVar(&f.comparator, "comparator", "", "Comparator (lines, exact)")
	return cmd
}

func judge(cmd *cobra.Command, f *judgeFlags, args []string) error {
	if len(f.expected) > 0 && len(f.expected) != len(f.inputs) {
		return fmt.Errorf("%d expected outputs for %d inputs", len(f.expected), len(f.inputs))
	}
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	if f.checker != "" {
		e.cfg.Judge.Checker = f.checker
	}
	if f.comparator != "" {
		e.cfg.Judge.Comparator = f.comparator
	}
	cmp, err := comparator(e)
	if err != nil {
		return err
	}
	pol, err := e.cfg.Policy(f.policyName)
	if err != nil {
		return err
	}

	cases, err := testCases(f)
	if err != nil {
		return err
	}

	m, err := monitor.New(monitor.Options{
		Runner:      e.exec,
		Policy:      pol,
		Comparator:  cmp,
		Args:        args[1:],
		Env:         e.cfg.Judge.Env,
		Retry:       e.cfg.Retry,
		Concurrency: e.cfg.Concurrency,
		Logger:      e.logger.Named("monitor"),
		Metrics:     e.metrics,
	})
	if err != nil {
		return err
	}

	vs, runErr := m.RunAll(cmd.Context(), args[0], cases)
	enc := json.NewEncoder(os.Stdout)
	for i, v := range vs {
		if err := enc.Encode(caseVerdict{Case: cases[i].Name, Verdict: v}); err != nil {
			return err
		}
	}
	if runErr != nil {
		return &statusError{code: 2, err: runErr}
	}
	return nil
}

func comparator(e *env) (monitor.Comparator, error) {
	if e.cfg.Judge.Checker != "" {
		p, err := e.cfg.Policy(e.cfg.Judge.CheckerPolicy)
		if err != nil {
			return nil, err
		}
		return &monitor.Checker{Runner: e.exec, Path: e.cfg.Judge.Checker, Policy: p}, nil
	}
	switch e.cfg.Judge.Comparator {
	case config.ComparatorExact:
		return monitor.Exact{}, nil
	case config.ComparatorLines, "":
		return monitor.Lines{}, nil
	default:
		return nil, fmt.Errorf("unknown comparator %q", e.cfg.Judge.Comparator)
	}
}

func testCases(f *judgeFlags) ([]monitor.TestCase, error) {
	if len(f.inputs) == 0 {
		return []monitor.TestCase{{Name: "stdin"}}, nil
	}
	cases := make([]monitor.TestCase, len(f.inputs))
	for i, in := range f.inputs {
		cases[i] = monitor.TestCase{Name: filepath.Base(in), InputPath: in}
		if len(f.expected) == 0 {
			continue
		}
		b, err := os.ReadFile(f.expected[i])
		if err != nil {
			return nil, err
		}
		cases[i].Expected = b
	}
	return cases, nil
}
