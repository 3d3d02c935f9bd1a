package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/judgecore/sandbox/executor"
	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
	"github.com/judgecore/sandbox/verdict"
)

type runFlags struct {
	policyName string
	spec       policy.Spec
	mode       string

	inputFileName, outputFileName, errorFileName string
	workPath, result                             string
}

func newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] -- program [args...]",
		Short: "Run one program and print: status time(ms) memory(KiB) exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, &f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.policyName, "policy", "p", "default", "Policy template from the configuration")
	fl.DurationVar(&f.spec.CPUTime, "tl", 0, "Override the CPU time limit")
	fl.DurationVar(&f.spec.WallTime, "rtl", 0, "Override the wall time limit")
	fl.Var(&f.spec.Memory, "ml", "Override the memory limit (e.g. 256m)")
	fl.Var(&f.spec.Output, "ol", "Override the output limit (e.g. 64m)")
	fl.Var(&f.spec.Stack, "sl", "Override the stack limit (e.g. 8m)")
	fl.Uint64Var(&f.spec.Processes, "proc", 0, "Override the process limit")
	fl.StringSliceVar(&f.spec.Allow, "allow", nil, "Override the allowed syscalls (names, patterns, @presets)")
	fl.StringSliceVar(&f.spec.Deny, "deny", nil, "Override the denied syscalls of a default allow policy")
	fl.StringVar(&f.mode, "mode", "", "Override the violation mode (record, kill)")
	fl.StringVar(&f.inputFileName, "in", "", "Set input file name")
	fl.StringVar(&f.outputFileName, "out", "", "Set output file name, default copies to stdout")
	fl.StringVar(&f.errorFileName, "err", "", "Set error file name, default copies to stderr")
	fl.StringVar(&f.workPath, "work-path", "", "Set the work path of the program")
	fl.StringVar(&f.result, "res", "stdout", "Set the file name for output the result")
	return cmd
}

func runProgram(cmd *cobra.Command, f *runFlags, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	out, closeOut, err := resultWriter(f.result)
	if err != nil {
		return err
	}
	defer closeOut()

	base, err := e.cfg.Policy(f.policyName)
	if err != nil {
		return err
	}
	f.spec.Violation = policy.ViolationMode(f.mode)
	pol, err := base.Override(&f.spec)
	if err != nil {
		return err
	}

	req := &executor.Request{
		TargetPath: args[0],
		Args:       args[1:],
		Env:        e.cfg.Judge.Env,
		WorkDir:    f.workPath,
		Stdout:     executor.Capture(),
		Stderr:     executor.Capture(),
		Policy:     pol,
	}
	if f.inputFileName != "" {
		req.Stdin = executor.StdinFile(f.inputFileName)
	}
	if f.outputFileName != "" {
		req.Stdout = executor.ToFile(f.outputFileName)
	}
	if f.errorFileName != "" {
		req.Stderr = executor.ToFile(f.errorFileName)
	}
	e.logger.Debug("run", zap.Strings("args", args), zap.Stringer("policy", pol))

	res, err := e.exec.Execute(cmd.Context(), req)
	if err != nil {
		fmt.Fprintf(out, "%d %d %d %d\n", StatusFatal, 0, 0, 0)
		return &statusError{code: 1, err: err}
	}
	os.Stdout.Write(res.Stdout)
	os.Stderr.Write(res.Stderr)

	v := verdict.Classify(res.Result, pol)
	e.logger.Debug("result",
		zap.Stringer("result", res.Result),
		zap.Stringer("verdict", v),
		zap.Duration("setUpTime", res.SetUpTime),
		zap.Duration("runningTime", res.RunningTime),
	)
	exit := 0
	if res.Kind == runner.TerminationExited {
		exit = res.ExitCode
	}
	cpu, _ := res.Usage.CPUTime.Get()
	mem, _ := res.Usage.PeakMemory.Get()
	fmt.Fprintf(out, "%d %d %d %d\n", getStatus(v.Category), int(cpu/time.Millisecond), mem.KiB(), exit)
	if v.Category == verdict.SystemError {
		return &statusError{code: 1, err: fmt.Errorf("%s", v.Message)}
	}
	return nil
}

func resultWriter(name string) (io.Writer, func(), error) {
	switch name {
	case "stdout":
		return os.Stdout, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open result file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
