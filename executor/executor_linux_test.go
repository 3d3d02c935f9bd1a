package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
)

func boolPtr(b bool) *bool { return &b }

// the test binary needs the whole Go runtime, so the tests deny the
// operations under test instead of listing the allowed ones
func testPolicy(t *testing.T, s policy.Spec) *policy.Policy {
	t.Helper()
	if s.Allow == nil && s.DefaultAllow == nil {
		s.DefaultAllow = boolPtr(true)
	}
	p, err := policy.Build(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func helperRequest(t *testing.T, mode string, pol *policy.Policy, args ...string) *Request {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	return &Request{
		TargetPath: exe,
		Args:       args,
		Env:        []string{helperEnv + "=" + mode},
		Stdout:     Capture(),
		Stderr:     Capture(),
		Policy:     pol,
	}
}

func execute(t *testing.T, req *Request) *Result {
	t.Helper()
	if testing.Short() {
		t.Skip("skip sandboxed execution in short mode")
	}
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.Execute(context.Background(), req)
	if errors.Is(err, ErrSetup) {
		t.Skipf("sandbox unavailable: %v", err)
	}
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestExecute_Echo(t *testing.T) {
	t.Parallel()
	for _, mode := range []policy.ViolationMode{policy.ViolationRecord, policy.ViolationKill} {
		req := helperRequest(t, "echo", testPolicy(t, policy.Spec{CPUTime: time.Second, Violation: mode}))
		req.Stdin = StdinBytes([]byte("1 2 3\n"))
		res := execute(t, req)
		if res.Kind != runner.TerminationExited || res.ExitCode != 0 {
			t.Fatalf("%s: unexpected result %v", mode, res.Result)
		}
		if string(res.Stdout) != "1 2 3\n" {
			t.Errorf("%s: stdout = %q", mode, res.Stdout)
		}
		if out, ok := res.Usage.OutputBytes.Get(); !ok || out != 6 {
			t.Errorf("%s: output bytes = %v", mode, res.Usage.OutputBytes)
		}
		// without cgroup a kill mode run can end before the first memory
		// sample; record mode reads it at the exit event
		for _, m := range res.Usage.Unknown() {
			if m != "peakMemory" || mode == policy.ViolationRecord {
				t.Errorf("%s: unknown metric %s", mode, m)
			}
		}
	}
}

func TestExecute_ExitCode(t *testing.T) {
	t.Parallel()
	res := execute(t, helperRequest(t, "exit", testPolicy(t, policy.Spec{}), "3"))
	if res.Kind != runner.TerminationExited || res.ExitCode != 3 {
		t.Errorf("unexpected result %v", res.Result)
	}
}

func TestExecute_Stderr(t *testing.T) {
	t.Parallel()
	res := execute(t, helperRequest(t, "stderr", testPolicy(t, policy.Spec{})))
	if string(res.Stderr) != "diagnostic" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestExecute_WallTime(t *testing.T) {
	t.Parallel()
	pol := testPolicy(t, policy.Spec{CPUTime: 100 * time.Millisecond, WallTime: 300 * time.Millisecond})
	res := execute(t, helperRequest(t, "sleep", pol))
	if res.Kind != runner.TerminationKilledByWatchdog || res.KillReason != runner.KillWallTime {
		t.Fatalf("unexpected result %v", res.Result)
	}
	wall, _ := res.Usage.WallTime.Get()
	if wall < 300*time.Millisecond || wall > 5*time.Second {
		t.Errorf("wall time = %v", wall)
	}
}

func TestExecute_Memory(t *testing.T) {
	t.Parallel()
	pol := testPolicy(t, policy.Spec{Memory: 64 * runner.MiB, WallTime: 20 * time.Second})
	res := execute(t, helperRequest(t, "alloc", pol))
	peak, _ := res.Usage.PeakMemory.Get()
	if res.KillReason != runner.KillMemory && !res.OOMKilled && peak <= 64*runner.MiB {
		t.Errorf("memory ceiling not detected: %v", res.Result)
	}
	if res.Kind == runner.TerminationExited && res.ExitCode == 0 && peak <= 64*runner.MiB {
		t.Errorf("unexpected result %v", res.Result)
	}
}

func TestExecute_Output(t *testing.T) {
	t.Parallel()
	pol := testPolicy(t, policy.Spec{Output: runner.KiB, WallTime: 20 * time.Second})
	res := execute(t, helperRequest(t, "write", pol))
	if res.Kind != runner.TerminationKilledByWatchdog || res.KillReason != runner.KillOutput {
		t.Errorf("unexpected result %v", res.Result)
	}
	if out, _ := res.Usage.OutputBytes.Get(); out <= runner.KiB {
		t.Errorf("output bytes = %v", out)
	}
	if len(res.Stdout) != int(runner.KiB) {
		t.Errorf("captured %d bytes", len(res.Stdout))
	}
}

func TestExecute_Violation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode policy.ViolationMode
		want string
	}{
		{policy.ViolationRecord, "connect"},
		{policy.ViolationKill, ""},
	}
	for _, tt := range tests {
		pol := testPolicy(t, policy.Spec{Deny: []string{"connect"}, Violation: tt.mode})
		res := execute(t, helperRequest(t, "connect", pol))
		if res.Kind != runner.TerminationKilledByFilter || res.ViolatedOperation != tt.want {
			t.Errorf("%s: unexpected result %v", tt.mode, res.Result)
		}
	}
}

func TestExecute_NoSideEffect(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "forbidden")
	pol := testPolicy(t, policy.Spec{Deny: []string{"mkdir*"}})
	res := execute(t, helperRequest(t, "mkdir", pol, dir))
	if res.Kind != runner.TerminationKilledByFilter {
		t.Errorf("unexpected result %v", res.Result)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("forbidden directory was created: %v", err)
	}
}

func TestExecute_FileSink(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "out")
	req := helperRequest(t, "echo", testPolicy(t, policy.Spec{}))
	req.Stdin = StdinBytes([]byte("to file"))
	req.Stdout = ToFile(out)
	res := execute(t, req)
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "to file" || res.Stdout != nil {
		t.Errorf("file = %q, stdout = %q", b, res.Stdout)
	}
	if n, ok := res.Usage.OutputBytes.Get(); !ok || n != 7 {
		t.Errorf("output bytes = %v", res.Usage.OutputBytes)
	}
}

func TestExecute_Concurrent(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skip sandboxed execution in short mode")
	}
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	pol := testPolicy(t, policy.Spec{CPUTime: time.Second})

	const n = 4
	var (
		wg      sync.WaitGroup
		results [n]*Result
		errs    [n]error
	)
	for i := 0; i < n; i++ {
		req := helperRequest(t, "exit", pol, string(rune('0'+i)))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Execute(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errors.Is(errs[i], ErrSetup) {
			t.Skip(errs[i])
		}
		if errs[i] != nil {
			t.Fatalf("session %d: %v", i, errs[i])
		}
		if results[i].ExitCode != i {
			t.Errorf("session %d got exit code %d", i, results[i].ExitCode)
		}
	}
}

func TestExecute_Canceled(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skip sandboxed execution in short mode")
	}
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = e.Execute(ctx, helperRequest(t, "sleep", testPolicy(t, policy.Spec{})))
	if errors.Is(err, ErrSetup) {
		t.Skip(err)
	}
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected canceled error, got %v", err)
	}
}

func TestExecute_Target(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	if err := os.WriteFile(plain, []byte("#!/bin/sh\n"), 0644); err != nil {
		t.Fatal(err)
	}
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	pol := testPolicy(t, policy.Spec{})

	tests := []struct {
		name   string
		target string
		want   error
	}{
		{"missing", filepath.Join(dir, "missing"), ErrTargetNotFound},
		{"not executable", plain, ErrTargetNotExecutable},
		{"directory", dir, ErrTargetNotExecutable},
	}
	for _, tt := range tests {
		_, err := e.Execute(context.Background(), &Request{TargetPath: tt.target, Policy: pol})
		if !errors.Is(err, tt.want) || !IsExecError(err) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
	if _, err := e.Execute(context.Background(), &Request{TargetPath: plain}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
}

func TestExecute_StdioError(t *testing.T) {
	t.Parallel()
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "missing", "file")
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{"stdin", func(r *Request) { r.Stdin = StdinFile(missing) }},
		{"stdout", func(r *Request) { r.Stdout = ToFile(missing) }},
		{"stderr", func(r *Request) { r.Stderr = ToFile(missing) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := helperRequest(t, "echo", testPolicy(t, policy.Spec{}))
			tt.mod(req)
			res, err := e.Execute(context.Background(), req)
			if !errors.Is(err, ErrSetup) || res != nil {
				t.Errorf("Execute() = %v, %v, want setup error", res, err)
			}
		})
	}
}

func TestExecute_PipeStreams(t *testing.T) {
	t.Parallel()
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pw.Close()
	if _, err := pw.Write([]byte("ping\n")); err != nil {
		t.Fatal(err)
	}
	pw.Close()

	var out bytes.Buffer
	req := helperRequest(t, "echo", testPolicy(t, policy.Spec{CPUTime: time.Second}))
	req.Stdin = StdinPipe(pr)
	req.Stdout = ToWriter(&out)
	res := execute(t, req)
	if res.Kind != runner.TerminationExited || res.ExitCode != 0 {
		t.Fatalf("unexpected result %v", res.Result)
	}
	if out.String() != "ping\n" {
		t.Errorf("forwarded %q", out.String())
	}
	if res.Stdout != nil {
		t.Errorf("forwarded stream was captured: %q", res.Stdout)
	}
	if n, ok := res.Usage.OutputBytes.Get(); !ok || n != 5 {
		t.Errorf("output bytes = %v", res.Usage.OutputBytes)
	}
	if err := pr.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("pipe source left open: %v", err)
	}
}

func TestExecute_PipeReleased(t *testing.T) {
	e, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		req  func(*os.File) *Request
	}{
		{"invalid request", func(f *os.File) *Request { return &Request{Stdin: StdinPipe(f)} }},
		{"missing target", func(f *os.File) *Request {
			return &Request{
				TargetPath: filepath.Join(t.TempDir(), "missing"),
				Stdin:      StdinPipe(f),
				Policy:     testPolicy(t, policy.Spec{}),
			}
		}},
		{"stdout setup", func(f *os.File) *Request {
			return &Request{
				TargetPath: "/bin/true",
				Stdin:      StdinPipe(f),
				Stdout:     ToFile(filepath.Join(t.TempDir(), "missing", "out")),
				Policy:     testPolicy(t, policy.Spec{}),
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, pw, err := os.Pipe()
			if err != nil {
				t.Fatal(err)
			}
			defer pw.Close()
			if _, err := e.Execute(context.Background(), tt.req(pr)); err == nil {
				t.Fatal("expected an error")
			}
			if err := pr.Close(); !errors.Is(err, os.ErrClosed) {
				t.Errorf("pipe source left open: %v", err)
			}
		})
	}
}

// The child starts as a copy of this process, so a large heap here must
// not show up as memory of the program
func TestExecute_LargeParent(t *testing.T) {
	if testing.Short() {
		t.Skip("skip sandboxed execution in short mode")
	}
	ballast := make([]byte, 300<<20)
	for i := 0; i < len(ballast); i += 4096 {
		ballast[i] = 1
	}
	defer runtime.KeepAlive(ballast)

	for _, mode := range []policy.ViolationMode{policy.ViolationRecord, policy.ViolationKill} {
		pol := testPolicy(t, policy.Spec{Memory: 128 * runner.MiB, WallTime: 10 * time.Second, Violation: mode})
		res := execute(t, helperRequest(t, "exit", pol, "0"))
		if res.Kind != runner.TerminationExited || res.ExitCode != 0 || res.OOMKilled {
			t.Errorf("%s: unexpected result %v", mode, res.Result)
		}
		if peak, ok := res.Usage.PeakMemory.Get(); ok && peak > 128*runner.MiB {
			t.Errorf("%s: peak memory %v includes the parent", mode, peak)
		}
	}
}
