package executor

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/judgecore/sandbox/pkg/memfd"
	"github.com/judgecore/sandbox/pkg/pipe"
	"github.com/judgecore/sandbox/runner"
)

// unlimited capture still needs a finite buffer, output beyond it is only
// counted
const maxCapture = runner.GiB

// stdio holds the parent side of the standard streams of one execution
type stdio struct {
	files  []*os.File // child ends, closed in the parent once started
	stdout *pipe.Buffer
	stderr *pipe.Buffer
	// for a file sink the size is read back from outPath
	outPath string
	// captured stdout kills the program once it exceeds the ceiling
	limited bool
}

func (s *stdio) fds() []uintptr {
	ret := make([]uintptr, len(s.files))
	for i, f := range s.files {
		ret[i] = f.Fd()
	}
	return ret
}

// closeChild closes the child ends so that EOF arrives once every
// descendant exited
func (s *stdio) closeChild() error {
	var err error
	for _, f := range s.files {
		err = multierr.Append(err, f.Close())
	}
	s.files = nil
	return err
}

// drain waits for the output copiers. Descendants outside the process
// group may still hold the pipes, so they are closed after grace
func (s *stdio) drain(grace time.Duration) {
	t := time.NewTimer(grace)
	defer t.Stop()
	expired := false
	for _, b := range []*pipe.Buffer{s.stdout, s.stderr} {
		if b == nil {
			continue
		}
		if !expired {
			select {
			case <-b.Done:
				continue
			case <-t.C:
				expired = true
			}
		}
		// the deadline passed, stop the copier unless it already finished
		b.Close()
		<-b.Done
	}
}

func (s *stdio) close() error {
	err := s.closeChild()
	for _, b := range []*pipe.Buffer{s.stdout, s.stderr} {
		if b != nil {
			err = multierr.Append(err, b.Close())
		}
	}
	return err
}

// prepareStdio opens the standard streams of req. On error every stream
// opened so far is closed again
func prepareStdio(req *Request) (_ *stdio, err error) {
	s := new(stdio)
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	in, err := openSource(req.Stdin)
	if err != nil {
		return nil, newError("stdin", ErrSetup, err)
	}
	s.files = append(s.files, in)

	outLimit := req.Stdout.Limit
	if outLimit == 0 {
		outLimit = req.Policy.Output()
	}
	out, buf, err := openSink(req.Stdout, outLimit)
	if err != nil {
		return nil, newError("stdout", ErrSetup, err)
	}
	s.files = append(s.files, out)
	s.stdout = buf
	s.limited = buf != nil && outLimit > 0
	if req.Stdout.Kind == SinkFile {
		s.outPath = req.Stdout.Path
	}

	errLimit := req.Stderr.Limit
	if errLimit == 0 {
		errLimit = DefaultStderrLimit
	}
	errFile, errBuf, err := openSink(req.Stderr, errLimit)
	if err != nil {
		return nil, newError("stderr", ErrSetup, err)
	}
	s.files = append(s.files, errFile)
	s.stderr = errBuf
	return s, nil
}

func openSource(src Source) (*os.File, error) {
	switch src.Kind {
	case SourceNone:
		return os.Open(os.DevNull)
	case SourceBytes:
		return memfd.FromBytes("stdin", src.Data)
	case SourceFile:
		return os.Open(src.Path)
	case SourcePipe:
		if src.File == nil {
			return nil, fmt.Errorf("pipe source without file")
		}
		return src.File, nil
	}
	return nil, fmt.Errorf("unknown source kind %d", src.Kind)
}

// releaseSource closes a pipe source handed over to a request that never
// reached prepareStdio
func releaseSource(src Source) {
	if src.Kind == SourcePipe && src.File != nil {
		src.File.Close()
	}
}

// openSink returns the child end and, for every sink but a file, the buffer
// reading the parent end
func openSink(sink Sink, limit runner.Size) (*os.File, *pipe.Buffer, error) {
	var (
		b   *pipe.Buffer
		err error
	)
	switch sink.Kind {
	case SinkFile:
		f, err := os.OpenFile(sink.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		return f, nil, err

	case SinkCapture:
		if limit == 0 || limit > maxCapture {
			limit = maxCapture
		}
		b, err = pipe.NewBuffer(int64(limit))

	case SinkDiscard:
		if limit == 0 {
			limit = maxCapture
		}
		b, err = pipe.NewCounter(int64(limit))

	case SinkWriter:
		if sink.Writer == nil {
			return nil, nil, fmt.Errorf("writer sink without writer")
		}
		if limit == 0 {
			limit = maxCapture
		}
		b, err = pipe.NewForwarder(sink.Writer, int64(limit))

	default:
		return nil, nil, fmt.Errorf("unknown sink kind %d", sink.Kind)
	}
	if err != nil {
		return nil, nil, err
	}
	return b.W, b, nil
}

// outputBytes returns the bytes written to stdout
func (s *stdio) outputBytes() runner.Metric[runner.Size] {
	if s.stdout != nil {
		return runner.Known(runner.Size(s.stdout.Total()))
	}
	if s.outPath != "" {
		if fi, err := os.Stat(s.outPath); err == nil {
			return runner.Known(runner.Size(fi.Size()))
		}
	}
	return runner.Unknown[runner.Size]()
}
