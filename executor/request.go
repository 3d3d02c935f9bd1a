package executor

import (
	"io"
	"os"
	"syscall"

	"github.com/judgecore/sandbox/policy"
	"github.com/judgecore/sandbox/runner"
)

// SourceKind selects where standard input comes from
type SourceKind int

// Sources
const (
	SourceNone SourceKind = iota // /dev/null
	SourceBytes
	SourceFile
	SourcePipe
)

// Source is the standard input of the program
type Source struct {
	Kind SourceKind
	Data []byte
	Path string
	File *os.File
}

// StdinBytes feeds b through a sealed in-memory file
func StdinBytes(b []byte) Source {
	return Source{Kind: SourceBytes, Data: b}
}

// StdinFile feeds the file at path
func StdinFile(path string) Source {
	return Source{Kind: SourceFile, Path: path}
}

// StdinPipe feeds the read end f of a pipe. Execute takes ownership of f: it
// is closed once the program started or the request failed, so the writer
// sees EPIPE after the program and its descendants exit
func StdinPipe(f *os.File) Source {
	return Source{Kind: SourcePipe, File: f}
}

// DefaultStderrLimit bounds captured stderr when the sink sets no limit
const DefaultStderrLimit = 64 * runner.KiB

// SinkKind selects where an output stream goes
type SinkKind int

// Sinks
const (
	SinkDiscard SinkKind = iota
	SinkCapture
	SinkFile
	SinkWriter
)

// Sink is an output stream of the program
type Sink struct {
	Kind   SinkKind
	Path   string
	Writer io.Writer
	// Limit bounds a captured stream. Zero uses the policy output ceiling
	// for stdout and DefaultStderrLimit for stderr
	Limit runner.Size
}

// Capture collects the stream in memory
func Capture() Sink {
	return Sink{Kind: SinkCapture}
}

// CaptureLimit collects at most n bytes of the stream in memory
func CaptureLimit(n runner.Size) Sink {
	return Sink{Kind: SinkCapture, Limit: n}
}

// ToFile writes the stream to the file at path, truncating it
func ToFile(path string) Sink {
	return Sink{Kind: SinkFile, Path: path}
}

// ToWriter copies the stream into w as it is produced. The bytes are counted
// and limited like a captured stream but not kept. Execute returns after the
// last byte was written to w; a failing w stops the copy without affecting
// the program
func ToWriter(w io.Writer) Sink {
	return Sink{Kind: SinkWriter, Writer: w}
}

// Discard drops the stream, counting its bytes
func Discard() Sink {
	return Sink{}
}

// Request is one execution of a program. It is not modified by Execute
type Request struct {
	// TargetPath is the program to run, resolved inside Chroot if set
	TargetPath string
	// Args are the arguments after argv[0], which is TargetPath
	Args []string
	Env  []string

	WorkDir string
	Chroot  string

	Stdin  Source
	Stdout Sink
	Stderr Sink

	// Credential and CloneFlags require privileges (root or a user
	// namespace in CloneFlags)
	Credential *syscall.Credential
	CloneFlags uintptr

	Policy *policy.Policy
}

// Result is the outcome of Execute
type Result struct {
	runner.Result
	Stdout []byte
	Stderr []byte
}
