// Package pipe provides a wrapper to create a pipe and
// collect at most max bytes from the reader side
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Buffer is used to create a writable pipe and read
// at most max + 1 bytes to a buffer. Bytes beyond that are drained and
// counted so the writer never blocks on a full pipe
type Buffer struct {
	W      *os.File
	Max    int64
	Buffer *bytes.Buffer

	// Done is closed when the read end reached EOF or was closed
	Done <-chan struct{}
	// Exceeded is closed once more than Max bytes were written
	Exceeded <-chan struct{}

	r     *os.File
	total atomic.Int64
	once  sync.Once
}

// limitWriter keeps the first n bytes and notifies once more arrives
type limitWriter struct {
	buf      *bytes.Buffer
	max      int64
	total    *atomic.Int64
	exceeded chan struct{}
	notified bool
	discard  bool
	// forward receives every byte until it fails once
	forward io.Writer
}

func (w *limitWriter) Write(b []byte) (int, error) {
	total := w.total.Add(int64(len(b)))
	if w.forward != nil {
		if _, err := w.forward.Write(b); err != nil {
			w.forward = nil
		}
	}
	if keep := w.max + 1 - int64(w.buf.Len()); keep > 0 && !w.discard {
		if keep > int64(len(b)) {
			keep = int64(len(b))
		}
		w.buf.Write(b[:keep])
	}
	if total > w.max && !w.notified {
		w.notified = true
		close(w.exceeded)
	}
	return len(b), nil
}

// NewPipe create a pipe with a goroutine to copy its read-end to writer
// returns the write end and signal for finish
// caller need to close w
func NewPipe(writer io.Writer) (<-chan struct{}, *os.File, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, err
	}
	done := make(chan struct{})
	go func() {
		io.Copy(writer, r)
		close(done)
	}()
	return done, r, w, nil
}

// NewBuffer creates a os pipe, caller need to close w
// Notice: if rely on done for finish, w need be closed in parent process
func NewBuffer(max int64) (*Buffer, error) {
	return newBuffer(max, false, nil)
}

// NewCounter creates a pipe that discards everything written to it while
// counting the bytes and notifying once more than max bytes were written
func NewCounter(max int64) (*Buffer, error) {
	return newBuffer(max, true, nil)
}

// NewForwarder creates a pipe that copies everything written to it into fw
// while counting the bytes like NewCounter. Once a write to fw fails the
// remaining bytes are only counted, so the writer side never sees the error
func NewForwarder(fw io.Writer, max int64) (*Buffer, error) {
	return newBuffer(max, true, fw)
}

func newBuffer(max int64, discard bool, fw io.Writer) (*Buffer, error) {
	b := &Buffer{
		Max:    max,
		Buffer: new(bytes.Buffer),
	}
	exceeded := make(chan struct{})
	lw := &limitWriter{
		buf:      b.Buffer,
		max:      max,
		total:    &b.total,
		exceeded: exceeded,
		discard:  discard,
		forward:  fw,
	}
	done, r, w, err := NewPipe(lw)
	if err != nil {
		return nil, err
	}
	b.W, b.r, b.Done, b.Exceeded = w, r, done, exceeded
	return b, nil
}

// Total returns the number of bytes written to the pipe so far, including
// the bytes that were discarded
func (b *Buffer) Total() int64 {
	return b.total.Load()
}

// Bytes returns the collected bytes truncated to Max. It should be called
// after Done
func (b *Buffer) Bytes() []byte {
	out := b.Buffer.Bytes()
	if int64(len(out)) > b.Max {
		out = out[:b.Max]
	}
	return out
}

// Close closes the read end so the copying goroutine stops even when some
// descendant still holds the write end
func (b *Buffer) Close() error {
	var err error
	b.once.Do(func() {
		err = b.r.Close()
	})
	return err
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer[%d/%d]", b.total.Load(), b.Max)
}
