// Package bufpipe implements the on-disk buffered pipe: a many-to-one merge
// facility used to fan-in multiple producers into one consumer's stdin
// without interleaving (spec.md §4.2).
package bufpipe

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// pollInterval is how long the reader sleeps between non-blocking read
// attempts that returned zero bytes while the writer is still active.
const pollInterval = 2 * time.Millisecond

// Pipe is a buffered pipe between two co-located threads: a regular
// scratch file plus a one-shot "writer is done" signal.
type Pipe struct {
	Path string

	doneCh   chan struct{}
	closeDone sync.Once
}

// New creates the scratch file at path (owner read/write, truncated if
// present) and returns a Pipe ready for one writer and one reader.
func New(path string) (*Pipe, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "creating buffered pipe file %s", path)
	}
	_ = f.Close()
	return &Pipe{Path: path, doneCh: make(chan struct{}, 1)}, nil
}

// ScratchFileName returns the on-disk name dash gives a buffered-pipe file:
// "<node>_<iokind>", per spec.md §4.2.
func ScratchFileName(nodeID int64, ioKind string) string {
	return fmt.Sprintf("%d_%s", nodeID, ioKind)
}

// Writer opens the scratch file for appending writes.
func (p *Pipe) Writer() (io.WriteCloser, error) {
	f, err := os.OpenFile(p.Path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening buffered pipe %s for write", p.Path)
	}
	return f, nil
}

// SignalDone marks the writer finished; idempotent.
func (p *Pipe) SignalDone() {
	p.closeDone.Do(func() { p.doneCh <- struct{}{} })
}

// Reader returns a Reader draining this pipe's scratch file.
func (p *Pipe) Reader() (*Reader, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening buffered pipe %s for read", p.Path)
	}
	return &Reader{f: f, pipe: p}, nil
}

// Remove deletes the scratch file; called at program teardown.
func (p *Pipe) Remove() error { return os.Remove(p.Path) }

// Reader drains a Pipe's scratch file: a non-blocking read attempt that
// yields and retries while the writer hasn't signalled done, and that
// treats any zero-length read after the done signal as EOF.
type Reader struct {
	f       *os.File
	pipe    *Pipe
	signalled bool
}

func (r *Reader) Read(b []byte) (int, error) {
	for {
		n, err := r.f.Read(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
		// n == 0: either true EOF-so-far, or nothing written yet.
		if r.signalled {
			return 0, io.EOF
		}
		select {
		case <-r.pipe.doneCh:
			// Put the signal back so a concurrent second reader (there should
			// only ever be one, but this keeps Reader() safe to call twice)
			// also observes it, then remember locally.
			r.pipe.doneCh <- struct{}{}
			r.signalled = true
		default:
			time.Sleep(pollInterval)
		}
	}
}

func (r *Reader) Close() error { return r.f.Close() }
