package runtime

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dashrun/dash/bufpipe"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

const claimPollInterval = 2 * time.Millisecond
const claimTimeout = 30 * time.Second

// removeWithRetry polls Remove until the key appears or claimTimeout elapses:
// a consumer's redirection worker commonly starts before its producer has
// published the handle it needs (spawn and redirect run concurrently across
// nodes), so a bare Remove would spuriously fail.
func removeWithRetry[K comparable, V any](m *SharedMap[K, V], key K) (V, error) {
	deadline := time.Now().Add(claimTimeout)
	for {
		v, err := m.Remove(key)
		if err == nil {
			return v, nil
		}
		if time.Now().After(deadline) {
			return v, errors.Wrapf(err, "timed out waiting for %v", key)
		}
		time.Sleep(claimPollInterval)
	}
}

// copyTolerant behaves like io.Copy but treats a broken pipe or connection
// reset while writing as a clean EOF: downstream processes (e.g. `head`)
// are allowed to close their stdin early (spec.md §4.5.3).
func copyTolerant(kind string, dst io.Writer, src io.Reader) error {
	n, err := io.Copy(dst, src)
	bytesRedirected.WithLabelValues(kind).Add(float64(n))
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return nil
	}
	return err
}

func (e *Engine) redirectNode(prog *graph.Program, n graph.Node) error {
	switch v := n.(type) {
	case *graph.Cmd:
		return e.redirectCmd(v)
	case *graph.Read:
		return e.redirectRead(v)
	case *graph.Write:
		return e.redirectWrite(v)
	default:
		return errors.Errorf("node %d: unknown node kind", n.ID())
	}
}

// claimReader resolves an input DashStream (the producer side of an edge)
// to a readable handle, per the stdin-worker rules of spec.md §4.5.3.
func (e *Engine) claimReader(d stream.DashStream) (io.ReadCloser, error) {
	switch d.Kind {
	case stream.KindNet:
		conn, err := removeWithRetry(e.Streams, d.Net)
		if err != nil {
			return nil, errors.Wrapf(err, "claiming net stream for node %d", d.Net.Right)
		}
		return conn, nil
	case stream.KindPipe:
		if d.Bufferable() {
			end, err := removeWithRetry(e.Channels, ChannelKey(d.Pipe.Left, d.Pipe.OutputKind, ChannelReader))
			if err != nil {
				return nil, errors.Wrapf(err, "claiming buffered pipe reader for node %d", d.Pipe.Left)
			}
			return end.Pipe.Reader()
		}
		handle, err := removeWithRetry(e.Pipes, stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: d.Pipe.Left, Kind: d.Pipe.OutputKind})
		if err != nil {
			return nil, errors.Wrapf(err, "claiming pipe handle for node %d", d.Pipe.Left)
		}
		return handle.Reader, nil
	case stream.KindFile:
		f, err := os.OpenFile(d.File.Path, d.File.Mode.OpenFlags(), 0o600)
		if err != nil {
			return nil, errors.Wrapf(err, "opening file stream %s", d.File.Path)
		}
		return f, nil
	default:
		return nil, errors.Errorf("stream %s is not a readable input", d)
	}
}

// drainInputs copies every input stream into dst, strictly in order: each
// reader is fully drained (EOF) before the next input starts, which is what
// gives buffered-pipe fan-in its deterministic ordering (spec.md §4.2).
func (e *Engine) drainInputs(kind string, dst io.Writer, inputs []stream.DashStream) error {
	for _, in := range inputs {
		r, err := e.claimReader(in)
		if err != nil {
			return err
		}
		err = copyTolerant(kind, dst, r)
		_ = r.Close()
		if err != nil {
			return errors.Wrapf(err, "draining input %s", in)
		}
	}
	return nil
}

// deliverOutput sends src's bytes to the destination named by d (an output
// DashStream): Net streams are dialed/ack'd sockets already sitting in the
// stream map; Pipe streams left unbuffered are simply published for the
// downstream stdin worker to claim directly from the pipe map (no copy
// needed here since the pipe map already holds the live process handle).
func (e *Engine) deliverOutput(kind string, ownerID stream.NodeId, d stream.DashStream, src io.ReadCloser) error {
	switch d.Kind {
	case stream.KindNet:
		defer src.Close()
		conn, err := removeWithRetry(e.Streams, d.Net)
		if err != nil {
			return errors.Wrapf(err, "claiming net stream for node %d", ownerID)
		}
		defer closeWrite(conn)
		if !d.Bufferable() {
			return copyTolerant(kind, conn, src)
		}
		path := filepath.Join(e.ScratchDir, bufpipe.ScratchFileName(int64(ownerID), kind))
		pipe, err := bufpipe.New(path)
		if err != nil {
			return errors.Wrapf(err, "creating send-side buffered pipe for node %d", ownerID)
		}
		defer func() { _ = pipe.Remove() }()
		var fill errgroup.Group
		fill.Go(func() error {
			w, err := pipe.Writer()
			if err != nil {
				return err
			}
			err = copyTolerant(kind, w, src)
			_ = w.Close()
			pipe.SignalDone()
			return err
		})
		reader, err := pipe.Reader()
		if err != nil {
			return err
		}
		sendErr := copyTolerant(kind, conn, reader)
		_ = reader.Close()
		if err := fill.Wait(); err != nil {
			return err
		}
		return sendErr
	case stream.KindPipe:
		// Non-bufferable: publish src into the pipe map for the downstream
		// stdin worker to claim directly (cmd nodes already have their raw
		// handle there from the spawn phase and never reach this branch —
		// see needsWorker in redirectCmd — so this only fires for read
		// nodes, which have no spawn-time registration of their own).
		if !d.Bufferable() {
			return e.Pipes.Insert(stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: ownerID, Kind: ioKindOf(kind)}, OutputHandle{Reader: src})
		}
		end, err := removeWithRetry(e.Channels, ChannelKey(ownerID, ioKindOf(kind), ChannelWriter))
		if err != nil {
			return errors.Wrapf(err, "claiming buffered pipe writer for node %d", ownerID)
		}
		defer src.Close()
		w, err := end.Pipe.Writer()
		if err != nil {
			return err
		}
		err = copyTolerant(kind, w, src)
		_ = w.Close()
		end.Pipe.SignalDone()
		return err
	default:
		defer src.Close()
		return errors.Errorf("node %d: output stream %s is not deliverable", ownerID, d)
	}
}

func ioKindOf(kind string) stream.IoKind {
	if kind == stream.Stderr.String() {
		return stream.Stderr
	}
	return stream.Stdout
}

func closeWrite(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
		return
	}
	_ = conn.Close()
}

// redirectCmd runs up to three workers for a cmd node: a stdin worker that
// feeds the child's inputs in order, and stdout/stderr workers that deliver
// its outputs (spec.md §4.5.3). All three must join for the node to be done.
func (e *Engine) redirectCmd(c *graph.Cmd) error {
	var g errgroup.Group

	g.Go(func() error {
		handle, err := removeWithRetry(e.Pipes, stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: c.ID(), Kind: stream.Stdin})
		if err != nil {
			return err
		}
		defer handle.Writer.Close()
		return e.drainInputs(stream.Stdin.String(), handle.Writer, c.Stdin())
	})

	// A non-bufferable Pipe output needs no worker at all: its raw handle
	// stays in the pipe map (published during spawn) for the downstream
	// node's stdin worker to claim directly, so removing it here would only
	// race that claim.
	needsWorker := func(d stream.DashStream) bool {
		return d.Kind != stream.KindPipe || d.Bufferable()
	}

	if c.HasStdout() && needsWorker(c.Stdout()) {
		g.Go(func() error {
			handle, err := removeWithRetry(e.Pipes, stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: c.ID(), Kind: stream.Stdout})
			if err != nil {
				return err
			}
			return e.deliverOutput(stream.Stdout.String(), c.ID(), c.Stdout(), handle.Reader)
		})
	}
	if c.HasStderr() && needsWorker(c.Stderr()) {
		g.Go(func() error {
			handle, err := removeWithRetry(e.Pipes, stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: c.ID(), Kind: stream.Stderr})
			if err != nil {
				return err
			}
			return e.deliverOutput(stream.Stderr.String(), c.ID(), c.Stderr(), handle.Reader)
		})
	}

	return g.Wait()
}

// redirectRead opens the source file and delivers its contents downstream;
// read nodes have no process to spawn, so the file is opened here rather
// than during the spawn phase.
func (e *Engine) redirectRead(r *graph.Read) error {
	f, err := os.Open(r.Input.Path)
	if err != nil {
		return errors.Wrapf(err, "read node %d: opening %s", r.ID(), r.Input.Path)
	}
	if !r.HasStdout() {
		return f.Close()
	}
	return e.deliverOutput(stream.Stdout.String(), r.ID(), r.Stdout(), f)
}

// redirectWrite opens the destination and drains every input into it in
// order.
func (e *Engine) redirectWrite(w *graph.Write) error {
	dst, err := e.openWriteDestination(w.Output)
	if err != nil {
		return err
	}
	defer dst.Close()
	return e.drainInputs(stream.Stdout.String(), dst, w.Stdin())
}

func (e *Engine) openWriteDestination(d stream.DashStream) (io.WriteCloser, error) {
	switch d.Kind {
	case stream.KindFile:
		f, err := os.OpenFile(d.File.Path, d.File.Mode.OpenFlags(), 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening write destination %s", d.File.Path)
		}
		return f, nil
	case stream.KindFifo:
		f, err := os.OpenFile(d.Fifo.Path, os.O_WRONLY, 0o600)
		if err != nil {
			return nil, errors.Wrapf(err, "opening fifo %s", d.Fifo.Path)
		}
		return f, nil
	case stream.KindStdout:
		return nopCloser{os.Stdout}, nil
	case stream.KindStderr:
		return nopCloser{os.Stderr}, nil
	default:
		return nil, errors.Errorf("write destination %s is not a file, fifo, stdout, or stderr", d)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
