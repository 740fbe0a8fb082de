package runtime

import (
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/dashrun/dash/bufpipe"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

// spawnAll runs the serial, non-blocking spawn phase (spec.md §4.5.3): read
// and write nodes are no-ops here (their files are opened during
// redirection), cmd nodes start their child process with every standard
// descriptor piped and publish the three descriptors to the pipe map.
//
// Every remote-access FIFO this sub-program's write nodes will feed must
// exist on disk before its consuming cmd node starts — a cmd that opens a
// FIFO argument that doesn't exist yet fails immediately instead of
// blocking for its writer the way a real named pipe would — so they're all
// created up front, before any cmd node is spawned.
func (e *Engine) spawnAll(prog *graph.Program, order []stream.NodeId) error {
	if err := e.ensureFifos(prog); err != nil {
		return err
	}
	for _, id := range order {
		n, ok := prog.GetNode(id)
		if !ok {
			return errors.Errorf("spawn: node %d vanished from program", id)
		}
		c, ok := n.(*graph.Cmd)
		if !ok {
			continue // Read/Write nodes: no-op during spawn.
		}
		if err := e.spawnCmd(id, c); err != nil {
			return errors.Wrapf(err, "spawning node %d (%s)", id, c.Name)
		}
	}
	return nil
}

// ensureFifos creates the on-disk special file for every fifo destination
// among prog's write nodes (idempotent: an existing fifo from a prior,
// partially-run attempt is left in place).
func (e *Engine) ensureFifos(prog *graph.Program) error {
	for _, n := range prog.Nodes() {
		w, ok := n.(*graph.Write)
		if !ok || w.Output.Kind != stream.KindFifo {
			continue
		}
		path := w.Output.Fifo.Path
		if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, syscall.EEXIST) {
			return errors.Wrapf(err, "creating fifo %s", path)
		}
	}
	return nil
}

func (e *Engine) spawnCmd(id stream.NodeId, c *graph.Cmd) error {
	cmd := exec.Command(c.Name, c.ResolveArgs()...)
	if c.WorkDir != "" {
		cmd.Dir = c.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "opening stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "opening stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "opening stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "starting process")
	}
	nodesSpawned.Inc()

	if err := e.Pipes.Insert(stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: id, Kind: stream.Stdin}, OutputHandle{Writer: stdin}); err != nil {
		return err
	}
	if err := e.Pipes.Insert(stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: id, Kind: stream.Stdout}, OutputHandle{Reader: stdout}); err != nil {
		return err
	}
	if err := e.Pipes.Insert(stream.HandleIdentifier{ProgramID: e.ProgramID, NodeID: id, Kind: stream.Stderr}, OutputHandle{Reader: stderr}); err != nil {
		return err
	}

	if c.HasStdout() {
		if err := e.ensureBufferedPipe(id, stream.Stdout, c.Stdout()); err != nil {
			return err
		}
	}
	if c.HasStderr() {
		if err := e.ensureBufferedPipe(id, stream.Stderr, c.Stderr()); err != nil {
			return err
		}
	}

	e.registerProcess(id, cmd)
	return nil
}

// ensureBufferedPipe creates the on-disk scratch file for a bufferable
// local Pipe output and registers both channel-map ends (spec.md §4.1,
// §4.2): the producing node's stdout/stderr worker removes the writer end,
// the consuming node's stdin worker removes the reader end. A bufferable
// Net output is handled entirely inside deliverOutput instead — it needs no
// channel-map entry since both ends of that buffering live in the same
// sending worker.
func (e *Engine) ensureBufferedPipe(producer stream.NodeId, kind stream.IoKind, out stream.DashStream) error {
	if out.Kind != stream.KindPipe || !out.Bufferable() {
		return nil
	}
	path := filepath.Join(e.ScratchDir, bufpipe.ScratchFileName(int64(producer), kind.String()))
	pipe, err := bufpipe.New(path)
	if err != nil {
		return errors.Wrapf(err, "creating buffered pipe for node %d %s", producer, kind)
	}
	end := ChannelEnd{Pipe: pipe}
	if err := e.Channels.Insert(ChannelKey(producer, kind, ChannelWriter), end); err != nil {
		return err
	}
	if err := e.Channels.Insert(ChannelKey(producer, kind, ChannelReader), end); err != nil {
		return err
	}
	return nil
}
