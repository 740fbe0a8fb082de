package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

// SplitByMachine partitions nodes by assigned location (spec.md §4.3a).
// For each partition it builds a sub-program containing those nodes and
// every edge whose both endpoints are in the partition. Node ids are
// preserved across partitions so cross-machine streams keep consistent
// endpoints.
func SplitByMachine(prog *Program) (map[stream.Location]*Program, error) {
	parts := make(map[stream.Location]*Program)
	locOf := func(loc stream.Location) *Program {
		for k, v := range parts {
			if k.Equal(loc) {
				return v
			}
		}
		sub := NewProgram(prog.ID)
		parts[loc] = sub
		return sub
	}
	for _, n := range prog.Nodes() {
		locOf(n.Location()).AddNode(n)
	}
	for _, e := range prog.Edges() {
		left, _ := prog.GetNode(e.Left)
		right, _ := prog.GetNode(e.Right)
		if left.Location().Equal(right.Location()) {
			if err := locOf(left.Location()).AddEdge(e.Left, e.Right); err != nil {
				return nil, err
			}
		}
	}
	return parts, nil
}

// PromotePipesToNet rewrites every edge whose endpoints are on different
// machines: the PipeStream carrying the edge is located on both endpoints
// and replaced with a NetStream carrying the same output kind and
// bufferable flag plus both locations (spec.md §4.3b). Running it a second
// time is a no-op: an edge already carrying a NetStream has no PipeStream
// left to find, and ReplacePipeWithNet on an already-promoted edge simply
// fails to match, so the idempotence check in the caller skips it.
func PromotePipesToNet(prog *Program) error {
	for _, e := range prog.Edges() {
		left, _ := prog.GetNode(e.Left)
		right, _ := prog.GetNode(e.Right)
		if left.Location().Equal(right.Location()) {
			continue
		}
		kind, bufferable, found := findPipeKind(left, e.Right)
		if !found {
			// already promoted (idempotent rewrite) or never had a pipe: nothing to do.
			continue
		}
		net, err := stream.NewNetStream(e.Left, e.Right, kind, left.Location(), right.Location())
		if err != nil {
			return errors.Wrapf(err, "promoting edge (%d,%d)", e.Left, e.Right)
		}
		net.Bufferable = bufferable
		if err := left.ReplacePipeWithNet(e.Right, kind, net); err != nil {
			return errors.Wrapf(err, "promoting edge (%d,%d): left side", e.Left, e.Right)
		}
		if err := right.ReplacePipeWithNet(e.Left, kind, net); err != nil {
			return errors.Wrapf(err, "promoting edge (%d,%d): right side", e.Left, e.Right)
		}
	}
	return nil
}

func findPipeKind(n Node, otherID stream.NodeId) (kind stream.IoKind, bufferable bool, found bool) {
	if n.HasStdout() {
		if d := n.Stdout(); d.Kind == stream.KindPipe && d.Pipe.Right == otherID {
			return d.Pipe.OutputKind, d.Pipe.Bufferable, true
		}
	}
	if n.HasStderr() {
		if d := n.Stderr(); d.Kind == stream.KindPipe && d.Pipe.Right == otherID {
			return d.Pipe.OutputKind, d.Pipe.Bufferable, true
		}
	}
	return 0, false, false
}

// ElideReadNodes deletes every read node whose output is a pipe to a
// co-located cmd node, replacing the downstream cmd's matching pipe input
// with the read node's FileStream (spec.md §4.3c): the downstream process
// reads the file directly instead of through an intermediate reader.
func ElideReadNodes(prog *Program) error {
	for id, n := range prog.Nodes() {
		r, ok := n.(*Read)
		if !ok || !r.HasStdout() {
			continue
		}
		out := r.Stdout()
		if out.Kind != stream.KindPipe {
			continue
		}
		downstream, ok := prog.GetNode(out.Pipe.Right)
		if !ok || !downstream.Location().Equal(r.Location()) {
			continue
		}
		if err := downstream.ReplaceStreamEdge(id, out.Pipe.OutputKind, stream.FromFile(r.Input)); err != nil {
			return errors.Wrapf(err, "eliding read node %d", id)
		}
		prog.RemoveEdge(id, out.Pipe.Right)
		prog.RemoveNode(id)
	}
	return nil
}

// ScratchPather supplies per-location scratch directories for FIFO and
// buffered-pipe files.
type ScratchPather interface {
	ScratchDir(stream.Location) string
}

// InsertRemoteFifos materializes every command argument whose file lives on
// a different machine than the command as a local FIFO (spec.md §4.3d): a
// read node on the file's server writes a net stream, a write node on the
// command's server appends that net stream to a FIFO at a scratch path, and
// the command's argument is rewritten to the FIFO path.
func InsertRemoteFifos(prog *Program, sp ScratchPather) error {
	for id, n := range prog.Nodes() {
		c, ok := n.(*Cmd)
		if !ok {
			continue
		}
		for i, a := range c.Args {
			if !a.IsFile() || a.File.Location.Equal(c.Location()) {
				continue
			}
			fifoPath := fmt.Sprintf("%s/%d_fifo", sp.ScratchDir(c.Location()), id)

			readID := prog.NextNodeID()
			readNode := NewRead(readID, *a.File)
			writeID := prog.NextNodeID()

			net, err := stream.NewNetStream(readID, writeID, stream.Stdout, a.File.Location, c.Location())
			if err != nil {
				return errors.Wrapf(err, "remote FIFO for node %d arg %d", id, i)
			}
			readNode.SetStdout(stream.FromNet(net))
			prog.AddNode(readNode)

			fifoStream := stream.NewFifoStream(fifoPath, c.Location(), stream.FifoWrite)
			writeNode, err := NewWrite(writeID, stream.FromFifo(fifoStream))
			if err != nil {
				return errors.Wrapf(err, "remote FIFO for node %d arg %d", id, i)
			}
			writeNode.AddStdin(stream.FromNet(net))
			prog.AddNode(writeNode)

			if err := prog.AddEdge(readID, writeID); err != nil {
				return err
			}
			if err := c.RewriteFileArg(i, fifoPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarkBufferable applies the post-rewrite bufferability rule (spec.md
// §4.3, "Bufferability marking"): every TCP stream feeding stdin (except
// stderr carriers) is marked bufferable, and every stdin pipe beyond the
// first on any one node is marked bufferable. A single stdin fed by
// multiple producers must be read in declared order without deadlock, so
// all but possibly the first must be drained to disk first.
//
// Every node stores its own independent value copy of a shared stream
// (graph.Cmd holds stdin and stdout/stderr as separate DashStream values,
// not a shared pointer), so marking only the consumer's stdin copy leaves
// the producer's stdout/stderr copy of the same stream disagreeing on
// Bufferable. Both copies are updated here, mirroring how
// PromotePipesToNet updates an edge's stream on both of its endpoints.
func MarkBufferable(prog *Program) {
	for _, n := range prog.Nodes() {
		stdin := n.Stdin()
		seenPipe := false
		for i, d := range stdin {
			switch d.Kind {
			case stream.KindNet:
				if d.Net.OutputKind != stream.Stderr {
					updated := d.SetBufferable(true)
					stdin[i] = updated
					markProducerBufferable(prog, updated)
				}
			case stream.KindPipe:
				if d.Pipe.OutputKind != stream.Stderr {
					if seenPipe {
						updated := d.SetBufferable(true)
						stdin[i] = updated
						markProducerBufferable(prog, updated)
					}
					seenPipe = true
				}
			}
		}
	}
}

// markProducerBufferable locates the producer endpoint of d (the node
// named by d's Left id) and, if present in prog, updates its own
// Stdout/Stderr copy of the same edge to match d's Bufferable flag.
func markProducerBufferable(prog *Program, d stream.DashStream) {
	left, right, ok := d.Endpoints()
	if !ok {
		return
	}
	producer, ok := prog.GetNode(left)
	if !ok {
		return
	}
	kind := endpointKind(d)
	matches := func(out stream.DashStream) bool {
		outLeft, outRight, ok := out.Endpoints()
		return ok && outLeft == left && outRight == right && endpointKind(out) == kind
	}
	if producer.HasStdout() {
		if out := producer.Stdout(); matches(out) {
			producer.SetStdout(out.SetBufferable(true))
			return
		}
	}
	if producer.HasStderr() {
		if out := producer.Stderr(); matches(out) {
			producer.SetStderr(out.SetBufferable(true))
		}
	}
}
