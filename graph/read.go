package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

// Read is a file-source node: exactly one FileStream input, exactly one
// output (a pipe or net stream carrying the file's bytes downstream). Its
// location must equal its input's location.
type Read struct {
	base
	Input  stream.FileStream
	output *stream.DashStream
}

func NewRead(id stream.NodeId, input stream.FileStream) *Read {
	return &Read{base: base{id: id, loc: input.Location}, Input: input}
}

func (r *Read) Stdin() []stream.DashStream { return nil }
func (r *Read) AddStdin(stream.DashStream) { /* Read nodes have no stdin */ }

func (r *Read) Stdout() stream.DashStream {
	if r.output == nil {
		return stream.DashStream{}
	}
	return *r.output
}
func (r *Read) HasStdout() bool              { return r.output != nil }
func (r *Read) SetStdout(d stream.DashStream) { r.output = &d }
func (r *Read) Stderr() stream.DashStream     { return stream.DashStream{} }
func (r *Read) HasStderr() bool               { return false }
func (r *Read) SetStderr(stream.DashStream)   {}

func (r *Read) OutwardStreams() []stream.DashStream {
	if r.output == nil {
		return nil
	}
	return []stream.DashStream{*r.output}
}

func (r *Read) ReplacePipeWithNet(otherID stream.NodeId, kind stream.IoKind, net stream.NetStream) error {
	if r.output != nil && r.output.Kind == stream.KindPipe && r.output.Pipe.Right == otherID && r.output.Pipe.OutputKind == kind {
		d := stream.FromNet(net)
		r.output = &d
		return nil
	}
	return errors.Errorf("read node %d: no pipe to %d (%s) to promote", r.id, otherID, kind)
}

func (r *Read) ReplaceStreamEdge(stream.NodeId, stream.IoKind, stream.DashStream) error {
	return errors.Errorf("read node %d: has no replaceable input edge (its only input is a FileStream)", r.id)
}

func (r *Read) DotLabel() string { return fmt.Sprintf("read(%d)<-%s", r.id, r.Input.Path) }
