package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

// Write is a file-sink node: one or more input DashStreams (pipes, nets, or
// buffered pipes), exactly one output which must be a FileStream, a
// FifoStream (the remote-access FIFO rewrite), Stdout, or Stderr. Its
// location must equal its output's location.
type Write struct {
	base
	Output stream.DashStream
	inputs []stream.DashStream
}

func NewWrite(id stream.NodeId, output stream.DashStream) (*Write, error) {
	switch output.Kind {
	case stream.KindFile, stream.KindFifo, stream.KindStdout, stream.KindStderr:
	default:
		return nil, errors.Errorf("write node %d: output must be a FileStream, FifoStream, Stdout, or Stderr", id)
	}
	loc := stream.Client
	if output.Kind == stream.KindFile {
		loc = output.File.Location
	}
	if output.Kind == stream.KindFifo {
		loc = output.Fifo.Location
	}
	return &Write{base: base{id: id, loc: loc}, Output: output}, nil
}

func (w *Write) Stdin() []stream.DashStream   { return w.inputs }
func (w *Write) AddStdin(d stream.DashStream) { w.inputs = append(w.inputs, d) }

func (w *Write) Stdout() stream.DashStream     { return w.Output }
func (w *Write) HasStdout() bool               { return true }
func (w *Write) SetStdout(d stream.DashStream) { w.Output = d }
func (w *Write) Stderr() stream.DashStream     { return stream.DashStream{} }
func (w *Write) HasStderr() bool               { return false }
func (w *Write) SetStderr(stream.DashStream)   {}

func (w *Write) OutwardStreams() []stream.DashStream {
	out := append([]stream.DashStream{}, w.inputs...)
	return append(out, w.Output)
}

func (w *Write) ReplacePipeWithNet(otherID stream.NodeId, kind stream.IoKind, net stream.NetStream) error {
	for i, in := range w.inputs {
		if in.Kind == stream.KindPipe && in.Pipe.Left == otherID && in.Pipe.OutputKind == kind {
			w.inputs[i] = stream.FromNet(net)
			return nil
		}
	}
	return errors.Errorf("write node %d: no pipe from %d (%s) to promote", w.id, otherID, kind)
}

func (w *Write) ReplaceStreamEdge(oldID stream.NodeId, kind stream.IoKind, replacement stream.DashStream) error {
	for i, in := range w.inputs {
		if left, _, ok := in.Endpoints(); ok && left == oldID && endpointKind(in) == kind {
			w.inputs[i] = replacement
			return nil
		}
	}
	return errors.Errorf("write node %d: no stream edge from %d (%s) to replace", w.id, oldID, kind)
}

func (w *Write) DotLabel() string { return fmt.Sprintf("write(%d)->%s", w.id, w.Output) }
