// Package graph implements the program DAG: process, file-reader, and
// file-writer nodes joined by typed streams, plus the rewrites that lower
// the graph for cross-machine execution.
package graph

import (
	"github.com/dashrun/dash/stream"
)

// Node is the narrow interface shared by Cmd, Read, and Write nodes (see
// spec.md §9, "dynamic dispatch over node variants"). A tagged sum plus a
// dispatch helper and one interface implementation per variant both work;
// dash uses one small struct per variant implementing this interface since
// the variants are closed and stable.
type Node interface {
	ID() stream.NodeId
	Location() stream.Location
	SetLocation(stream.Location)

	Stdin() []stream.DashStream
	Stdout() stream.DashStream
	Stderr() stream.DashStream
	HasStdout() bool
	HasStderr() bool

	AddStdin(stream.DashStream)
	SetStdout(stream.DashStream)
	SetStderr(stream.DashStream)

	// OutwardStreams returns every DashStream referencing a graph edge that
	// this node participates in (inputs and outputs), used by rewrites that
	// must locate and replace a stream on both of an edge's endpoints.
	OutwardStreams() []stream.DashStream

	// ReplacePipeWithNet atomically swaps a PipeStream carrying an edge to
	// otherID for the given NetStream; it is a hard error if no matching
	// pipe is found.
	ReplacePipeWithNet(otherID stream.NodeId, kind stream.IoKind, net stream.NetStream) error

	// ReplaceStreamEdge swaps any stream whose other endpoint is oldID,
	// carrying kind, for replacement (used by read-node elision and FIFO
	// insertion, which change what an edge's "other side" looks like without
	// changing node identity).
	ReplaceStreamEdge(oldID stream.NodeId, kind stream.IoKind, replacement stream.DashStream) error

	DotLabel() string
}

// base holds the fields common to every node variant.
type base struct {
	id  stream.NodeId
	loc stream.Location
}

func (b *base) ID() stream.NodeId            { return b.id }
func (b *base) Location() stream.Location    { return b.loc }
func (b *base) SetLocation(l stream.Location) { b.loc = l }
