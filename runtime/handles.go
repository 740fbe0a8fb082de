package runtime

import (
	"fmt"
	"io"
	"net"

	"github.com/OneOfOne/xxhash"

	"github.com/dashrun/dash/bufpipe"
	"github.com/dashrun/dash/stream"
)

// OutputHandle is the pipe map's value: a sum over a child's stdin, stdout,
// or stderr descriptor, distinguished by which field is non-nil. A stdin
// handle is written to by an upstream node's redirection worker; a
// stdout/stderr handle is read from by a downstream one.
type OutputHandle struct {
	Writer io.WriteCloser // set when Kind == stream.Stdin
	Reader io.ReadCloser  // set when Kind == stream.Stdout or stream.Stderr
}

// PipeMap is the per-program HandleIdentifier -> OutputHandle map (spec.md
// §4.1): spawners insert, redirection workers remove.
type PipeMap = SharedMap[stream.HandleIdentifier, OutputHandle]

// StreamMap is the per-program NetStream -> socket map, populated during
// the stream-setup phase and drained by redirection workers.
type StreamMap = SharedMap[stream.NetStream, net.Conn]

// ChannelEnd is the channel map's value: the buffered pipe shared between
// the spawn phase (which creates the on-disk scratch file) and the two
// redirection workers that write to and read from it.
type ChannelEnd struct {
	Pipe *bufpipe.Pipe
}

// ChannelMap is the per-program channel-key -> ChannelEnd map (spec.md
// §4.1), keyed by the xxhash of "<node_id>_<io_kind>_<mode>" rather than the
// string itself, the way fs/hrw.go hashes a pipe's uname for placement.
type ChannelMap = SharedMap[uint64, ChannelEnd]

// ChannelMode distinguishes the writer and reader registrations of the same
// buffered pipe in the channel map, so each can be removed independently by
// the worker that owns it.
type ChannelMode string

const (
	ChannelWriter ChannelMode = "writer"
	ChannelReader ChannelMode = "reader"
)

const channelKeySeed = 0

func ChannelKey(id stream.NodeId, kind stream.IoKind, mode ChannelMode) uint64 {
	s := fmt.Sprintf("%d_%s_%s", id, kind, mode)
	return xxhash.Checksum64S([]byte(s), channelKeySeed)
}
