package stream

import "github.com/pkg/errors"

// PipeStream is a directed intra-machine pipe identified by
// (left, right, outputKind). outputKind is never Stdin — a pipe always
// carries a producer's stdout or stderr into a consumer's stdin.
type PipeStream struct {
	Left, Right NodeId
	OutputKind  IoKind
	// Bufferable requests on-disk buffering so a reader can fan-in multiple
	// producers deterministically (see package bufpipe).
	Bufferable bool
}

func NewPipeStream(left, right NodeId, outputKind IoKind) (PipeStream, error) {
	if outputKind == Stdin {
		return PipeStream{}, errors.New("cannot construct PipeStream with Stdin as the output kind")
	}
	return PipeStream{Left: left, Right: right, OutputKind: outputKind}, nil
}

// NetStream is the cross-machine analogue of PipeStream.
// Invariant: LeftLocation != RightLocation.
type NetStream struct {
	Left, Right               NodeId
	OutputKind                IoKind
	LeftLocation, RightLocation Location
	Bufferable                bool
}

func NewNetStream(left, right NodeId, outputKind IoKind, leftLoc, rightLoc Location) (NetStream, error) {
	if outputKind == Stdin {
		return NetStream{}, errors.New("cannot construct NetStream with Stdin as the output kind")
	}
	if leftLoc.Equal(rightLoc) {
		return NetStream{}, errors.New("NetStream endpoints must be on different machines")
	}
	return NetStream{Left: left, Right: right, OutputKind: outputKind, LeftLocation: leftLoc, RightLocation: rightLoc}, nil
}

// SendingSide returns the machine that dials out to set up this stream's
// TCP connection. The client always initiates when it is either endpoint;
// only when neither endpoint is the client does Left stand in as the
// sender, mirroring get_sending_side's fallback.
func (n NetStream) SendingSide() Location {
	if n.LeftLocation.IsClient() {
		return n.LeftLocation
	}
	if n.RightLocation.IsClient() {
		return n.RightLocation
	}
	return n.LeftLocation
}

// ReceivingSide returns the other endpoint from SendingSide.
func (n NetStream) ReceivingSide() Location {
	if n.LeftLocation.IsClient() {
		return n.RightLocation
	}
	if n.RightLocation.IsClient() {
		return n.LeftLocation
	}
	return n.RightLocation
}

// LocationOf returns the location of the other endpoint of this stream as
// seen from node id, or ok=false if id is neither endpoint.
func (n NetStream) LocationOf(id NodeId) (loc Location, ok bool) {
	switch id {
	case n.Left:
		return n.RightLocation, true
	case n.Right:
		return n.LeftLocation, true
	default:
		return Location{}, false
	}
}
