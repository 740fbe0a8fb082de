// Package wire implements the client-server wire protocol: message
// framing and the five message kinds exchanged between the client and its
// servers (spec.md §6).
package wire

import (
	"encoding/binary"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

var js = jsoniter.ConfigFastest

// MessageType tags the payload that follows a frame's length prefix.
type MessageType uint32

const (
	ProgramExecution MessageType = 1
	Pipe             MessageType = 2
	Control          MessageType = 3
	SetupStreams     MessageType = 4
	SizeRequest      MessageType = 5
)

func (mt MessageType) String() string {
	switch mt {
	case ProgramExecution:
		return "ProgramExecution"
	case Pipe:
		return "Pipe"
	case Control:
		return "Control"
	case SetupStreams:
		return "SetupStreams"
	case SizeRequest:
		return "SizeRequest"
	default:
		return "Unknown"
	}
}

const (
	lenPrefixSize = 16
	typeSize      = 4
)

// WriteFrame writes a length-prefixed message: a 16-byte little-endian
// unsigned length, a 4-byte message-type tag, then the payload.
func WriteFrame(w io.Writer, mt MessageType, payload []byte) error {
	var lenBuf [lenPrefixSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:8], uint64(typeSize+len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "writing frame length")
	}
	var typeBuf [typeSize]byte
	binary.LittleEndian.PutUint32(typeBuf[:], uint32(mt))
	if _, err := w.Write(typeBuf[:]); err != nil {
		return errors.Wrap(err, "writing frame type")
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return errors.Wrap(err, "writing frame payload")
		}
	}
	return nil
}

// ReadFrame reads one length-prefixed message and returns its type and
// payload. A short read anywhere in the frame is a protocol error.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	var lenBuf [lenPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, errors.Wrap(err, "reading frame length")
	}
	total := binary.LittleEndian.Uint64(lenBuf[:8])
	if total < typeSize {
		return 0, nil, errors.Errorf("frame too short to hold a message type: %d bytes", total)
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, errors.Wrap(err, "reading frame body")
	}
	mt := MessageType(binary.LittleEndian.Uint32(body[:typeSize]))
	return mt, body[typeSize:], nil
}

// WriteJSON frames mt with payload marshaled via jsoniter.
func WriteJSON(w io.Writer, mt MessageType, payload any) error {
	b, err := js.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshaling %s payload", mt)
	}
	return WriteFrame(w, mt, b)
}

// ReadJSON reads one frame, verifies its type is want, and unmarshals its
// payload via jsoniter into out.
func ReadJSON(r io.Reader, want MessageType, out any) error {
	mt, body, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if mt != want {
		return errors.Errorf("unexpected message kind: got %s, want %s", mt, want)
	}
	if err := js.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "unmarshaling %s payload", mt)
	}
	return nil
}

// Marshal and Unmarshal expose the package's jsoniter codec to callers (the
// runtime package) that need to decode a frame's payload after already
// having read its MessageType via ReadFrame, or encode a reply of a type
// the caller picks dynamically.
func Marshal(v any) ([]byte, error) { return js.Marshal(v) }
func Unmarshal(b []byte, v any) error { return js.Unmarshal(b, v) }

// StreamRole tells the receiver of a Pipe message which half of a NetStream
// setup it must perform.
type StreamRole string

const (
	// RoleListen: open a TCP listener, accept exactly one connection, and
	// register it in the stream map; reply with the port chosen.
	RoleListen StreamRole = "listen"
	// RoleDial: dial Addr:Port and register the resulting connection in
	// the stream map.
	RoleDial StreamRole = "dial"
)

// NetworkStreamInfo is the Pipe message payload: identifies where a
// cross-machine NetStream's TCP endpoint should be registered (spec.md
// §4.5.2). The client issues one Pipe request per role per stream: a
// RoleListen request to the receiving machine, whose reply echoes back the
// port it bound, then a RoleDial request to the sending machine naming that
// host and port.
type NetworkStreamInfo struct {
	Role      StreamRole       `json:"role"`
	Location  stream.Location  `json:"location"`
	Addr      string           `json:"addr,omitempty"`
	Port      int              `json:"port"`
	ProgramID stream.ProgramId `json:"program_id"`
	Net       stream.NetStream `json:"net_stream"`
}

// ControlMsg is the Control message payload.
type ControlMsg struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func Success() ControlMsg       { return ControlMsg{Success: true} }
func Failure(err error) ControlMsg {
	if err == nil {
		return ControlMsg{Success: true}
	}
	return ControlMsg{Success: false, Error: err.Error()}
}

// SizeRequestMsg is the SizeRequest message payload: the client asks a
// server to stat every path in Paths that is local to it; the server fills
// Sizes and echoes the same message back.
type SizeRequestMsg struct {
	Paths  []string         `json:"paths"`
	Sizes  map[string]int64 `json:"sizes,omitempty"`
	Failed bool             `json:"failed"`
}

// SetupStreamsMsg is the payload shape for batching several
// NetworkStreamInfo entries into one message. The client does not send it
// (it sets up each stream with its own Pipe message), and Server answers a
// SetupStreams request with a failure Control message.
type SetupStreamsMsg struct {
	Streams []NetworkStreamInfo `json:"streams"`
}
