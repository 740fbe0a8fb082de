// Package stream defines the typed stream model: the identifiers that
// address process handles and network endpoints, and the DashStream sum
// type every graph node stores its inputs and outputs as.
package stream

import (
	"encoding/json"
	"fmt"
)

// Location is either the coordinating Client or a Server identified by address.
// Equality is structural.
type Location struct {
	isServer bool
	addr     string
}

// Client is the coordinating machine's location.
var Client = Location{}

// Server returns the location of the server reachable at addr.
func Server(addr string) Location { return Location{isServer: true, addr: addr} }

func (l Location) IsClient() bool { return !l.isServer }
func (l Location) IsServer() bool { return l.isServer }
func (l Location) Addr() string   { return l.addr }

func (l Location) Equal(o Location) bool { return l.isServer == o.isServer && l.addr == o.addr }

func (l Location) String() string {
	if !l.isServer {
		return "client"
	}
	return fmt.Sprintf("server(%s)", l.addr)
}

// locationWire is Location's wire form: its fields are unexported so that
// Client/Server(addr) stay the only constructors, but the wire protocol
// (spec.md §6) still needs to round-trip a Location through jsoniter.
type locationWire struct {
	IsServer bool   `json:"is_server"`
	Addr     string `json:"addr,omitempty"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationWire{IsServer: l.isServer, Addr: l.addr})
}

func (l *Location) UnmarshalJSON(b []byte) error {
	var w locationWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	l.isServer, l.addr = w.IsServer, w.Addr
	return nil
}

// IoKind names a child process's file-descriptor slot.
type IoKind uint8

const (
	Stdin IoKind = iota
	Stdout
	Stderr
)

func (k IoKind) String() string {
	switch k {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "io?"
	}
}

// ProgramId and NodeId are opaque small integers unique within a run.
type (
	ProgramId int64
	NodeId    int64
)

// HandleIdentifier names a child process's file descriptor slot: the triple
// (ProgramId, NodeId, IoKind).
type HandleIdentifier struct {
	ProgramID ProgramId
	NodeID    NodeId
	Kind      IoKind
}

func (h HandleIdentifier) String() string {
	return fmt.Sprintf("%d/%d/%s", h.ProgramID, h.NodeID, h.Kind)
}
