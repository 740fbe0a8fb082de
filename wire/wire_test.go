package wire_test

import (
	"bytes"
	"testing"

	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
	"github.com/dashrun/dash/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"hello":"world"}`)
	if err := wire.WriteFrame(&buf, wire.Control, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	mt, body, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if mt != wire.Control {
		t.Errorf("ReadFrame type = %v, want Control", mt)
	}
	if !bytes.Equal(body, payload) {
		t.Errorf("ReadFrame body = %q, want %q", body, payload)
	}
}

func TestReadFrameTooShort(t *testing.T) {
	var buf bytes.Buffer
	_ = wire.WriteFrame(&buf, wire.Control, nil)
	// Corrupt the length prefix to claim fewer bytes than the type tag needs.
	b := buf.Bytes()
	b[0] = 1
	for i := 1; i < 8; i++ {
		b[i] = 0
	}
	if _, _, err := wire.ReadFrame(bytes.NewReader(b)); err == nil {
		t.Error("ReadFrame should reject a frame too short to hold a message type")
	}
}

func TestWriteReadJSON(t *testing.T) {
	var buf bytes.Buffer
	msg := wire.SizeRequestMsg{Paths: []string{"/a", "/b"}}
	if err := wire.WriteJSON(&buf, wire.SizeRequest, msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var out wire.SizeRequestMsg
	if err := wire.ReadJSON(&buf, wire.SizeRequest, &out); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(out.Paths) != 2 || out.Paths[0] != "/a" || out.Paths[1] != "/b" {
		t.Errorf("ReadJSON paths = %v, want [/a /b]", out.Paths)
	}
}

func TestReadJSONWrongType(t *testing.T) {
	var buf bytes.Buffer
	_ = wire.WriteJSON(&buf, wire.Control, wire.Success())
	var out wire.SizeRequestMsg
	if err := wire.ReadJSON(&buf, wire.SizeRequest, &out); err == nil {
		t.Error("ReadJSON should reject a frame of the wrong message type")
	}
}

func TestControlMsgHelpers(t *testing.T) {
	if !wire.Success().Success {
		t.Error("Success() should report Success=true")
	}
	fail := wire.Failure(errTestErr{"boom"})
	if fail.Success || fail.Error != "boom" {
		t.Errorf("Failure() = %+v, want Success=false Error=boom", fail)
	}
	if !wire.Failure(nil).Success {
		t.Error("Failure(nil) should report Success=true")
	}
}

type errTestErr struct{ s string }

func (e errTestErr) Error() string { return e.s }

func TestEncodeDecodeProgramRoundTrip(t *testing.T) {
	prog := graph.NewProgram(7)
	a := graph.NewCmd(1, "cat", []graph.Arg{graph.LitArg("-n")}, "/tmp", graph.Hints{ReducesInput: true})
	a.SetLocation(stream.Client)
	b := graph.NewCmd(2, "grep", []graph.Arg{graph.LitArg("x")}, "/tmp", graph.Hints{})
	b.SetLocation(stream.Client)
	prog.AddNode(a)
	prog.AddNode(b)

	p, _ := stream.NewPipeStream(1, 2, stream.Stdout)
	a.SetStdout(stream.FromPipe(p))
	b.AddStdin(stream.FromPipe(p))
	if err := prog.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	dto := wire.EncodeProgram(prog)
	b2, err := wire.Marshal(dto)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded wire.ProgramDTO
	if err := wire.Unmarshal(b2, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	out, err := wire.DecodeProgram(decoded)
	if err != nil {
		t.Fatalf("DecodeProgram: %v", err)
	}
	if out.ID != 7 {
		t.Errorf("decoded program ID = %d, want 7", out.ID)
	}
	n1, ok := out.GetNode(1)
	if !ok {
		t.Fatal("decoded program missing node 1")
	}
	c1, ok := n1.(*graph.Cmd)
	if !ok || c1.Name != "cat" || !c1.Hints.ReducesInput {
		t.Errorf("decoded node 1 = %+v, want cat cmd with ReducesInput", n1)
	}
	if c1.Stdout().Kind != stream.KindPipe {
		t.Errorf("decoded node 1 stdout kind = %v, want KindPipe", c1.Stdout().Kind)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("decoded program should validate: %v", err)
	}
}
