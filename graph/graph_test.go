package graph_test

import (
	"testing"

	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

func twoNodePipe(t *testing.T) (*graph.Program, *graph.Cmd, *graph.Cmd) {
	t.Helper()
	prog := graph.NewProgram(1)
	a := graph.NewCmd(1, "cat", nil, "/tmp", graph.Hints{})
	b := graph.NewCmd(2, "grep", []graph.Arg{graph.LitArg("x")}, "/tmp", graph.Hints{})
	prog.AddNode(a)
	prog.AddNode(b)

	p, err := stream.NewPipeStream(1, 2, stream.Stdout)
	if err != nil {
		t.Fatalf("NewPipeStream: %v", err)
	}
	a.SetStdout(stream.FromPipe(p))
	b.AddStdin(stream.FromPipe(p))
	if err := prog.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	return prog, a, b
}

func TestProgramTopoOrder(t *testing.T) {
	prog, _, _ := twoNodePipe(t)
	order, err := prog.TopoOrder()
	if err != nil {
		t.Fatalf("TopoOrder: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("TopoOrder() = %v, want [1 2]", order)
	}
}

func TestProgramSinks(t *testing.T) {
	prog, _, _ := twoNodePipe(t)
	sinks := prog.Sinks()
	if len(sinks) != 1 || sinks[0] != 2 {
		t.Errorf("Sinks() = %v, want [2]", sinks)
	}
}

func TestProgramDependentNodes(t *testing.T) {
	prog, _, _ := twoNodePipe(t)
	deps := prog.DependentNodes(2)
	if len(deps) != 1 || deps[0] != 1 {
		t.Errorf("DependentNodes(2) = %v, want [1]", deps)
	}
}

func TestProgramValidate(t *testing.T) {
	prog, _, _ := twoNodePipe(t)
	if err := prog.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestProgramValidateDetectsDanglingStream(t *testing.T) {
	prog := graph.NewProgram(1)
	a := graph.NewCmd(1, "cat", nil, "/tmp", graph.Hints{})
	prog.AddNode(a)
	// a claims to feed node 2, but node 2 was never added nor is there an edge.
	p, _ := stream.NewPipeStream(1, 2, stream.Stdout)
	a.SetStdout(stream.FromPipe(p))
	if err := prog.Validate(); err == nil {
		t.Error("Validate() should reject a stream with no matching edge")
	}
}

func TestProgramRejectsDuplicateEdge(t *testing.T) {
	prog, _, _ := twoNodePipe(t)
	if err := prog.AddEdge(1, 2); err == nil {
		t.Error("AddEdge should reject a duplicate edge")
	}
}

func TestProgramRejectsCycle(t *testing.T) {
	prog := graph.NewProgram(1)
	a := graph.NewCmd(1, "a", nil, "/tmp", graph.Hints{})
	b := graph.NewCmd(2, "b", nil, "/tmp", graph.Hints{})
	prog.AddNode(a)
	prog.AddNode(b)
	if err := prog.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := prog.AddEdge(2, 1); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if _, err := prog.TopoOrder(); err == nil {
		t.Error("TopoOrder should detect a cycle")
	}
}

func TestCmdReplacePipeWithNet(t *testing.T) {
	_, a, b := twoNodePipe(t)
	net, err := stream.NewNetStream(1, 2, stream.Stdout, stream.Client, stream.Server("10.0.0.1:9000"))
	if err != nil {
		t.Fatalf("NewNetStream: %v", err)
	}
	if err := a.ReplacePipeWithNet(2, stream.Stdout, net); err != nil {
		t.Fatalf("a.ReplacePipeWithNet: %v", err)
	}
	if a.Stdout().Kind != stream.KindNet {
		t.Errorf("a.Stdout().Kind = %v, want KindNet", a.Stdout().Kind)
	}
	if err := b.ReplacePipeWithNet(1, stream.Stdout, net); err != nil {
		t.Fatalf("b.ReplacePipeWithNet: %v", err)
	}
	if b.Stdin()[0].Kind != stream.KindNet {
		t.Errorf("b.Stdin()[0].Kind = %v, want KindNet", b.Stdin()[0].Kind)
	}
}

func TestCmdReplacePipeWithNetNoMatch(t *testing.T) {
	_, a, _ := twoNodePipe(t)
	net, _ := stream.NewNetStream(9, 9, stream.Stdout, stream.Client, stream.Server("x"))
	if err := a.ReplacePipeWithNet(99, stream.Stderr, net); err == nil {
		t.Error("ReplacePipeWithNet should fail when no matching pipe exists")
	}
}

func TestWriteNodeRequiresSinkOutput(t *testing.T) {
	bad := stream.FromPipe(stream.PipeStream{Left: 1, Right: 2, OutputKind: stream.Stdout})
	if _, err := graph.NewWrite(3, bad); err == nil {
		t.Error("NewWrite should reject a Pipe as the output kind")
	}
	w, err := graph.NewWrite(3, stream.StdoutStream)
	if err != nil {
		t.Fatalf("NewWrite: %v", err)
	}
	if !w.Location().Equal(stream.Client) {
		t.Errorf("write to Stdout should default to Client location, got %v", w.Location())
	}
}

func TestReadNodeLocationMatchesInput(t *testing.T) {
	fs := stream.NewFileStream("/data/in.txt", stream.Server("10.0.0.5:9000"), stream.ModeRead)
	r := graph.NewRead(1, fs)
	if !r.Location().Equal(fs.Location) {
		t.Errorf("Read node location = %v, want %v", r.Location(), fs.Location)
	}
}
