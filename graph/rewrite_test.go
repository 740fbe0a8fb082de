package graph_test

import (
	"testing"

	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

type fixedScratch string

func (f fixedScratch) ScratchDir(stream.Location) string { return string(f) }

func TestPromotePipesToNetCrossMachine(t *testing.T) {
	prog := graph.NewProgram(1)
	a := graph.NewCmd(1, "producer", nil, "/tmp", graph.Hints{})
	a.SetLocation(stream.Client)
	b := graph.NewCmd(2, "consumer", nil, "/tmp", graph.Hints{})
	b.SetLocation(stream.Server("10.0.0.9:9000"))
	prog.AddNode(a)
	prog.AddNode(b)

	p, _ := stream.NewPipeStream(1, 2, stream.Stdout)
	a.SetStdout(stream.FromPipe(p))
	b.AddStdin(stream.FromPipe(p))
	if err := prog.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if err := graph.PromotePipesToNet(prog); err != nil {
		t.Fatalf("PromotePipesToNet: %v", err)
	}
	if a.Stdout().Kind != stream.KindNet {
		t.Errorf("producer stdout kind = %v, want KindNet", a.Stdout().Kind)
	}
	if b.Stdin()[0].Kind != stream.KindNet {
		t.Errorf("consumer stdin kind = %v, want KindNet", b.Stdin()[0].Kind)
	}
	if !a.Stdout().Net.SendingSide().Equal(stream.Client) {
		t.Errorf("SendingSide() = %v, want Client", a.Stdout().Net.SendingSide())
	}
}

func TestPromotePipesToNetSameMachineUnaffected(t *testing.T) {
	prog, a, _ := twoNodePipe(t)
	if err := graph.PromotePipesToNet(prog); err != nil {
		t.Fatalf("PromotePipesToNet: %v", err)
	}
	if a.Stdout().Kind != stream.KindPipe {
		t.Errorf("same-machine pipe should stay a Pipe, got %v", a.Stdout().Kind)
	}
}

func TestElideReadNodes(t *testing.T) {
	prog := graph.NewProgram(1)
	fs := stream.NewFileStream("/data/in.txt", stream.Client, stream.ModeRead)
	r := graph.NewRead(1, fs)
	c := graph.NewCmd(2, "grep", []graph.Arg{graph.LitArg("x")}, "/tmp", graph.Hints{})
	prog.AddNode(r)
	prog.AddNode(c)

	p, _ := stream.NewPipeStream(1, 2, stream.Stdout)
	r.SetStdout(stream.FromPipe(p))
	c.AddStdin(stream.FromPipe(p))
	if err := prog.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	if err := graph.ElideReadNodes(prog); err != nil {
		t.Fatalf("ElideReadNodes: %v", err)
	}
	if _, ok := prog.GetNode(1); ok {
		t.Error("elided read node should be removed from the program")
	}
	if c.Stdin()[0].Kind != stream.KindFile {
		t.Errorf("cmd stdin should be rewritten to the file directly, got %v", c.Stdin()[0].Kind)
	}
	if c.Stdin()[0].File.Path != "/data/in.txt" {
		t.Errorf("cmd stdin file path = %q, want /data/in.txt", c.Stdin()[0].File.Path)
	}
}

func TestInsertRemoteFifos(t *testing.T) {
	prog := graph.NewProgram(1)
	remoteFile := stream.NewFileStream("/data/in.txt", stream.Server("10.0.0.9:9000"), stream.ModeRead)
	c := graph.NewCmd(1, "wc", []graph.Arg{graph.FileArg(remoteFile)}, "/tmp", graph.Hints{})
	c.SetLocation(stream.Client)
	prog.AddNode(c)

	if err := graph.InsertRemoteFifos(prog, fixedScratch("/scratch")); err != nil {
		t.Fatalf("InsertRemoteFifos: %v", err)
	}
	if len(prog.Nodes()) != 3 {
		t.Fatalf("expected 3 nodes after FIFO insertion (cmd + read + write), got %d", len(prog.Nodes()))
	}
	if !c.Args[0].IsFile() {
		t.Fatal("rewritten arg should still be a file arg")
	}
	if c.Args[0].File.Path == remoteFile.Path {
		t.Error("command's file arg should be rewritten to a local FIFO path, not the original remote path")
	}
	if err := prog.Validate(); err != nil {
		t.Errorf("Validate() after InsertRemoteFifos = %v, want nil", err)
	}
}

func TestMarkBufferableNetStdinAlwaysBufferable(t *testing.T) {
	prog := graph.NewProgram(1)
	a := graph.NewCmd(1, "a", nil, "/tmp", graph.Hints{})
	b := graph.NewCmd(2, "b", nil, "/tmp", graph.Hints{})
	prog.AddNode(a)
	prog.AddNode(b)
	net, _ := stream.NewNetStream(1, 2, stream.Stdout, stream.Client, stream.Server("x"))
	b.AddStdin(stream.FromNet(net))

	graph.MarkBufferable(prog)
	if !b.Stdin()[0].Bufferable() {
		t.Error("a Net stdin should always be marked bufferable")
	}
}

func TestMarkBufferableOnlySubsequentPipes(t *testing.T) {
	prog := graph.NewProgram(1)
	c := graph.NewCmd(3, "merge", nil, "/tmp", graph.Hints{})
	prog.AddNode(c)
	p1, _ := stream.NewPipeStream(1, 3, stream.Stdout)
	p2, _ := stream.NewPipeStream(2, 3, stream.Stdout)
	c.AddStdin(stream.FromPipe(p1))
	c.AddStdin(stream.FromPipe(p2))

	graph.MarkBufferable(prog)
	if c.Stdin()[0].Bufferable() {
		t.Error("the first stdin pipe should not be forced bufferable")
	}
	if !c.Stdin()[1].Bufferable() {
		t.Error("the second stdin pipe (fan-in) should be marked bufferable")
	}
}

// TestMarkBufferableUpdatesProducerCopyToo covers the asymmetry bug: a
// node's stdin stream and its producer's stdout stream are independent
// value copies, so marking only the consumer side left the producer's
// own copy unmarked, which silently broke buffered delivery (the
// producer never spun up a delivery worker or channel-map registration).
func TestMarkBufferableUpdatesProducerCopyToo(t *testing.T) {
	prog := graph.NewProgram(1)
	first := graph.NewCmd(1, "a", nil, "/tmp", graph.Hints{})
	second := graph.NewCmd(2, "b", nil, "/tmp", graph.Hints{})
	merge := graph.NewCmd(3, "merge", nil, "/tmp", graph.Hints{})
	prog.AddNode(first)
	prog.AddNode(second)
	prog.AddNode(merge)

	p1, _ := stream.NewPipeStream(1, 3, stream.Stdout)
	p2, _ := stream.NewPipeStream(2, 3, stream.Stdout)
	first.SetStdout(stream.FromPipe(p1))
	second.SetStdout(stream.FromPipe(p2))
	merge.AddStdin(stream.FromPipe(p1))
	merge.AddStdin(stream.FromPipe(p2))

	graph.MarkBufferable(prog)

	if first.Stdout().Bufferable() {
		t.Error("first producer's stdout should stay unbuffered (its stream is the first stdin slot)")
	}
	if !second.Stdout().Bufferable() {
		t.Error("second producer's own stdout copy should be marked bufferable to match its consumer's stdin copy")
	}
	if !merge.Stdin()[1].Bufferable() {
		t.Error("consumer's second stdin copy should be marked bufferable")
	}
}

func TestMarkBufferableSkipsStderr(t *testing.T) {
	prog := graph.NewProgram(1)
	c := graph.NewCmd(3, "merge", nil, "/tmp", graph.Hints{})
	prog.AddNode(c)
	p1, _ := stream.NewPipeStream(1, 3, stream.Stderr)
	p2, _ := stream.NewPipeStream(2, 3, stream.Stderr)
	c.AddStdin(stream.FromPipe(p1))
	c.AddStdin(stream.FromPipe(p2))

	graph.MarkBufferable(prog)
	for i, d := range c.Stdin() {
		if d.Bufferable() {
			t.Errorf("stderr-carrying stdin[%d] should never be marked bufferable", i)
		}
	}
}

func TestSplitByMachine(t *testing.T) {
	prog := graph.NewProgram(1)
	a := graph.NewCmd(1, "a", nil, "/tmp", graph.Hints{})
	a.SetLocation(stream.Client)
	b := graph.NewCmd(2, "b", nil, "/tmp", graph.Hints{})
	b.SetLocation(stream.Server("10.0.0.9:9000"))
	prog.AddNode(a)
	prog.AddNode(b)

	net, _ := stream.NewNetStream(1, 2, stream.Stdout, a.Location(), b.Location())
	a.SetStdout(stream.FromNet(net))
	b.AddStdin(stream.FromNet(net))

	parts, err := graph.SplitByMachine(prog)
	if err != nil {
		t.Fatalf("SplitByMachine: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}
	clientPart := parts[stream.Client]
	if clientPart == nil || len(clientPart.Nodes()) != 1 {
		t.Errorf("client partition should contain exactly node 1")
	}
	serverPart := parts[stream.Server("10.0.0.9:9000")]
	if serverPart == nil || len(serverPart.Nodes()) != 1 {
		t.Errorf("server partition should contain exactly node 2")
	}
}
