package runtime_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/runtime"
	"github.com/dashrun/dash/stream"
)

// TestEngineRunSimplePipe exercises the full spawn-then-redirect cycle for
// the simplest possible sub-program: one cmd writing to one file.
func TestEngineRunSimplePipe(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")

	prog := graph.NewProgram(1)
	c := graph.NewCmd(1, "printf", []graph.Arg{graph.LitArg("%s"), graph.LitArg("hello-world")}, "", graph.Hints{})
	c.SetLocation(stream.Client)
	prog.AddNode(c)

	outFile := stream.NewFileStream(outPath, stream.Client, stream.ModeCreate)
	w, err := graph.NewWrite(2, stream.FromFile(outFile))
	if err != nil {
		t.Fatalf("NewWrite: %v", err)
	}
	prog.AddNode(w)

	p, err := stream.NewPipeStream(1, 2, stream.Stdout)
	if err != nil {
		t.Fatalf("NewPipeStream: %v", err)
	}
	c.SetStdout(stream.FromPipe(p))
	w.AddStdin(stream.FromPipe(p))
	if err := prog.AddEdge(1, 2); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	engine := runtime.NewEngine(1, stream.Client, dir)
	if err := engine.Run(prog); err != nil {
		t.Fatalf("engine.Run: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello-world" {
		t.Errorf("output = %q, want %q", got, "hello-world")
	}
}

// TestEngineRunBufferedFanIn exercises the buffered-pipe fan-in path: two
// producers feed one consumer's stdin, the second input marked bufferable
// so the merge still drains strictly in declared order.
func TestEngineRunBufferedFanIn(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")

	prog := graph.NewProgram(1)
	first := graph.NewCmd(1, "printf", []graph.Arg{graph.LitArg("%s"), graph.LitArg("A")}, "", graph.Hints{})
	first.SetLocation(stream.Client)
	second := graph.NewCmd(2, "printf", []graph.Arg{graph.LitArg("%s"), graph.LitArg("B")}, "", graph.Hints{})
	second.SetLocation(stream.Client)
	merge := graph.NewCmd(3, "cat", nil, "", graph.Hints{})
	merge.SetLocation(stream.Client)
	prog.AddNode(first)
	prog.AddNode(second)
	prog.AddNode(merge)

	outFile := stream.NewFileStream(outPath, stream.Client, stream.ModeCreate)
	w, err := graph.NewWrite(4, stream.FromFile(outFile))
	if err != nil {
		t.Fatalf("NewWrite: %v", err)
	}
	prog.AddNode(w)

	p1, _ := stream.NewPipeStream(1, 3, stream.Stdout)
	first.SetStdout(stream.FromPipe(p1))
	merge.AddStdin(stream.FromPipe(p1))
	if err := prog.AddEdge(1, 3); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	p2, _ := stream.NewPipeStream(2, 3, stream.Stdout)
	second.SetStdout(stream.FromPipe(p2))
	merge.AddStdin(stream.FromPipe(p2))
	if err := prog.AddEdge(2, 3); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	p3, _ := stream.NewPipeStream(3, 4, stream.Stdout)
	merge.SetStdout(stream.FromPipe(p3))
	w.AddStdin(stream.FromPipe(p3))
	if err := prog.AddEdge(3, 4); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	// Mirrors the post-rewrite bufferability rule (spec.md §4.3): the second
	// stdin pipe into a fan-in node is marked bufferable so the merge drains
	// its declared inputs in order rather than interleaving.
	graph.MarkBufferable(prog)

	engine := runtime.NewEngine(1, stream.Client, dir)
	if err := engine.Run(prog); err != nil {
		t.Fatalf("engine.Run: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "AB" {
		t.Errorf("output = %q, want %q", got, "AB")
	}
}

func TestEngineRunPropagatesProcessFailure(t *testing.T) {
	dir := t.TempDir()
	prog := graph.NewProgram(1)
	c := graph.NewCmd(1, "sh", []graph.Arg{graph.LitArg("-c"), graph.LitArg("exit 3")}, "", graph.Hints{})
	c.SetLocation(stream.Client)
	prog.AddNode(c)

	engine := runtime.NewEngine(1, stream.Client, dir)
	if err := engine.Run(prog); err == nil {
		t.Error("engine.Run should surface a non-zero child exit status as an error")
	}
}
