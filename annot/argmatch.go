package annot

import (
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

// FileDependency pairs a classified ArgType with the FileStream argument it
// describes — the scheduler's cost model only cares whether a file
// argument is read from (InputFile, contributes transfer cost to reach the
// executing location) or written to (OutputFile, zeroes the node's
// outgoing edge weight per spec.md §4.4.1).
type FileDependency struct {
	Type ArgType
	File stream.FileStream
}

// ArgMatch is the annotation-derived fact set the scheduler consumes for a
// single Cmd node: hints plus classified file arguments.
type ArgMatch struct {
	ReducesInput          bool
	SplittableAcrossInput bool
	NeedsCurrentDir       bool
	Deps                  []FileDependency
}

// Match derives an ArgMatch for cmd from db's hints for cmd.Name, classifying
// every FileStream argument by its open Mode: the graph.Cmd node already
// carries typed arguments (spec.md §3 — the tokenizer/annotation parser that
// produced the Program is "out of scope" and consumed, so by the time a
// Cmd node reaches this system its arguments are already split into
// literals and FileStreams). Mode classifies direction: Read is an input,
// Create/Append/Regular is an output.
func Match(db *DB, cmd *graph.Cmd) ArgMatch {
	h := db.Hints(cmd.Name)
	m := ArgMatch{
		ReducesInput:          h.ReducesInput || cmd.Hints.ReducesInput,
		SplittableAcrossInput: h.SplittableAcrossInput || cmd.Hints.SplittableAcrossInput,
		NeedsCurrentDir:       h.NeedsCurrentDir || cmd.Hints.NeedsCurrentDir,
	}
	for _, a := range cmd.Args {
		if !a.IsFile() {
			continue
		}
		argType := ArgOutputFile
		if a.File.Mode == stream.ModeRead {
			argType = ArgInputFile
		}
		m.Deps = append(m.Deps, FileDependency{Type: argType, File: *a.File})
	}
	return m
}

// FileDependencies filters Deps to those matching t.
func (m ArgMatch) FileDependencies(t ArgType) []stream.FileStream {
	var out []stream.FileStream
	for _, d := range m.Deps {
		if d.Type == t {
			out = append(out, d.File)
		}
	}
	return out
}
