package wire

import (
	"github.com/pkg/errors"

	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

// ArgDTO is the wire form of a graph.Arg.
type ArgDTO struct {
	Literal string              `json:"literal,omitempty"`
	File    *stream.FileStream `json:"file,omitempty"`
}

// NodeDTO is the wire form of one graph.Node, tagged by Kind so the
// receiver can reconstruct the right concrete type.
type NodeDTO struct {
	Kind     string              `json:"kind"`
	ID       stream.NodeId       `json:"id"`
	Location stream.Location     `json:"location"`

	// Cmd
	Name    string      `json:"name,omitempty"`
	Args    []ArgDTO    `json:"args,omitempty"`
	WorkDir string      `json:"workdir,omitempty"`
	Hints   graph.Hints `json:"hints,omitempty"`

	// Read
	ReadInput *stream.FileStream `json:"read_input,omitempty"`

	// Write
	WriteOutput *stream.DashStream `json:"write_output,omitempty"`

	// Cmd and Write share a stdin vector; Read never has one.
	Stdin  []stream.DashStream `json:"stdin,omitempty"`
	Stdout *stream.DashStream  `json:"stdout,omitempty"`
	Stderr *stream.DashStream  `json:"stderr,omitempty"`
}

// ProgramDTO is the wire form of a graph.Program: the sub-program shipped
// by ProgramExecution messages (spec.md §6).
type ProgramDTO struct {
	ID    stream.ProgramId `json:"id"`
	Nodes []NodeDTO        `json:"nodes"`
	Edges []graph.Edge     `json:"edges"`
}

// EncodeProgram snapshots prog into its wire DTO.
func EncodeProgram(prog *graph.Program) ProgramDTO {
	dto := ProgramDTO{ID: prog.ID, Edges: prog.Edges()}
	for id, n := range prog.Nodes() {
		nd := NodeDTO{ID: id, Location: n.Location()}
		switch v := n.(type) {
		case *graph.Cmd:
			nd.Kind = "cmd"
			nd.Name = v.Name
			nd.WorkDir = v.WorkDir
			nd.Hints = v.Hints
			for _, a := range v.Args {
				if a.IsFile() {
					nd.Args = append(nd.Args, ArgDTO{File: a.File})
				} else {
					nd.Args = append(nd.Args, ArgDTO{Literal: a.Literal})
				}
			}
			nd.Stdin = v.Stdin()
			if v.HasStdout() {
				d := v.Stdout()
				nd.Stdout = &d
			}
			if v.HasStderr() {
				d := v.Stderr()
				nd.Stderr = &d
			}
		case *graph.Read:
			nd.Kind = "read"
			nd.ReadInput = &v.Input
			if v.HasStdout() {
				d := v.Stdout()
				nd.Stdout = &d
			}
		case *graph.Write:
			nd.Kind = "write"
			nd.WriteOutput = &v.Output
			nd.Stdin = v.Stdin()
		}
		dto.Nodes = append(dto.Nodes, nd)
	}
	return dto
}

// DecodeProgram reconstructs a graph.Program from its wire DTO.
func DecodeProgram(dto ProgramDTO) (*graph.Program, error) {
	prog := graph.NewProgram(dto.ID)
	for _, nd := range dto.Nodes {
		switch nd.Kind {
		case "cmd":
			args := make([]graph.Arg, len(nd.Args))
			for i, a := range nd.Args {
				if a.File != nil {
					args[i] = graph.FileArg(*a.File)
				} else {
					args[i] = graph.LitArg(a.Literal)
				}
			}
			c := graph.NewCmd(nd.ID, nd.Name, args, nd.WorkDir, nd.Hints)
			c.SetLocation(nd.Location)
			for _, s := range nd.Stdin {
				c.AddStdin(s)
			}
			if nd.Stdout != nil {
				c.SetStdout(*nd.Stdout)
			}
			if nd.Stderr != nil {
				c.SetStderr(*nd.Stderr)
			}
			prog.AddNode(c)
		case "read":
			if nd.ReadInput == nil {
				return nil, errors.Errorf("node %d: read node missing input", nd.ID)
			}
			r := graph.NewRead(nd.ID, *nd.ReadInput)
			r.SetLocation(nd.Location)
			if nd.Stdout != nil {
				r.SetStdout(*nd.Stdout)
			}
			prog.AddNode(r)
		case "write":
			if nd.WriteOutput == nil {
				return nil, errors.Errorf("node %d: write node missing output", nd.ID)
			}
			w, err := graph.NewWrite(nd.ID, *nd.WriteOutput)
			if err != nil {
				return nil, errors.Wrapf(err, "node %d", nd.ID)
			}
			w.SetLocation(nd.Location)
			for _, s := range nd.Stdin {
				w.AddStdin(s)
			}
			prog.AddNode(w)
		default:
			return nil, errors.Errorf("node %d: unknown kind %q", nd.ID, nd.Kind)
		}
	}
	for _, e := range dto.Edges {
		if err := prog.AddEdge(e.Left, e.Right); err != nil {
			return nil, err
		}
	}
	return prog, nil
}
