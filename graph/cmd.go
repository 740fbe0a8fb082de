package graph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

// Arg is one element of a Cmd node's argument vector: either a literal
// string or a FileStream (e.g. a path the runtime may rewrite to a FIFO
// during the remote-access-FIFO rewrite).
type Arg struct {
	Literal string
	File    *stream.FileStream
}

func LitArg(s string) Arg                     { return Arg{Literal: s} }
func FileArg(fs stream.FileStream) Arg         { return Arg{File: &fs} }
func (a Arg) IsFile() bool                     { return a.File != nil }
func (a Arg) String() string {
	if a.File != nil {
		return a.File.Path
	}
	return a.Literal
}

// Hints carries the annotation-derived scheduling facts for a Cmd node.
type Hints struct {
	SplittableAcrossInput bool
	ReducesInput          bool
	NeedsCurrentDir       bool
}

// Cmd is a process node: a name (resolved to an executable path), an
// ordered arg list, at most one stdin stream list, at most one stdout
// stream, at most one stderr stream, a working directory, and scheduling
// hints.
type Cmd struct {
	base
	Name    string
	Args    []Arg
	WorkDir string
	Hints   Hints

	stdin  []stream.DashStream
	stdout *stream.DashStream
	stderr *stream.DashStream
}

func NewCmd(id stream.NodeId, name string, args []Arg, workdir string, hints Hints) *Cmd {
	return &Cmd{base: base{id: id}, Name: name, Args: args, WorkDir: workdir, Hints: hints}
}

func (c *Cmd) Stdin() []stream.DashStream { return c.stdin }
func (c *Cmd) AddStdin(d stream.DashStream) {
	c.stdin = append(c.stdin, d)
}

func (c *Cmd) Stdout() stream.DashStream {
	if c.stdout == nil {
		return stream.DashStream{}
	}
	return *c.stdout
}
func (c *Cmd) HasStdout() bool                    { return c.stdout != nil }
func (c *Cmd) SetStdout(d stream.DashStream)       { c.stdout = &d }

func (c *Cmd) Stderr() stream.DashStream {
	if c.stderr == nil {
		return stream.DashStream{}
	}
	return *c.stderr
}
func (c *Cmd) HasStderr() bool              { return c.stderr != nil }
func (c *Cmd) SetStderr(d stream.DashStream) { c.stderr = &d }

func (c *Cmd) OutwardStreams() []stream.DashStream {
	out := append([]stream.DashStream{}, c.stdin...)
	if c.stdout != nil {
		out = append(out, *c.stdout)
	}
	if c.stderr != nil {
		out = append(out, *c.stderr)
	}
	for _, a := range c.Args {
		if a.IsFile() {
			out = append(out, stream.FromFile(*a.File))
		}
	}
	return out
}

func (c *Cmd) ReplacePipeWithNet(otherID stream.NodeId, kind stream.IoKind, net stream.NetStream) error {
	for i, in := range c.stdin {
		if in.Kind == stream.KindPipe && in.Pipe.Left == otherID && in.Pipe.OutputKind == kind {
			c.stdin[i] = stream.FromNet(net)
			return nil
		}
	}
	if c.stdout != nil && c.stdout.Kind == stream.KindPipe && c.stdout.Pipe.Right == otherID && c.stdout.Pipe.OutputKind == kind {
		d := stream.FromNet(net)
		c.stdout = &d
		return nil
	}
	if c.stderr != nil && c.stderr.Kind == stream.KindPipe && c.stderr.Pipe.Right == otherID && c.stderr.Pipe.OutputKind == kind {
		d := stream.FromNet(net)
		c.stderr = &d
		return nil
	}
	return errors.Errorf("cmd node %d: no pipe to/from %d (%s) to promote", c.id, otherID, kind)
}

func (c *Cmd) ReplaceStreamEdge(oldID stream.NodeId, kind stream.IoKind, replacement stream.DashStream) error {
	for i, in := range c.stdin {
		if left, _, ok := in.Endpoints(); ok && left == oldID && endpointKind(in) == kind {
			c.stdin[i] = replacement
			return nil
		}
	}
	return errors.Errorf("cmd node %d: no stream edge from %d (%s) to replace", c.id, oldID, kind)
}

// ResolveArgs renders the argument vector as a string slice, substituting
// each file argument's (possibly rewritten, e.g. to a FIFO path) path.
func (c *Cmd) ResolveArgs() []string {
	out := make([]string, len(c.Args))
	for i, a := range c.Args {
		out[i] = a.String()
	}
	return out
}

// RewriteFileArg replaces the path of the i-th file argument (used by the
// remote-access-FIFO rewrite to point a command at a local FIFO).
func (c *Cmd) RewriteFileArg(i int, newPath string) error {
	if i < 0 || i >= len(c.Args) || !c.Args[i].IsFile() {
		return errors.Errorf("cmd node %d: arg %d is not a file argument", c.id, i)
	}
	fs := *c.Args[i].File
	fs.Path = newPath
	c.Args[i] = FileArg(fs)
	return nil
}

func (c *Cmd) DotLabel() string { return fmt.Sprintf("%s(%d)", c.Name, c.id) }

func endpointKind(d stream.DashStream) stream.IoKind {
	switch d.Kind {
	case stream.KindPipe:
		return d.Pipe.OutputKind
	case stream.KindNet:
		return d.Net.OutputKind
	default:
		return stream.Stdout
	}
}
