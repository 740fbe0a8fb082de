package graph

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/stream"
)

// Edge is a directed edge (left, right) in the program graph.
type Edge struct {
	Left, Right stream.NodeId
}

// Program is a DAG container: nodes keyed by NodeId, directed edges, the
// set of sink ids (no outgoing edge), and a monotonic id counter.
type Program struct {
	ID      stream.ProgramId
	nodes   map[stream.NodeId]Node
	edges   []Edge
	edgeSet map[Edge]bool
	sinks   map[stream.NodeId]bool
	nextID  stream.NodeId
}

func NewProgram(id stream.ProgramId) *Program {
	return &Program{
		ID:      id,
		nodes:   make(map[stream.NodeId]Node),
		edgeSet: make(map[Edge]bool),
		sinks:   make(map[stream.NodeId]bool),
	}
}

// NextNodeID issues a new id unique within this program.
func (p *Program) NextNodeID() stream.NodeId {
	p.nextID++
	return p.nextID
}

func (p *Program) AddNode(n Node) {
	p.nodes[n.ID()] = n
	p.sinks[n.ID()] = true
	if p.nextID < n.ID() {
		p.nextID = n.ID()
	}
}

func (p *Program) RemoveNode(id stream.NodeId) {
	delete(p.nodes, id)
	delete(p.sinks, id)
}

func (p *Program) GetNode(id stream.NodeId) (Node, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

func (p *Program) Nodes() map[stream.NodeId]Node { return p.nodes }

func (p *Program) Sinks() []stream.NodeId {
	out := make([]stream.NodeId, 0, len(p.sinks))
	for id, isSink := range p.sinks {
		if isSink {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AddEdge records a directed edge and marks right as no longer a sink.
func (p *Program) AddEdge(left, right stream.NodeId) error {
	e := Edge{Left: left, Right: right}
	if p.edgeSet[e] {
		return errors.Errorf("duplicate edge (%d,%d)", left, right)
	}
	if _, ok := p.nodes[left]; !ok {
		return errors.Errorf("edge (%d,%d): left endpoint does not exist", left, right)
	}
	if _, ok := p.nodes[right]; !ok {
		return errors.Errorf("edge (%d,%d): right endpoint does not exist", left, right)
	}
	p.edges = append(p.edges, e)
	p.edgeSet[e] = true
	p.sinks[left] = false
	return nil
}

func (p *Program) RemoveEdge(left, right stream.NodeId) {
	e := Edge{Left: left, Right: right}
	delete(p.edgeSet, e)
	for i, edge := range p.edges {
		if edge == e {
			p.edges = append(p.edges[:i], p.edges[i+1:]...)
			break
		}
	}
}

func (p *Program) Edges() []Edge { return p.edges }

// DependentNodes returns the direct predecessors of id (nodes with an edge into id).
func (p *Program) DependentNodes(id stream.NodeId) []stream.NodeId {
	var out []stream.NodeId
	for _, e := range p.edges {
		if e.Right == id {
			out = append(out, e.Left)
		}
	}
	return out
}

// DependentEdges returns the edges incoming to id.
func (p *Program) DependentEdges(id stream.NodeId) []Edge {
	var out []Edge
	for _, e := range p.edges {
		if e.Right == id {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges out of id, tagged by which of the node's
// outputs (stdout/stderr) each edge carries.
func (p *Program) OutgoingEdges(id stream.NodeId) map[stream.IoKind]Edge {
	n := p.nodes[id]
	out := make(map[stream.IoKind]Edge)
	for _, e := range p.edges {
		if e.Left != id {
			continue
		}
		if n.HasStdout() {
			if left, right, ok := n.Stdout().Endpoints(); ok && left == id && right == e.Right {
				out[stream.Stdout] = e
				continue
			}
		}
		if n.HasStderr() {
			if left, right, ok := n.Stderr().Endpoints(); ok && left == id && right == e.Right {
				out[stream.Stderr] = e
				continue
			}
		}
	}
	return out
}

// TopoOrder returns a topological order over the program's nodes (inputs
// are already validated DAGs per spec.md; a cycle produces an error here
// rather than looping forever).
func (p *Program) TopoOrder() ([]stream.NodeId, error) {
	indeg := make(map[stream.NodeId]int, len(p.nodes))
	for id := range p.nodes {
		indeg[id] = 0
	}
	for _, e := range p.edges {
		indeg[e.Right]++
	}
	var queue []stream.NodeId
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	var order []stream.NodeId
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		var nexts []stream.NodeId
		for _, e := range p.edges {
			if e.Left == id {
				indeg[e.Right]--
				if indeg[e.Right] == 0 {
					nexts = append(nexts, e.Right)
				}
			}
		}
		sort.Slice(nexts, func(i, j int) bool { return nexts[i] < nexts[j] })
		queue = append(queue, nexts...)
	}
	if len(order) != len(p.nodes) {
		return nil, errors.New("program graph has a cycle; inputs must already be a topologically ordered DAG")
	}
	return order, nil
}

// StdoutForwardPaths enumerates every source-to-sink path in the graph,
// following only stdout edges (used by the heuristic scheduler).
func (p *Program) StdoutForwardPaths() [][]stream.NodeId {
	sources := p.sources()
	var paths [][]stream.NodeId
	for _, src := range sources {
		path := []stream.NodeId{src}
		p.walkStdout(src, path, &paths)
	}
	return paths
}

func (p *Program) sources() []stream.NodeId {
	hasIn := make(map[stream.NodeId]bool)
	for _, e := range p.edges {
		hasIn[e.Right] = true
	}
	var out []stream.NodeId
	for id := range p.nodes {
		if !hasIn[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Program) walkStdout(id stream.NodeId, path []stream.NodeId, paths *[][]stream.NodeId) {
	outs := p.OutgoingEdges(id)
	next, ok := outs[stream.Stdout]
	if !ok {
		if len(path) > 1 {
			*paths = append(*paths, append([]stream.NodeId{}, path...))
		}
		return
	}
	p.walkStdout(next.Right, append(path, next.Right), paths)
}

// Validate checks the structural invariants from spec.md §3: edges are
// unique (enforced on insert), every edge's endpoints exist (enforced on
// insert), the graph is acyclic, and every Pipe/Net stream on a node is
// matched by an edge between its endpoints in consistent roles.
func (p *Program) Validate() error {
	if _, err := p.TopoOrder(); err != nil {
		return err
	}
	for id, n := range p.nodes {
		for _, d := range n.OutwardStreams() {
			left, right, ok := d.Endpoints()
			if !ok {
				continue
			}
			if left != id && right != id {
				return fmt.Errorf("node %d: stream %s does not reference this node", id, d)
			}
			if !p.edgeSet[Edge{Left: left, Right: right}] {
				return fmt.Errorf("node %d: stream %s has no matching edge (%d,%d)", id, d, left, right)
			}
		}
	}
	return nil
}
