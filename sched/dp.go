package sched

import (
	"math"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/annot"
	"github.com/dashrun/dash/cmn/nlog"
	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/netcfg"
	"github.com/dashrun/dash/stream"
)

// DPScheduler is the dynamic-programming optimiser of spec.md §4.4.1,
// grounded on original_source/shell/src/scheduler/dp.rs: it fills
// dp[(node,location)] = minimum cumulative transfer time to execute node at
// location for every node/location pair in topological order, then
// backtracks from every sink to pick the winning assignment.
type DPScheduler struct{}

type nodeLoc struct {
	node stream.NodeId
	loc  string // netcfg key form, used only as a map key
}

type dpTable struct {
	locKey map[string]stream.Location
	val    map[nodeLoc]float64
	pred   map[nodeLoc]map[stream.NodeId]nodeLoc // best predecessor assignment per (node,loc)
	minLoc map[stream.NodeId]nodeLoc
}

func newDPTable() *dpTable {
	return &dpTable{
		locKey: make(map[string]stream.Location),
		val:    make(map[nodeLoc]float64),
		pred:   make(map[nodeLoc]map[stream.NodeId]nodeLoc),
		minLoc: make(map[stream.NodeId]nodeLoc),
	}
}

func (t *dpTable) key(n stream.NodeId, l stream.Location) nodeLoc {
	k := l.String()
	t.locKey[k] = l
	return nodeLoc{node: n, loc: k}
}

func (t *dpTable) setMinLoc(n stream.NodeId, nl nodeLoc, val float64) error {
	if existing, ok := t.minLoc[n]; ok {
		if existing != nl {
			return errors.Errorf("min location for node %d already set as %v, not %v", n, existing.loc, nl.loc)
		}
		return nil
	}
	t.minLoc[n] = nl
	_ = val
	return nil
}

func (s DPScheduler) Schedule(prog *graph.Program, matches map[stream.NodeId]annot.ArgMatch, cfg *netcfg.Config, fc *filecache.Cache, pwd string) (map[stream.NodeId]stream.Location, error) {
	order, err := prog.TopoOrder()
	if err != nil {
		return nil, err
	}
	locations := cfg.Locations()
	pwdLoc := cfg.LocationOf(pwd)

	edgeWeights, err := calcEdgeWeights(prog, order, matches, fc)
	if err != nil {
		return nil, err
	}

	dp := newDPTable()
	for _, id := range order {
		for _, loc := range locations {
			val, err := calcDP(prog, id, loc, matches, cfg, fc, pwdLoc, edgeWeights, dp)
			if err != nil {
				return nil, err
			}
			dp.val[dp.key(id, loc)] = val
		}
	}

	if err := backtrack(prog, locations, dp); err != nil {
		return nil, err
	}

	assignments := make(map[stream.NodeId]stream.Location, len(order))
	for _, id := range order {
		nl, ok := dp.minLoc[id]
		if !ok {
			return nil, errors.Errorf("node %d: not reachable from any sink during backtracking", id)
		}
		assignments[id] = dp.locKey[nl.loc]
	}
	return assignments, nil
}

func backtrack(prog *graph.Program, locations []stream.Location, dp *dpTable) error {
	for _, sinkID := range prog.Sinks() {
		var bestLoc stream.Location
		bestVal := math.Inf(1)
		for _, loc := range locations {
			v := dp.val[dp.key(sinkID, loc)]
			if v < bestVal {
				bestVal = v
				bestLoc = loc
			}
		}
		if math.IsInf(bestVal, 1) {
			return errors.Errorf("all locations for sink node %d are infinite cost", sinkID)
		}
		sinkNL := dp.key(sinkID, bestLoc)
		if err := dp.setMinLoc(sinkID, sinkNL, bestVal); err != nil {
			return err
		}

		// Skip propagating to ancestors for a write node whose sink is
		// stderr: forcing the client here isn't meaningful (spec.md §4.4.1).
		if w, ok := mustNode(prog, sinkID).(*graph.Write); ok && w.Output.Kind == stream.KindStderr {
			continue
		}

		stack := []stream.NodeId{sinkID}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			currentNL, ok := dp.minLoc[node]
			if !ok {
				continue
			}
			preds := dp.pred[currentNL]
			for predID, predNL := range preds {
				if err := dp.setMinLoc(predID, predNL, dp.val[predNL]); err != nil {
					nlog.Errorf("backtrack conflict at node %d: %v", predID, err)
					return err
				}
				stack = append(stack, predID)
			}
		}
	}
	return nil
}

func mustNode(prog *graph.Program, id stream.NodeId) graph.Node {
	n, _ := prog.GetNode(id)
	return n
}

type edge struct{ from, to stream.NodeId }

func calcEdgeWeights(prog *graph.Program, order []stream.NodeId, matches map[stream.NodeId]annot.ArgMatch, fc *filecache.Cache) (map[edge]float64, error) {
	weights := make(map[edge]float64)
	for _, id := range order {
		var inputSize float64
		for _, dep := range prog.DependentEdges(id) {
			w, ok := weights[edge{dep.Left, dep.Right}]
			if !ok {
				return nil, errors.Errorf("topological order violated: edge (%d,%d) weight not yet computed", dep.Left, dep.Right)
			}
			inputSize += w
		}

		isFilter := false
		n := mustNode(prog, id)
		switch v := n.(type) {
		case *graph.Cmd:
			m := matches[id]
			isFilter = m.ReducesInput
			for _, fs := range m.FileDependencies(annot.ArgInputFile) {
				sz, err := fc.Size(fs.Path)
				if err != nil {
					return nil, errors.Wrapf(err, "cmd node %d input file %s", id, fs.Path)
				}
				inputSize += float64(sz)
			}
			_ = v
		case *graph.Read:
			sz, err := fc.Size(v.Input.Path)
			if err != nil {
				return nil, errors.Wrapf(err, "read node %d", id)
			}
			inputSize += float64(sz)
		case *graph.Write:
			// no input dependencies contribute to its (nonexistent) outgoing edges
		}

		outputSize := inputSize
		if isFilter {
			outputSize = inputSize / 2
		}
		if c, ok := n.(*graph.Cmd); ok {
			if len(matches[id].FileDependencies(annot.ArgOutputFile)) > 0 {
				outputSize = 0
			}
			_ = c
		}

		outs := prog.OutgoingEdges(id)
		if stdoutEdge, ok := outs[stream.Stdout]; ok {
			weights[edge{stdoutEdge.Left, stdoutEdge.Right}] = outputSize
		}
		if stderrEdge, ok := outs[stream.Stderr]; ok {
			weights[edge{stderrEdge.Left, stderrEdge.Right}] = 0
		}
	}
	return weights, nil
}

func constraint(assigned, potential stream.Location) float64 {
	if !assigned.Equal(potential) {
		return math.Inf(1)
	}
	return 0
}

func calcDP(prog *graph.Program, id stream.NodeId, loc stream.Location, matches map[stream.NodeId]annot.ArgMatch, cfg *netcfg.Config, fc *filecache.Cache, pwdLoc stream.Location, edgeWeights map[edge]float64, dp *dpTable) (float64, error) {
	locations := cfg.Locations()

	minTerm := func(prevID stream.NodeId) (float64, error) {
		w, ok := edgeWeights[edge{prevID, id}]
		if !ok {
			return 0, errors.Errorf("no edge weight recorded between %d and %d", prevID, id)
		}
		best := math.Inf(1)
		var bestLoc stream.Location
		for _, prevLoc := range locations {
			prevVal := dp.val[dp.key(prevID, prevLoc)]
			var v float64
			if prevLoc.Equal(loc) {
				// Same machine: the edge never touches the network.
				v = prevVal
			} else if bw, hasLink := cfg.Bandwidth(prevLoc, loc); hasLink && bw > 0 {
				v = prevVal + w/bw
			} else {
				v = math.Inf(1)
			}
			if v <= best {
				best = v
				bestLoc = prevLoc
			}
		}
		if dp.pred[dp.key(id, loc)] == nil {
			dp.pred[dp.key(id, loc)] = make(map[stream.NodeId]nodeLoc)
		}
		dp.pred[dp.key(id, loc)][prevID] = dp.key(prevID, bestLoc)
		return best, nil
	}

	n := mustNode(prog, id)
	switch v := n.(type) {
	case *graph.Cmd:
		m := matches[id]
		var inputTime float64
		for _, fs := range m.FileDependencies(annot.ArgInputFile) {
			fileLoc := cfg.LocationOf(fs.Path)
			sz, err := fc.Size(fs.Path)
			if err != nil {
				return 0, errors.Wrapf(err, "cmd node %d input file %s", id, fs.Path)
			}
			if loc.Equal(fileLoc) {
				continue // same machine, no transfer cost
			}
			bw, hasLink := cfg.Bandwidth(loc, fileLoc)
			if !hasLink || bw == 0 {
				inputTime = math.Inf(1)
			} else if !math.IsInf(inputTime, 1) {
				inputTime += float64(sz) / bw
			}
		}
		if m.NeedsCurrentDir {
			// Directory-size queries can be prohibitively expensive (e.g. a
			// large nested repo), so dash treats a working-dir mismatch as an
			// outright constraint rather than costing the transfer, exactly
			// as the original does.
			inputTime += constraint(loc, pwdLoc)
		}
		var dpVal float64
		for _, predID := range prog.DependentNodes(id) {
			t, err := minTerm(predID)
			if err != nil {
				return 0, err
			}
			dpVal += t
		}
		return dpVal + inputTime, nil

	case *graph.Read:
		if len(prog.DependentNodes(id)) != 0 {
			return 0, errors.Errorf("read node %d must have no predecessors", id)
		}
		return constraint(loc, cfg.LocationOf(v.Input.Path)), nil

	case *graph.Write:
		var dpVal float64
		for _, predID := range prog.DependentNodes(id) {
			t, err := minTerm(predID)
			if err != nil {
				return 0, err
			}
			dpVal += t
		}
		return dpVal + constraint(loc, outputLocation(v, cfg)), nil
	}
	return 0, errors.Errorf("node %d: unknown node kind", id)
}
