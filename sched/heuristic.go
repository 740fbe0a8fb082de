package sched

import (
	"math"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/annot"
	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/netcfg"
	"github.com/dashrun/dash/stream"
)

// HeuristicScheduler is the path-weight heuristic of spec.md §4.4.2,
// grounded on original_source/shell/src/scheduler/heuristic.rs: first pin
// every node with a hard location constraint, then for each stdout-forward
// path vote each unconstrained node onto the side of the path's min-weight
// cut that minimizes bytes crossing machines. A node whose votes across
// paths ever disagree on the location falls back to Client, no matter how
// lopsided the disagreement is.
type HeuristicScheduler struct{}

func (s HeuristicScheduler) Schedule(prog *graph.Program, matches map[stream.NodeId]annot.ArgMatch, cfg *netcfg.Config, fc *filecache.Cache, pwd string) (map[stream.NodeId]stream.Location, error) {
	pwdLoc := cfg.LocationOf(pwd)
	assignments := make(map[stream.NodeId]stream.Location)

	// Mandatory constraints first: these nodes have exactly one legal
	// location regardless of transfer cost.
	for id, n := range prog.Nodes() {
		switch v := n.(type) {
		case *graph.Read:
			assignments[id] = cfg.LocationOf(v.Input.Path)
		case *graph.Write:
			assignments[id] = outputLocation(v, cfg)
		case *graph.Cmd:
			m := matches[id]
			if m.NeedsCurrentDir {
				assignments[id] = pwdLoc
				continue
			}
			if deps := m.FileDependencies(annot.ArgInputFile); len(deps) > 0 {
				loc := cfg.LocationOf(deps[0].Path)
				consistent := true
				for _, d := range deps[1:] {
					if !cfg.LocationOf(d.Path).Equal(loc) {
						consistent = false
						break
					}
				}
				if consistent {
					assignments[id] = loc
				}
			}
			if deps := m.FileDependencies(annot.ArgOutputFile); len(deps) > 0 {
				if _, already := assignments[id]; !already {
					assignments[id] = cfg.LocationOf(deps[0].Path)
				}
			}
		}
	}

	votes := make(map[stream.NodeId]map[stream.Location]int)
	for _, path := range prog.StdoutForwardPaths() {
		if err := voteOnPath(prog, path, matches, assignments, fc, votes); err != nil {
			return nil, err
		}
	}

	for id := range prog.Nodes() {
		if _, ok := assignments[id]; ok {
			continue
		}
		counts := votes[id]
		if len(counts) == 0 {
			assignments[id] = stream.Client
			continue
		}
		assignments[id] = resolveVotes(counts)
	}

	return assignments, nil
}

// voteOnPath finds the min-weight cut of path — the split point that
// minimizes the bytes crossing from client-side nodes to server-side nodes —
// and casts one vote per unconstrained node in path for the side of the cut
// it falls on.
func voteOnPath(prog *graph.Program, path []stream.NodeId, matches map[stream.NodeId]annot.ArgMatch, assigned map[stream.NodeId]stream.Location, fc *filecache.Cache, votes map[stream.NodeId]map[stream.Location]int) error {
	weights := make([]float64, len(path)-1)
	for i := 0; i < len(path)-1; i++ {
		w, err := pathEdgeWeight(prog, path[i], matches, fc)
		if err != nil {
			return err
		}
		weights[i] = w
	}

	// cutAfter(k): assume everything path[0:k+1] is on one side and
	// path[k+1:] on the other — cost is the single crossing edge's weight.
	bestCut := -1 // -1 means "whole path on one side, no crossing"
	bestWeight := math.Inf(1)
	for k := -1; k < len(path)-1; k++ {
		var w float64
		if k >= 0 {
			w = weights[k]
		}
		if w < bestWeight {
			bestWeight = w
			bestCut = k
		}
	}

	serverSide := func(idx int) bool { return idx > bestCut }
	for idx, id := range path {
		if _, isFixed := assigned[id]; isFixed {
			continue
		}
		loc := stream.Client
		if serverSide(idx) {
			loc = serverLocationHint(prog, id, assigned)
		}
		if votes[id] == nil {
			votes[id] = make(map[stream.Location]int)
		}
		votes[id][loc]++
	}
	return nil
}

// serverLocationHint picks the location for a server-side vote: the
// location of the first direct predecessor already assigned to a server,
// or Client when no direct predecessor is; it does not fall back to any
// configured server.
func serverLocationHint(prog *graph.Program, id stream.NodeId, assigned map[stream.NodeId]stream.Location) stream.Location {
	for _, dep := range prog.DependentNodes(id) {
		if loc, ok := assigned[dep]; ok && loc.IsServer() {
			return loc
		}
	}
	return stream.Client
}

func pathEdgeWeight(prog *graph.Program, id stream.NodeId, matches map[stream.NodeId]annot.ArgMatch, fc *filecache.Cache) (float64, error) {
	var size float64
	n, _ := prog.GetNode(id)
	switch v := n.(type) {
	case *graph.Cmd:
		m := matches[id]
		for _, fs := range m.FileDependencies(annot.ArgInputFile) {
			sz, err := fc.Size(fs.Path)
			if err != nil {
				return 0, errors.Wrapf(err, "cmd node %d input file %s", id, fs.Path)
			}
			size += float64(sz)
		}
		if m.ReducesInput {
			size /= 2
		}
		if len(m.FileDependencies(annot.ArgOutputFile)) > 0 {
			size = 0
		}
	case *graph.Read:
		sz, err := fc.Size(v.Input.Path)
		if err != nil {
			return 0, errors.Wrapf(err, "read node %d", id)
		}
		size = float64(sz)
	}
	return size, nil
}

// resolveVotes applies heuristic.rs's resolution rule: any disagreement
// among the distinct candidate locations a node received votes for falls
// back to Client, regardless of how lopsided the vote split is — a 3-vs-1
// vote for a server is still disagreement, not a majority the scheduler
// should trust to place a node on a server it may have no business running
// on. Only a single distinct candidate location is honored.
func resolveVotes(counts map[stream.Location]int) stream.Location {
	if len(counts) != 1 {
		return stream.Client
	}
	for loc := range counts {
		return loc
	}
	return stream.Client
}
