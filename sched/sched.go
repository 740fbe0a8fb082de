// Package sched assigns each program-graph node a Location, optimizing (or
// heuristically approximating) data transfer over a known inter-machine
// bandwidth matrix while honoring placement constraints.
package sched

import (
	"github.com/dashrun/dash/annot"
	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/netcfg"
	"github.com/dashrun/dash/stream"
)

// Scheduler is the contract spec.md §4.4 describes: given the graph, the
// annotation-derived facts per cmd node, the network/file config, a file
// size oracle, and the client's working directory, return a
// NodeId -> Location assignment honoring every hard constraint.
type Scheduler interface {
	Schedule(prog *graph.Program, matches map[stream.NodeId]annot.ArgMatch, cfg *netcfg.Config, fc *filecache.Cache, pwd string) (map[stream.NodeId]stream.Location, error)
}

// outputLocation returns the location a Write node's single output pins it to.
func outputLocation(w *graph.Write, cfg *netcfg.Config) stream.Location {
	out := w.Output
	switch out.Kind {
	case stream.KindFile:
		return cfg.LocationOf(out.File.Path)
	default: // Stdout, Stderr
		return stream.Client
	}
}
