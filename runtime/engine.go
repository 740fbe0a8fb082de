package runtime

import (
	"net"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dashrun/dash/cmn/cos"
	"github.com/dashrun/dash/cmn/nlog"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/stream"
)

// Engine executes one sub-program (a single machine's partition of the
// rewritten graph, spec.md §4.3a) in two phases: spawn, then redirect.
type Engine struct {
	ProgramID  stream.ProgramId
	Here       stream.Location
	ScratchDir string

	Pipes    *PipeMap
	Streams  *StreamMap
	Channels *ChannelMap

	mu        sync.Mutex
	processes map[stream.NodeId]*exec.Cmd
}

func NewEngine(progID stream.ProgramId, here stream.Location, scratchDir string) *Engine {
	return &Engine{
		ProgramID:  progID,
		Here:       here,
		ScratchDir: scratchDir,
		Pipes:      NewSharedMap[stream.HandleIdentifier, OutputHandle](),
		Streams:    NewSharedMap[stream.NetStream, net.Conn](),
		Channels:   NewSharedMap[uint64, ChannelEnd](),
		processes:  make(map[stream.NodeId]*exec.Cmd),
	}
}

// Run executes prog to completion: spawn every node in topological order,
// then run every node's redirection workers in parallel, then wait on every
// spawned child process.
func (e *Engine) Run(prog *graph.Program) error {
	order, err := prog.TopoOrder()
	if err != nil {
		return err
	}
	if err := e.spawnAll(prog, order); err != nil {
		return errors.Wrap(err, "spawn phase")
	}

	group := &errgroup.Group{}
	for _, id := range order {
		id := id
		n, _ := prog.GetNode(id)
		group.Go(func() error {
			if err := e.redirectNode(prog, n); err != nil {
				return errors.Wrapf(err, "node %d", id)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return errors.Wrap(err, "redirection phase")
	}

	return e.waitAll()
}

// waitAll waits on every spawned process and reports every distinct failure
// (up to cos.Errs' bound), rather than just the first one errgroup would
// surface: a pipeline commonly has more than one command fail together
// (e.g. a broken pipe cascades), and the run's final error should say so.
func (e *Engine) waitAll() error {
	e.mu.Lock()
	procs := make(map[stream.NodeId]*exec.Cmd, len(e.processes))
	for id, p := range e.processes {
		procs[id] = p
	}
	e.mu.Unlock()

	var wg sync.WaitGroup
	var errs cos.Errs
	wg.Add(len(procs))
	for id, p := range procs {
		id, p := id, p
		go func() {
			defer wg.Done()
			if err := p.Wait(); err != nil {
				errs.Add(errors.Wrapf(err, "node %d process exited with error", id))
			}
		}()
	}
	wg.Wait()
	_, err := errs.JoinErr()
	return err
}

func (e *Engine) registerProcess(id stream.NodeId, p *exec.Cmd) {
	e.mu.Lock()
	e.processes[id] = p
	e.mu.Unlock()
	nlog.Infof("runtime: spawned node %d (pid %d)", id, p.Process.Pid)
}
