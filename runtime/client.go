package runtime

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dashrun/dash/annot"
	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/graph"
	"github.com/dashrun/dash/netcfg"
	"github.com/dashrun/dash/sched"
	"github.com/dashrun/dash/stream"
	"github.com/dashrun/dash/wire"
)

// Client drives one run of the client-server protocol (spec.md §4.5.2):
// schedule and rewrite the program, set up every cross-machine stream, ship
// each sub-program to its owning server, and collect the results. The
// client's own sub-program runs in-process via an embedded Engine.
type Client struct {
	Config     *netcfg.Config
	Cache      *filecache.Cache
	Scheduler  sched.Scheduler
	ScratchDir string
	// SelfAddr is the host (no port) a sending server dials to reach this
	// client when the client is the receiving side of a cross-machine
	// stream. NetStream.ReceivingSide never names the client (the client
	// is always the sending side of a stream it takes part in), so stream
	// setup in Run does not use it.
	SelfAddr string
}

func NewClient(cfg *netcfg.Config, scheduler sched.Scheduler, scratchDir, selfAddr string) *Client {
	cl := &Client{Config: cfg, Scheduler: scheduler, ScratchDir: scratchDir, SelfAddr: selfAddr}
	cl.Cache = filecache.New(cl.remoteSize)
	return cl
}

func (cl *Client) remoteSize(loc stream.Location, paths []string) (map[string]int64, error) {
	conn, err := net.Dial("tcp", loc.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s for size request", loc)
	}
	defer conn.Close()
	if err := wire.WriteJSON(conn, wire.SizeRequest, wire.SizeRequestMsg{Paths: paths}); err != nil {
		return nil, err
	}
	var reply wire.SizeRequestMsg
	if err := wire.ReadJSON(conn, wire.SizeRequest, &reply); err != nil {
		return nil, err
	}
	if reply.Failed {
		return nil, errors.Errorf("size request to %s failed", loc)
	}
	return reply.Sizes, nil
}

// Run schedules prog, applies the four program-graph rewrites (spec.md
// §4.3), splits it by machine, sets up cross-machine streams, and ships
// every non-client sub-program to its server while running the client's own
// sub-program in-process.
func (cl *Client) Run(prog *graph.Program, matches map[stream.NodeId]annot.ArgMatch, pwd string) error {
	assignments, err := cl.Scheduler.Schedule(prog, matches, cl.Config, cl.Cache, pwd)
	if err != nil {
		return errors.Wrap(err, "scheduling")
	}
	for id, loc := range assignments {
		n, ok := prog.GetNode(id)
		if !ok {
			return errors.Errorf("scheduler assigned unknown node %d", id)
		}
		n.SetLocation(loc)
	}

	// Order matches original_source/shell/src/interpreter/interpreter.rs:
	// remote-access fifos before pipe->net promotion before read-node
	// elision, and split-by-machine last (right before shipping).
	if err := graph.InsertRemoteFifos(prog, cl.Config); err != nil {
		return errors.Wrap(err, "inserting remote-access fifos")
	}
	if err := graph.PromotePipesToNet(prog); err != nil {
		return errors.Wrap(err, "promoting pipes to net streams")
	}
	if err := graph.ElideReadNodes(prog); err != nil {
		return errors.Wrap(err, "eliding read nodes")
	}
	graph.MarkBufferable(prog)

	if err := prog.Validate(); err != nil {
		return errors.Wrap(err, "validating rewritten program")
	}

	parts, err := graph.SplitByMachine(prog)
	if err != nil {
		return errors.Wrap(err, "splitting program by machine")
	}

	localEngine := NewEngine(prog.ID, stream.Client, cl.ScratchDir)
	run := &clientRun{cl: cl, progID: prog.ID, local: localEngine}

	if err := run.setupStreams(prog); err != nil {
		return errors.Wrap(err, "setting up cross-machine streams")
	}
	return run.shipAndRun(parts)
}

// clientRun holds the state specific to one Client.Run call, keeping the
// Client itself free of per-run mutable fields.
type clientRun struct {
	cl     *Client
	progID stream.ProgramId
	local  *Engine
}

// setupStreams finds every distinct NetStream in prog and establishes its
// TCP connection: one RoleListen round trip to the receiving machine, then
// one RoleDial round trip to the sending machine, run in parallel across
// streams (spec.md §4.5.2 step 2).
func (r *clientRun) setupStreams(prog *graph.Program) error {
	seen := make(map[stream.NetStream]bool)
	var nets []stream.NetStream
	for _, n := range prog.Nodes() {
		for _, d := range n.OutwardStreams() {
			if d.Kind != stream.KindNet || seen[d.Net] {
				continue
			}
			seen[d.Net] = true
			nets = append(nets, d.Net)
		}
	}

	var g errgroup.Group
	for _, n := range nets {
		n := n
		g.Go(func() error { return r.setupOneStream(n) })
	}
	return g.Wait()
}

func (r *clientRun) setupOneStream(n stream.NetStream) error {
	receiver := n.ReceivingSide()
	sender := n.SendingSide()

	listenInfo := wire.NetworkStreamInfo{Role: wire.RoleListen, Location: receiver, ProgramID: r.progID, Net: n}
	port, err := r.requestListen(receiver, listenInfo)
	if err != nil {
		return errors.Wrapf(err, "stream %v: listen on %s", n, receiver)
	}

	dialInfo := wire.NetworkStreamInfo{
		Role:      wire.RoleDial,
		Location:  sender,
		Addr:      r.hostOf(receiver),
		Port:      port,
		ProgramID: r.progID,
		Net:       n,
	}
	if err := r.requestDial(sender, dialInfo); err != nil {
		return errors.Wrapf(err, "stream %v: dial from %s", n, sender)
	}
	return nil
}

// hostOf returns the host (no port) other machines should use to reach loc.
func (r *clientRun) hostOf(loc stream.Location) string {
	if loc.IsClient() {
		return r.cl.SelfAddr
	}
	host, _, err := net.SplitHostPort(loc.Addr())
	if err != nil {
		return loc.Addr()
	}
	return host
}

func (r *clientRun) requestListen(loc stream.Location, info wire.NetworkStreamInfo) (int, error) {
	if loc.IsClient() {
		ln, err := net.Listen("tcp", ":0")
		if err != nil {
			return 0, err
		}
		port := ln.Addr().(*net.TCPAddr).Port
		go func() {
			conn, err := ln.Accept()
			_ = ln.Close()
			if err != nil {
				return
			}
			if err := r.local.Streams.Insert(info.Net, conn); err != nil {
				_ = conn.Close()
			}
		}()
		return port, nil
	}

	conn, err := net.Dial("tcp", loc.Addr())
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	if err := wire.WriteJSON(conn, wire.Pipe, info); err != nil {
		return 0, err
	}
	var reply wire.NetworkStreamInfo
	if err := wire.ReadJSON(conn, wire.Pipe, &reply); err != nil {
		return 0, err
	}
	return reply.Port, nil
}

func (r *clientRun) requestDial(loc stream.Location, info wire.NetworkStreamInfo) error {
	if loc.IsClient() {
		conn, err := net.Dial("tcp", net.JoinHostPort(info.Addr, strconv.Itoa(info.Port)))
		if err != nil {
			return err
		}
		return r.local.Streams.Insert(info.Net, conn)
	}

	conn, err := net.Dial("tcp", loc.Addr())
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := wire.WriteJSON(conn, wire.Pipe, info); err != nil {
		return err
	}
	var ctrl wire.ControlMsg
	if err := wire.ReadJSON(conn, wire.Control, &ctrl); err != nil {
		return err
	}
	if !ctrl.Success {
		return errors.Errorf("dial request refused: %s", ctrl.Error)
	}
	return nil
}

// shipAndRun ships every non-client sub-program to its server via
// ProgramExecution and runs the client's own sub-program in-process,
// in parallel, collecting every Control reply (spec.md §4.5.2 steps 3-4).
func (r *clientRun) shipAndRun(parts map[stream.Location]*graph.Program) error {
	var g errgroup.Group
	for loc, sub := range parts {
		loc, sub := loc, sub
		g.Go(func() error {
			if loc.IsClient() {
				return r.local.Run(sub)
			}
			return r.shipToServer(loc, sub)
		})
	}
	return g.Wait()
}

func (r *clientRun) shipToServer(loc stream.Location, sub *graph.Program) error {
	conn, err := net.Dial("tcp", loc.Addr())
	if err != nil {
		return errors.Wrapf(err, "dialing %s to ship sub-program", loc)
	}
	defer conn.Close()
	dto := wire.EncodeProgram(sub)
	if err := wire.WriteJSON(conn, wire.ProgramExecution, dto); err != nil {
		return err
	}
	var ctrl wire.ControlMsg
	if err := wire.ReadJSON(conn, wire.Control, &ctrl); err != nil {
		return err
	}
	if !ctrl.Success {
		return errors.Errorf("server %s reported failure: %s", loc, ctrl.Error)
	}
	return nil
}
