package runtime

import (
	"net"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/dashrun/dash/cmn/nlog"
	"github.com/dashrun/dash/filecache"
	"github.com/dashrun/dash/stream"
	"github.com/dashrun/dash/wire"
)

// Server is the per-machine listener a dash server binary runs: it accepts
// control connections from the client and dispatches ProgramExecution,
// Pipe, and SizeRequest messages (spec.md §4.5.2).
type Server struct {
	Here       stream.Location
	ScratchDir string
	Root       string // relative SizeRequest paths are resolved against this root; sub-program paths are not
	Cache      *filecache.Cache

	engines *SharedMap[stream.ProgramId, *Engine]
}

func NewServer(here stream.Location, scratchDir, root string, cache *filecache.Cache) *Server {
	return &Server{
		Here:       here,
		ScratchDir: scratchDir,
		Root:       root,
		Cache:      cache,
		engines:    NewSharedMap[stream.ProgramId, *Engine](),
	}
}

// ListenAndServe runs the accept loop until addr's listener fails or is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	nlog.Infof("runtime: server listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return errors.Wrap(err, "accept")
		}
		go s.handleConn(conn)
	}
}

// engineFor returns the Engine for progID, creating it on first use. A
// program id arrives across several connections (one per stream-setup
// request plus one for ProgramExecution), so every request after the first
// must reuse the same Engine rather than failing the shared maps' "insert
// once" check.
func (s *Server) engineFor(progID stream.ProgramId) *Engine {
	if existing, ok := s.engines.Peek(progID); ok {
		return existing
	}
	e := NewEngine(progID, s.Here, s.ScratchDir)
	if err := s.engines.Insert(progID, e); err != nil {
		if existing, ok := s.engines.Peek(progID); ok {
			return existing
		}
	}
	return e
}

func (s *Server) handleConn(conn net.Conn) {
	mt, body, err := wire.ReadFrame(conn)
	if err != nil {
		nlog.Warningf("runtime: server: reading request: %v", err)
		_ = conn.Close()
		return
	}

	switch mt {
	case wire.ProgramExecution:
		s.handleProgramExecution(conn, body)
	case wire.Pipe:
		s.handlePipe(conn, body)
	case wire.SizeRequest:
		s.handleSizeRequest(conn, body)
	default:
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Errorf("server does not accept %s as a request", mt)))
		_ = conn.Close()
	}
}

func (s *Server) handleProgramExecution(conn net.Conn, body []byte) {
	defer conn.Close()
	var dto wire.ProgramDTO
	if err := wire.Unmarshal(body, &dto); err != nil {
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Wrap(err, "decoding sub-program")))
		return
	}
	prog, err := wire.DecodeProgram(dto)
	if err != nil {
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Wrap(err, "reconstructing sub-program")))
		return
	}
	// File paths in the sub-program are used exactly as shipped: they are
	// not resolved against s.Root, and the client does not canonicalize
	// them before shipping.

	subprogramsShipped.Inc()
	e := s.engineFor(dto.ID)
	runErr := e.Run(prog)
	_ = wire.WriteJSON(conn, wire.Control, wire.Failure(runErr))
}

func (s *Server) handlePipe(conn net.Conn, body []byte) {
	var info wire.NetworkStreamInfo
	if err := wire.Unmarshal(body, &info); err != nil {
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Wrap(err, "decoding pipe request")))
		_ = conn.Close()
		return
	}
	e := s.engineFor(info.ProgramID)

	switch info.Role {
	case wire.RoleListen:
		s.handleListenRequest(conn, e, info)
	case wire.RoleDial:
		s.handleDialRequest(conn, e, info)
	default:
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Errorf("unknown stream role %q", info.Role)))
		_ = conn.Close()
	}
}

func (s *Server) handleListenRequest(conn net.Conn, e *Engine, info wire.NetworkStreamInfo) {
	defer conn.Close()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Wrap(err, "opening stream listener")))
		return
	}
	port := ln.Addr().(*net.TCPAddr).Port
	info.Port = port
	if err := wire.WriteJSON(conn, wire.Pipe, info); err != nil {
		_ = ln.Close()
		return
	}
	go func() {
		c, err := ln.Accept()
		_ = ln.Close()
		if err != nil {
			nlog.Errorf("runtime: accepting stream connection for %v: %v", info.Net, err)
			return
		}
		if err := e.Streams.Insert(info.Net, c); err != nil {
			nlog.Errorf("runtime: registering stream connection for %v: %v", info.Net, err)
			_ = c.Close()
		}
	}()
}

func (s *Server) handleDialRequest(conn net.Conn, e *Engine, info wire.NetworkStreamInfo) {
	defer conn.Close()
	c, err := net.Dial("tcp", net.JoinHostPort(info.Addr, strconv.Itoa(info.Port)))
	if err != nil {
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(errors.Wrapf(err, "dialing %s:%d", info.Addr, info.Port)))
		return
	}
	if err := e.Streams.Insert(info.Net, c); err != nil {
		_ = c.Close()
		_ = wire.WriteJSON(conn, wire.Control, wire.Failure(err))
		return
	}
	_ = wire.WriteJSON(conn, wire.Control, wire.Success())
}

func (s *Server) handleSizeRequest(conn net.Conn, body []byte) {
	defer conn.Close()
	var req wire.SizeRequestMsg
	if err := wire.Unmarshal(body, &req); err != nil {
		_ = wire.WriteJSON(conn, wire.SizeRequest, wire.SizeRequestMsg{Failed: true})
		return
	}
	sizes := make(map[string]int64, len(req.Paths))
	for _, p := range req.Paths {
		resolved := p
		if s.Root != "" && !filepath.IsAbs(p) {
			resolved = filepath.Join(s.Root, p)
		}
		sz, err := s.Cache.Size(resolved)
		if err != nil {
			nlog.Warningf("runtime: size request: stat %s: %v", resolved, err)
			continue
		}
		sizes[p] = sz
	}
	_ = wire.WriteJSON(conn, wire.SizeRequest, wire.SizeRequestMsg{Paths: req.Paths, Sizes: sizes})
}

