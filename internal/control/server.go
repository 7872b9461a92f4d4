//go:build unix

package control

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/trybotster/synkd/internal/ptypool"
	"github.com/trybotster/synkd/internal/session"
)

// Server listens on a unix domain socket and dispatches line-delimited
// JSON requests to a session.Manager and ptypool.Pool.
type Server struct {
	socketPath string
	manager    *session.Manager
	pool       *ptypool.Pool
	listener   net.Listener
	log        zerolog.Logger
}

// NewServer constructs a control server bound to socketPath once Serve is
// called. Any stale socket file at socketPath is removed first.
func NewServer(socketPath string, manager *session.Manager, pool *ptypool.Pool, log zerolog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		manager:    manager,
		pool:       pool,
		log:        log.With().Str("component", "control_server").Logger(),
	}
}

// Serve listens and accepts connections until Close is called.
func (s *Server) Serve() error {
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections and removes the socket file.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	_ = os.Remove(s.socketPath)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			enc.Encode(Response{Type: "error", Error: "malformed request: " + err.Error()})
			continue
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.log.Debug().Err(err).Msg("control connection write failed")
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := s.route(req)
	resp.RequestID = req.RequestID
	return resp
}

func (s *Server) route(req Request) Response {
	switch req.Type {
	case "session_create":
		return s.handleCreate(req)
	case "session_destroy":
		return s.handleDestroy(req)
	case "session_write":
		return s.handleWrite(req)
	case "session_resize":
		return s.handleResize(req)
	case "session_restart":
		return s.handleRestart(req)
	case "session_list":
		return s.handleList(req)
	case "session_scrollback":
		return s.handleScrollback(req)
	case "debug_pool_stats":
		return s.handleStats(req)
	case "debug_pool_roundtrip":
		return s.handleRoundtrip(req)
	default:
		return Response{Type: req.Type, Error: "unknown command: " + req.Type}
	}
}

func (s *Server) handleCreate(req Request) Response {
	home, _ := os.UserHomeDir()
	info, err := s.manager.CreateSession(session.CreateArgs{
		AgentType:     session.AgentType(req.AgentType),
		ProjectPath:   req.ProjectPath,
		WorkingDir:    req.WorkingDir,
		Branch:        req.Branch,
		Model:         req.Model,
		CodexProvider: session.ProviderChoice(req.CodexProvider),
		Env:           req.Env,
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenRouterKey: os.Getenv("OPENROUTER_API_KEY"),
		HomeDir:       home,
	})
	if err != nil {
		return ErrorResponse("session_create", err)
	}
	return Response{
		Type:      "session_create",
		SessionID: info.SessionID,
		PaneIndex: info.PaneIndex,
		AgentType: string(info.AgentType),
		Warning:   info.Warning,
	}
}

func (s *Server) handleDestroy(req Request) Response {
	if err := s.manager.DestroySession(req.SessionID); err != nil {
		return ErrorResponse("session_destroy", err)
	}
	return Response{Type: "session_destroy", Success: true}
}

func (s *Server) handleWrite(req Request) Response {
	if err := s.manager.Write(req.SessionID, []byte(req.Data)); err != nil {
		return ErrorResponse("session_write", err)
	}
	return Response{Type: "session_write"}
}

func (s *Server) handleResize(req Request) Response {
	if err := s.manager.Resize(req.SessionID, uint16(req.Cols), uint16(req.Rows)); err != nil {
		return ErrorResponse("session_resize", err)
	}
	return Response{Type: "session_resize"}
}

func (s *Server) handleRestart(req Request) Response {
	info, err := s.manager.RestartSession(req.SessionID, session.RestartArgs{
		WorkingDir:    req.WorkingDir,
		Branch:        req.Branch,
		Model:         req.Model,
		CodexProvider: session.ProviderChoice(req.CodexProvider),
	})
	if err != nil {
		return ErrorResponse("session_restart", err)
	}
	return Response{
		Type:      "session_restart",
		SessionID: info.SessionID,
		PaneIndex: info.PaneIndex,
		AgentType: string(info.AgentType),
		Warning:   info.Warning,
	}
}

func (s *Server) handleList(req Request) Response {
	infos := s.manager.ListSessions()
	out := make([]SessionSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, SessionSummary{
			SessionID:   info.SessionID,
			PaneIndex:   info.PaneIndex,
			AgentType:   string(info.AgentType),
			Warning:     info.Warning,
			WorkingDir:  info.WorkingDir,
			ProjectPath: info.ProjectPath,
			Branch:      info.Branch,
		})
	}
	return Response{Type: "session_list", Sessions: out}
}

func (s *Server) handleScrollback(req Request) Response {
	data, err := s.manager.Scrollback(req.SessionID)
	if err != nil {
		return ErrorResponse("session_scrollback", err)
	}
	return Response{Type: "session_scrollback", Scrollback: base64.StdEncoding.EncodeToString(data)}
}

func (s *Server) handleStats(req Request) Response {
	stats := s.pool.Stats()
	return Response{Type: "debug_pool_stats", Stats: &PoolStats{
		Idle:         stats.Idle,
		Active:       stats.Active,
		SpawningIdle: stats.SpawningIdle,
	}}
}

func (s *Server) handleRoundtrip(req Request) Response {
	marker, err := s.pool.DebugRoundtrip()
	if err != nil {
		return ErrorResponse("debug_pool_roundtrip", err)
	}
	return Response{Type: "debug_pool_roundtrip", Roundtrip: marker}
}
