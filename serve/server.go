package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/bridge"
	defaults "github.com/Paranoid-AF/codelet/default"
)

// maxLineBytes bounds one inbound message; messages carry whole files.
const maxLineBytes = 16 << 20

// Server listens on a Unix domain socket. Each connection is one editor
// session with its own bridge and open-file table.
type Server struct {
	*sessions

	listener   net.Listener
	sockPath   string
	configPath string

	wg      sync.WaitGroup
	connMu  sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// NewServer creates a server bound to sockPath.
func NewServer(sockPath string, cfg *codelet.Config) (*Server, error) {
	return NewServerWithFactory(sockPath, cfg, nil)
}

// NewServerWithFactory creates a server whose sessions use factory to build bridges.
func NewServerWithFactory(sockPath string, cfg *codelet.Config, factory BridgeFactory) (*Server, error) {
	// Remove stale socket file if it exists
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		sessions:   newSessions(cfg, factory),
		listener:   listener,
		sockPath:   sockPath,
		configPath: codelet.ConfigPath(),
		conns:      make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// track registers conn and its handler goroutine unless the server is closing.
func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// Close stops accepting, ends every session, and removes the socket file.
func (s *Server) Close() {
	s.connMu.Lock()
	if s.closing {
		s.connMu.Unlock()
		return
	}
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	s.listener.Close()
	s.wg.Wait()
	s.stopAll()
	os.Remove(s.sockPath)
}

// connSink writes bridge output to a connection as JSON lines.
type connSink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connSink) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	slog.Debug("response", "data", string(data))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.conn.Write(append(data, '\n')); err != nil {
		slog.Debug("write failed", "error", err)
	}
}

func (w *connSink) Result(res codelet.CompletionResult) {
	w.write(res)
}

func (w *connSink) Status(st codelet.Status) {
	w.write(codelet.StatusNotification{Type: codelet.TypeStatus, Status: st})
}

// envelope holds the fields that decide how a line is dispatched.
type envelope struct {
	Action string `json:"action"`
	Type   string `json:"type"`
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	sink := &connSink{conn: conn}
	b := s.open(sink)
	defer s.close(b)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		raw := scanner.Bytes()
		slog.Debug("request", "data", string(raw))

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Warn("invalid request", "error", err)
			sink.Status(codelet.Status{
				Kind:  codelet.StatusError,
				Error: &codelet.Error{Code: codelet.CodeInvalidRequest, Message: err.Error()},
			})
			continue
		}

		// Config requests carry an "action" field.
		if env.Action != "" {
			sink.write(s.handleConfigRequest(&codelet.ConfigRequest{Action: env.Action}))
			continue
		}

		var msg codelet.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("invalid message", "error", err)
			continue
		}
		ev, err := bridge.FromMessage(&msg)
		if err != nil {
			slog.Warn("invalid message", "error", err)
			sink.Status(codelet.Status{
				Kind:  codelet.StatusError,
				Error: &codelet.Error{Code: codelet.CodeInvalidRequest, Message: err.Error()},
			})
			continue
		}
		if err := b.Submit(ev); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Warn("connection read failed", "error", err)
	}
}

func (s *Server) handleConfigRequest(req *codelet.ConfigRequest) codelet.ConfigResponse {
	var resp codelet.ConfigResponse

	switch req.Action {
	case "get":
		cfg, err := codelet.LoadConfigFrom(s.configPath)
		if err != nil {
			resp.Error = &codelet.Error{Code: codelet.CodeConfigError, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "reload":
		cfg, err := codelet.LoadConfigFrom(s.configPath)
		if err != nil {
			resp.Error = &codelet.Error{Code: codelet.CodeConfigError, Message: err.Error()}
			break
		}
		s.Reload(cfg)
		resp.Config = cfg

	case "defaults":
		resp.Config = codelet.DefaultConfig()

	case "default_prompt":
		resp.Prompt = defaults.DefaultPrompt

	case "validate":
		cfg, err := codelet.LoadConfigFrom(s.configPath)
		if err != nil {
			resp.Error = &codelet.Error{Code: codelet.CodeConfigError, Message: err.Error()}
		} else {
			resp.Warnings = codelet.ValidateConfig(cfg)
		}

	default:
		resp.Error = &codelet.Error{
			Code:    codelet.CodeUnknownAction,
			Message: "unknown config action: " + req.Action,
		}
	}
	return resp
}
