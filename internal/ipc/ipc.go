// Package ipc provides a Unix domain socket server for local integrations.
//
// A provisioning script (or any local process) connects to the socket and
// sends JSON-RPC style requests. This avoids HTTP overhead and needs no TCP
// port.
//
// Protocol:
//   - Client connects to the Unix socket (default: /var/run/provisionwatch/inspector.sock)
//   - Client sends a JSON request (newline-terminated)
//   - Server responds with a JSON response (newline-terminated)
//   - Connection stays open for multiple request/response cycles
//
// Request format:
//   {"method": "state.get", "id": 1}
//   {"method": "items.list", "id": 2}
//   {"method": "validation.run", "id": 3}
//   {"method": "report.get", "id": 4}
//   {"method": "journal.recent", "id": 5, "params": {"item_id": "x", "limit": 20}}
//
// Response format:
//   {"id": 1, "result": {...}, "error": null}
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/provisionwatch/provisionwatch/internal/inspect"
	"github.com/provisionwatch/provisionwatch/internal/journal"
	"github.com/provisionwatch/provisionwatch/internal/report"
	"github.com/provisionwatch/provisionwatch/pkg/buildinfo"
)

// DefaultSocketPath is the default Unix socket path.
const DefaultSocketPath = "/var/run/provisionwatch/inspector.sock"

// Request represents a JSON-RPC style request.
type Request struct {
	Method string          `json:"method"`
	ID     int             `json:"id"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC style response.
type Response struct {
	ID     int     `json:"id"`
	Result any     `json:"result,omitempty"`
	Error  *string `json:"error"`
}

// Server is the IPC Unix socket server. It reads engine state through the
// published snapshot surface and never mutates it beyond the documented
// engine methods.
type Server struct {
	socketPath string
	engine     *inspect.Engine
	store      *journal.Store
	logger     *log.Logger
	listener   net.Listener
	mu         sync.Mutex
	clients    map[net.Conn]struct{}
}

// NewServer creates a new IPC server. store may be nil when the journal is
// not enabled; the journal methods then return an error response.
func NewServer(socketPath string, engine *inspect.Engine, store *journal.Store, logger *log.Logger) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		socketPath: socketPath,
		engine:     engine,
		store:      store,
		logger:     logger,
		clients:    make(map[net.Conn]struct{}),
	}
}

// Start begins listening on the Unix socket. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	// Remove stale socket file
	os.Remove(s.socketPath)

	var err error
	s.listener, err = net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	// Owner + group only
	os.Chmod(s.socketPath, 0660)
	s.logger.Printf("[ipc] listening on %s", s.socketPath)

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		go s.handleConn(ctx, conn)
	}
}

// SocketPath returns the configured socket path.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// ActiveConnections returns the number of active client connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max message

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			errMsg := fmt.Sprintf("invalid request: %v", err)
			writeResponse(conn, Response{Error: &errMsg})
			continue
		}

		writeResponse(conn, s.dispatch(ctx, req))
	}
}

// journalParams narrows journal.recent requests.
type journalParams struct {
	ItemID string `json:"item_id"`
	Limit  int    `json:"limit"`
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	switch req.Method {
	case "state.get":
		resp.Result = s.engine.Snapshot()

	case "items.list":
		resp.Result = s.engine.Snapshot().Items

	case "validation.run":
		resp.Result = s.engine.RunValidation()

	case "report.get":
		doc := s.engine.Doc()
		if doc == nil {
			errMsg := "no configuration loaded"
			resp.Error = &errMsg
			break
		}
		resp.Result = report.FromSnapshot(s.engine.Snapshot(), doc, s.logger)

	case "journal.recent":
		if s.store == nil {
			errMsg := "journal not enabled"
			resp.Error = &errMsg
			break
		}
		var p journalParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				errMsg := fmt.Sprintf("invalid params: %v", err)
				resp.Error = &errMsg
				break
			}
		}
		if p.Limit <= 0 {
			p.Limit = 50
		}
		entries, err := s.store.ListTransitions(ctx, p.ItemID, p.Limit)
		if err != nil {
			errMsg := err.Error()
			resp.Error = &errMsg
			break
		}
		resp.Result = entries

	case "journal.summary":
		if s.store == nil {
			errMsg := "journal not enabled"
			resp.Error = &errMsg
			break
		}
		sum, err := s.store.GetSummary(ctx)
		if err != nil {
			errMsg := err.Error()
			resp.Error = &errMsg
			break
		}
		resp.Result = sum

	case "ping":
		resp.Result = map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
		}

	default:
		errMsg := fmt.Sprintf("unknown method: %s", req.Method)
		resp.Error = &errMsg
	}

	return resp
}

func writeResponse(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	conn.Write(data)
}
