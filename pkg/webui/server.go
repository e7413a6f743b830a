// Package webui serves the ask pipeline over HTTP and WebSocket.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alantheprice/askweb/pkg/configuration"
	"github.com/alantheprice/askweb/pkg/orchestration"
	"github.com/alantheprice/askweb/pkg/utils"
)

//go:embed static/*
var staticFiles embed.FS

// Asker is the ask pipeline entry point the server drives.
type Asker interface {
	AskInternet(ctx context.Context, req orchestration.Request) iter.Seq[string]
}

// ConnectionInfo stores metadata about a WebSocket connection
type ConnectionInfo struct {
	SessionID   string
	ConnectedAt time.Time
}

// Server exposes one Asker over HTTP.
type Server struct {
	asker    Asker
	settings configuration.Settings
	addr     string
	logger   *utils.Logger

	server      *http.Server
	listener    net.Listener
	upgrader    websocket.Upgrader
	connections sync.Map // map[*SafeConn]*ConnectionInfo
	isRunning   bool
	mutex       sync.RWMutex
	startTime   time.Time
	queryCount  atomic.Int64
}

// NewServer creates a server answering with asker. Settings provide the
// defaults for every request field a client leaves out.
func NewServer(asker Asker, settings configuration.Settings, logger *utils.Logger) *Server {
	addr := settings.Addr
	if addr == "" {
		addr = "127.0.0.1:8501"
	}
	return &Server{
		asker:    asker,
		settings: settings,
		addr:     addr,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				// Only local pages may open a socket.
				return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
			},
		},
		startTime: time.Now(),
	}
}

// Handler returns the routing table of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/settings", s.handleAPISettings)
	mux.HandleFunc("/api/ask", s.handleAPIAsk)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start binds the listen address and serves in the background until ctx is
// cancelled or Shutdown is called. Bind errors are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.isRunning {
		s.mutex.Unlock()
		return fmt.Errorf("web server is already running")
	}

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.mutex.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.isRunning = true
	s.mutex.Unlock()

	go func() {
		s.logger.LogProcessStep(fmt.Sprintf("Web server listening on http://%s", listener.Addr()))
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.LogError(fmt.Errorf("web server error: %w", err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the web server
func (s *Server) Shutdown() error {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return nil
	}
	s.isRunning = false
	s.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.connections.Range(func(conn, _ any) bool {
		if safeConn, ok := conn.(*SafeConn); ok {
			safeConn.Close()
		}
		return true
	})

	return s.server.Shutdown(ctx)
}

// IsRunning returns true if the web server is running
func (s *Server) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isRunning
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) countConnections() int {
	count := 0
	s.connections.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
