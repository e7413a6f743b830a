package webui

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alantheprice/askweb/pkg/orchestration"
)

const maxMessageBytes = 512 * 1024

// Event is one server-to-client WebSocket message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// clientMessage is a client-to-server WebSocket message. Ask messages carry
// the same fields as the HTTP ask body.
type clientMessage struct {
	Type string `json:"type"`
	AskPayload
}

// SafeConn wraps a WebSocket connection with write mutex and panic recovery
type SafeConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// NewSafeConn creates a new safe connection wrapper
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteJSON safely writes JSON to the WebSocket connection
func (sc *SafeConn) WriteJSON(v any) (err error) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed {
		return websocket.ErrCloseSent
	}

	defer func() {
		if r := recover(); r != nil {
			sc.closed = true
			err = fmt.Errorf("websocket write panic: %v", r)
		}
	}()

	return sc.conn.WriteJSON(v)
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

// handleWebSocket runs one chat session. Asks on a connection are answered
// one at a time, in the order they arrive.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.LogError(fmt.Errorf("websocket upgrade error: %w", err))
		return
	}

	safeConn := NewSafeConn(conn)
	defer safeConn.Close()

	sessionID := uuid.NewString()
	s.connections.Store(safeConn, &ConnectionInfo{SessionID: sessionID, ConnectedAt: time.Now()})
	defer s.connections.Delete(safeConn)

	logger := s.logger.WithCorrelationID(sessionID)
	logger.Log("WebSocket client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	safeConn.WriteJSON(Event{
		Type: "connection_status",
		Data: map[string]any{"connected": true, "session_id": sessionID},
	})

	conn.SetReadLimit(maxMessageBytes)
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.LogError(fmt.Errorf("websocket read error: %w", err))
			} else {
				logger.Log("WebSocket client disconnected")
			}
			return
		}

		switch msg.Type {
		case "ping":
			if err := safeConn.WriteJSON(Event{Type: "pong", Data: map[string]any{"timestamp": time.Now().Unix()}}); err != nil {
				return
			}
		case "ask":
			if err := s.streamAsk(ctx, safeConn, msg.AskPayload); err != nil {
				logger.LogError(fmt.Errorf("websocket write error: %w", err))
				return
			}
		default:
			if err := safeConn.WriteJSON(Event{Type: "error", Data: map[string]any{"message": fmt.Sprintf("unknown message type %q", msg.Type)}}); err != nil {
				return
			}
		}
	}
}

// streamAsk answers payload over conn as phase, token and done events. It
// only fails when the connection can no longer be written.
func (s *Server) streamAsk(ctx context.Context, conn *SafeConn, payload AskPayload) error {
	req, err := s.buildRequest(payload)
	if err != nil {
		return conn.WriteJSON(Event{Type: "error", Data: map[string]any{"message": err.Error()}})
	}
	s.queryCount.Add(1)

	var writeErr error
	req.OnPhase = func(phase orchestration.Phase) {
		if writeErr == nil {
			writeErr = conn.WriteJSON(Event{Type: "phase", Data: map[string]any{"phase": phase}})
		}
	}

	tokens := 0
	for token := range s.asker.AskInternet(ctx, req) {
		if writeErr != nil {
			break
		}
		if writeErr = conn.WriteJSON(Event{Type: "token", Data: map[string]any{"content": token}}); writeErr != nil {
			break
		}
		tokens++
	}
	if writeErr != nil {
		return writeErr
	}
	return conn.WriteJSON(Event{Type: "done", Data: map[string]any{"tokens": tokens}})
}
