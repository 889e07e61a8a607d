// Package chatws serves the realtime chat endpoint of the development backend.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks live WebSocket connections per chat session. A
// session may have several connections, one per open widget.
type SessionManager struct {
	mu     sync.RWMutex
	active map[int64]map[*websocket.Conn]struct{}
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[int64]map[*websocket.Conn]struct{}),
	}
}

// Count returns the number of live connections for a session.
func (m *SessionManager) Count(sessionID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[sessionID])
}

// Register adds a connection to a session.
func (m *SessionManager) Register(sessionID int64, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.active[sessionID]
	if !ok {
		conns = make(map[*websocket.Conn]struct{})
		m.active[sessionID] = conns
	}
	conns[conn] = struct{}{}
	slog.Info("Chat connection registered", "session_id", sessionID, "connections", len(conns))
}

// Unregister removes a connection from a session.
func (m *SessionManager) Unregister(sessionID int64, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.active[sessionID]
	if !ok {
		return
	}
	if _, exists := conns[conn]; !exists {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(m.active, sessionID)
	}
	slog.Info("Chat connection unregistered", "session_id", sessionID)
}

// CloseSession closes every live connection of a session.
func (m *SessionManager) CloseSession(sessionID int64) {
	m.mu.Lock()
	conns := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()

	for conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "session closed")
	}
	if len(conns) > 0 {
		slog.Info("Chat session closed", "session_id", sessionID, "connections", len(conns))
	}
}
