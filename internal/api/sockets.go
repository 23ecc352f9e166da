package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// socketConn is the part of *websocket.Conn the manager needs.
type socketConn interface {
	Close(code websocket.StatusCode, reason string) error
}

// SocketManager tracks open coach websockets per session. A session may have
// several sockets, one per browser tab.
type SocketManager struct {
	mu      sync.Mutex
	active  map[string]map[socketConn]context.CancelFunc
	closing bool
	running sync.WaitGroup
}

// NewSocketManager creates an empty socket manager.
func NewSocketManager() *SocketManager {
	return &SocketManager{
		active: make(map[string]map[socketConn]context.CancelFunc),
	}
}

// Register adds conn under sessionID. cancel stops the work running on the
// socket. The returned release must be called when the socket handler returns.
// After CloseAll, new sockets are closed right away.
func (m *SocketManager) Register(sessionID string, conn socketConn, cancel context.CancelFunc) (release func()) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		closeSocket(sessionID, conn, cancel, "server shutting down")
		return func() {}
	}
	if _, exists := m.active[sessionID]; !exists {
		m.active[sessionID] = make(map[socketConn]context.CancelFunc)
	}
	m.active[sessionID][conn] = cancel
	m.running.Add(1)
	slog.Debug("Coach socket registered", "session_id", sessionID, "open", len(m.active[sessionID]))
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.unregister(sessionID, conn)
			m.running.Done()
		})
	}
}

func (m *SocketManager) unregister(sessionID string, conn socketConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.active[sessionID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(m.active, sessionID)
	}
}

// Count returns the number of open sockets for sessionID.
func (m *SocketManager) Count(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active[sessionID])
}

// CloseSession closes every socket of sessionID.
func (m *SocketManager) CloseSession(sessionID string) {
	m.mu.Lock()
	conns := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()

	for conn, cancel := range conns {
		closeSocket(sessionID, conn, cancel, "session expired")
	}
	if len(conns) > 0 {
		slog.Info("Coach sockets closed", "session_id", sessionID, "count", len(conns))
	}
}

// CloseAll cancels and closes every socket and refuses new ones.
func (m *SocketManager) CloseAll() {
	m.mu.Lock()
	m.closing = true
	active := m.active
	m.active = make(map[string]map[socketConn]context.CancelFunc)
	m.mu.Unlock()

	n := 0
	for sessionID, conns := range active {
		for conn, cancel := range conns {
			closeSocket(sessionID, conn, cancel, "server shutting down")
			n++
		}
	}
	if n > 0 {
		slog.Info("Coach sockets closed for shutdown", "count", n)
	}
}

// Drain closes every socket and waits for their handlers to return.
func (m *SocketManager) Drain(ctx context.Context) error {
	m.CloseAll()

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeSocket(sessionID string, conn socketConn, cancel context.CancelFunc, reason string) {
	if cancel != nil {
		cancel()
	}
	if err := conn.Close(websocket.StatusGoingAway, reason); err != nil {
		slog.Debug("Failed to close coach socket", "error", err, "session_id", sessionID)
	}
}
