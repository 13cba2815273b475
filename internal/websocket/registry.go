package websocket

import (
	"log"
	"sync"
)

// Registry tracks live client connections. A second connection for the
// same session replaces the first; stale sockets from reconnecting
// clients must not linger.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connection ID -> Connection
	sessions    map[string]*Connection // session ID -> Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		sessions:    make(map[string]*Connection),
	}
}

// Register adds a connection, closing any previous connection bound to
// the same session.
func (r *Registry) Register(conn *Connection) {
	if conn == nil {
		return
	}

	sessionID := conn.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != "" {
		if existing, exists := r.sessions[sessionID]; exists && existing != conn {
			// Close asynchronously; Close waits on the writer goroutine
			// and must not run under the registry lock.
			go func() {
				if err := existing.Close(); err != nil {
					log.Printf("Failed to close replaced connection: %v", err)
				}
			}()
			delete(r.connections, existing.ID())
		}
		r.sessions[sessionID] = conn
	}
	r.connections[conn.ID()] = conn
}

// Unregister removes a connection. Idempotent; a connection that was
// already replaced does not evict its successor.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, conn.ID())

	sessionID := conn.SessionID()
	if sessionID != "" && r.sessions[sessionID] == conn {
		delete(r.sessions, sessionID)
	}
}

// SessionConnection returns the live connection for a session, if any.
func (r *Registry) SessionConnection(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.sessions[sessionID]
	return conn, exists
}

// Stats reports connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int{
		"total_connections": len(r.connections),
		"active_sessions":   len(r.sessions),
	}
}

// CloseAll closes every tracked connection during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.connections = make(map[string]*Connection)
	r.sessions = make(map[string]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
}
