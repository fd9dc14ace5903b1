// Package presence tracks which users currently hold a live gateway
// connection. The registry is a routing optimization, not a delivery
// guarantee: an absent entry just means no push is attempted.
package presence

import (
	"sync"

	"decormart/messaging-service/internal/events"
)

// Conn is a reachable connection for one user. The gateway's client
// satisfies it; tests substitute fakes.
type Conn interface {
	UserID() string
	// Send enqueues an outbound event without blocking. It reports false
	// when the event was dropped (buffer full or connection closing).
	Send(ev events.Outbound) bool
}

// Registry maps a user id to its single live connection. A reconnecting
// user overwrites the previous entry (last-connected-wins); there is no
// fan-out to multiple simultaneous connections per user.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
	}
}

// Register stores conn as the live connection for userID, unconditionally
// replacing any previous one.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = conn
}

// Unregister removes the entry for userID only if it still points at conn.
// The guard keeps a close racing a rapid reconnect from erasing the newer
// connection's registration.
func (r *Registry) Unregister(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
	}
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
