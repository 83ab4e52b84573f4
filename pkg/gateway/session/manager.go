// Package session tracks MCP sessions and the servers each session has
// enabled, with TTL-based expiry of idle sessions.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

// DefaultTTL is the idle lifetime of a session before the reaper drops it.
const DefaultTTL = 30 * time.Minute

// state is the per-session enablement record.
type state struct {
	createdAt time.Time
	updatedAt time.Time

	// servers maps an enabled server name to the tool names recorded when
	// it was enabled.
	servers map[string][]string
}

// Manager holds per-session enablement state with TTL cleanup. Expiry of a
// session loses its enablement state, so clients must re-enable; this fails
// safe. All methods are safe for concurrent use.
type Manager struct {
	sessions map[string]*state
	mu       sync.RWMutex
	ttl      time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ gateway.SessionStore = (*Manager)(nil)

// NewManager creates a session manager with the given idle TTL and starts
// the cleanup worker. A non-positive TTL falls back to DefaultTTL.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions: make(map[string]*state),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go m.cleanupRoutine()
	return m
}

func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupExpired()
		case <-m.stopCh:
			return
		}
	}
}

// Add registers a new session with the provided ID.
// Returns an error if the ID is empty or already exists.
func (m *Manager) Add(id string) error {
	if id == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return fmt.Errorf("session ID %q already exists", id)
	}

	now := time.Now()
	m.sessions[id] = &state{
		createdAt: now,
		updatedAt: now,
		servers:   make(map[string][]string),
	}
	return nil
}

// Exists reports whether the session is known, touching it if so.
func (m *Manager) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.updatedAt = time.Now()
	return true
}

// Delete removes a session and all its enablement state.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// EnabledTools returns the tool names recorded for the server in this
// session, and whether the server is enabled. The session is touched.
func (m *Manager) EnabledTools(sessionID, server string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	s.updatedAt = time.Now()

	tools, ok := s.servers[server]
	if !ok {
		return nil, false
	}
	return copyTools(tools), true
}

// Record marks the server enabled in the session with the given tool names.
// The check and write happen under one lock: if a concurrent enable already
// recorded this server, the earlier record wins and its tool list is
// returned. Unknown sessions are created on the fly so enablement survives
// session-ID managers the gateway does not control.
func (m *Manager) Record(sessionID, server string, tools []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &state{createdAt: now, servers: make(map[string][]string)}
		m.sessions[sessionID] = s
	}
	s.updatedAt = now

	if existing, ok := s.servers[server]; ok {
		return copyTools(existing)
	}
	s.servers[server] = copyTools(tools)
	return copyTools(tools)
}

// Reset clears one session's enablement state, reporting whether the
// session was known. The session itself stays registered.
func (m *Manager) Reset(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	s.servers = make(map[string][]string)
	s.updatedAt = time.Now()
	return true
}

// ResetAll clears the enablement state of every session, returning the
// number of sessions that had any.
func (m *Manager) ResetAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := 0
	for _, s := range m.sessions {
		if len(s.servers) > 0 {
			cleared++
		}
		s.servers = make(map[string][]string)
	}
	return cleared
}

// CleanupExpired removes sessions that have been idle longer than the TTL.
func (m *Manager) CleanupExpired() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.updatedAt.Before(cutoff) {
			delete(m.sessions, id)
			logger.Debugw("Expired idle session", "session_id", id)
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stop stops the cleanup worker. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func copyTools(tools []string) []string {
	out := make([]string, len(tools))
	copy(out, tools)
	return out
}
