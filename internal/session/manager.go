package session

import (
	"log/slog"
	"sync"
)

// Manager tracks every live session under a monotonically increasing
// id, narrowed from the teacher's room-scoped registry to a single
// flat map since this protocol has no rooms.
type Manager struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	nextID   uint64
	log      *slog.Logger
}

// NewManager creates an empty registry.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[uint64]*Session),
		log:      log,
	}
}

// NextID returns a fresh, monotonically increasing session id.
func (m *Manager) NextID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

// Register adds a session to the registry.
func (m *Manager) Register(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// Remove drops a session from the registry and closes it. Safe to
// call even if the session already closed itself.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every registered session and empties the registry.
// Used during graceful shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uint64]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.log.Info("closed all sessions", "count", len(sessions))
}
