package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SkynetNext/mc-proxy/internal/protocol"
)

// Conn is the live connection behind a session
type Conn interface {
	Switch(ctx context.Context, backend string) error
	Close() error
}

// Session describes one accepted client connection
type Session struct {
	// ID is assigned by the accept loop
	ID         int64
	RemoteAddr string

	// Identity is known once login completes
	UUID     uuid.UUID
	Username string
	Backend  string

	State     protocol.State
	Switching bool

	CreatedAt    time.Time
	LastActiveAt time.Time

	conn Conn
}

// Conn returns the connection that owns the session
func (s *Session) Conn() Conn {
	return s.conn
}

const shardCount = 16

// Manager tracks live sessions in sharded maps
type Manager struct {
	shards [shardCount]*shard
}

type shard struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewManager creates a new session manager
func NewManager() *Manager {
	m := &Manager{}
	for i := range m.shards {
		m.shards[i] = &shard{sessions: make(map[int64]*Session)}
	}
	return m
}

func (m *Manager) shard(id int64) *shard {
	return m.shards[id&(shardCount-1)]
}

// Add registers a session for conn
func (m *Manager) Add(s Session, conn Conn) {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastActiveAt = now
	s.conn = conn

	sh := m.shard(s.ID)
	sh.mu.Lock()
	sh.sessions[s.ID] = &s
	sh.mu.Unlock()
}

// Get returns a copy of a session
func (m *Manager) Get(id int64) (Session, bool) {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	if s, ok := sh.sessions[id]; ok {
		return *s, true
	}
	return Session{}, false
}

// Update mutates a session under its shard lock
func (m *Manager) Update(id int64, fn func(*Session)) bool {
	sh := m.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.sessions[id]
	if ok {
		fn(s)
	}
	return ok
}

// Touch updates the last active time of a session
func (m *Manager) Touch(id int64) {
	m.Update(id, func(s *Session) { s.LastActiveAt = time.Now() })
}

// Remove removes a session
func (m *Manager) Remove(id int64) {
	sh := m.shard(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	total := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// FindByUUID returns the play session of an identity
func (m *Manager) FindByUUID(id uuid.UUID) (Session, bool) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if s.UUID == id {
				found := *s
				sh.mu.RUnlock()
				return found, true
			}
		}
		sh.mu.RUnlock()
	}
	return Session{}, false
}

// RequestSwitch asks the identity's connection to move to backend
func (m *Manager) RequestSwitch(ctx context.Context, id uuid.UUID, backend string) error {
	s, ok := m.FindByUUID(id)
	if !ok || s.conn == nil {
		return ErrNotFound
	}
	return s.conn.Switch(ctx, backend)
}

// CleanupIdle closes sessions that have not made progress within idleTimeout.
// Sessions in play state are left alone.
func (m *Manager) CleanupIdle(idleTimeout time.Duration) int {
	now := time.Now()
	var stale []Conn
	for _, sh := range m.shards {
		sh.mu.Lock()
		for id, s := range sh.sessions {
			if s.State == protocol.StatePlay || now.Sub(s.LastActiveAt) <= idleTimeout {
				continue
			}
			if s.conn != nil {
				stale = append(stale, s.conn)
			}
			delete(sh.sessions, id)
		}
		sh.mu.Unlock()
	}
	for _, c := range stale {
		_ = c.Close()
	}
	return len(stale)
}

// GetAll returns copies of all sessions (for monitoring)
func (m *Manager) GetAll() []Session {
	all := make([]Session, 0)
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			all = append(all, *s)
		}
		sh.mu.RUnlock()
	}
	return all
}

// ErrNotFound means no live session belongs to the identity
var ErrNotFound = errors.New("session not found")
