package usage

import (
	"sync"
	"time"
)

// SessionManager holds the live usage sessions keyed by session ID.
type SessionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Get retrieves a session.
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if s, exists := sm.sessions[id]; exists {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// Put stores or replaces a session.
func (sm *SessionManager) Put(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ID()] = s
}

// Delete discards a session. It reports whether the session existed.
func (sm *SessionManager) Delete(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, exists := sm.sessions[id]
	delete(sm.sessions, id)
	return exists
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// EvictIdle removes sessions untouched for longer than ttl and returns their IDs.
func (sm *SessionManager) EvictIdle(now time.Time, ttl time.Duration) []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var evicted []string
	for id, s := range sm.sessions {
		if now.Sub(s.IdleSince()) > ttl {
			delete(sm.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}
