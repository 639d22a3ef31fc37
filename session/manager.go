package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/celllabel/celled/celled"
)

// Manager hands out sessions by token and reaps sessions idle past a
// deadline.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	touched  map[string]time.Time
	maxIdle  time.Duration
}

// NewManager returns a manager reaping sessions idle longer than maxIdle.
// A zero maxIdle disables reaping.
func NewManager(maxIdle time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		touched:  make(map[string]time.Time),
		maxIdle:  maxIdle,
	}
}

// Put registers a session under its token.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	m.touched[s.Token] = time.Now()
}

// Get returns the session for a token, refreshing its idle clock.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[token]
	if !found {
		return nil, fmt.Errorf("no session with token %q", token)
	}
	m.touched[token] = time.Now()
	return s, nil
}

// Drop removes a session.
func (m *Manager) Drop(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	delete(m.touched, token)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap drops sessions idle past the deadline and returns how many went.
// Dirty sessions are logged before dropping.
func (m *Manager) Reap() int {
	if m.maxIdle == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-m.maxIdle)
	n := 0
	for token, at := range m.touched {
		if at.After(cutoff) {
			continue
		}
		if s := m.sessions[token]; s != nil && s.Dirty() {
			celled.Warningf("reaping idle session %s (%s) with unsaved changes\n", token, s.Name)
		}
		delete(m.sessions, token)
		delete(m.touched, token)
		n++
	}
	return n
}
