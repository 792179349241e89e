package memory

import (
	"context"
	"sync"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore. It also
// retains the latest snapshot per session so collaborators (and tests) can
// read the persisted view without touching the live record.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*app.Session
	snapshots map[string]domain.SessionSnapshot
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*app.Session),
		snapshots: make(map[string]domain.SessionSnapshot),
	}
}

func (s *SessionStore) Put(_ context.Context, session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) SaveSnapshot(_ context.Context, snap domain.SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = snap
}

// LatestSnapshot returns the last persisted snapshot for a session.
func (s *SessionStore) LatestSnapshot(sessionID string) (domain.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sessionID]
	return snap, ok
}
