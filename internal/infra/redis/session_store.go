package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionStore.
// Notes:
//   - The live record (mutex, subscriber table) stays in-process; Redis holds
//     the serialized snapshot so collaborators (analytics, persistence) can
//     read session state without talking to this instance.
//   - Snapshot writes are best-effort: a Redis hiccup never fails the
//     session mutation that triggered it.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(ctx context.Context, session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	if err := s.client.Set(ctx, s.key(session.ID()), "{}", s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("session", session.ID()).Msg("session liveness marker not written")
	}
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Str("session", snap.ID).Msg("snapshot marshal failed")
		return
	}
	if err := s.client.Set(ctx, s.key(snap.ID), data, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("session", snap.ID).Msg("snapshot not persisted")
	}
}

// LatestSnapshot reads the persisted snapshot back from Redis.
func (s *SessionStore) LatestSnapshot(ctx context.Context, sessionID string) (domain.SessionSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	var snap domain.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return snap, nil
}

func (s *SessionStore) key(sessionID string) string {
	return "live:session:" + sessionID
}
