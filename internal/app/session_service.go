package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"livequiz-service/internal/domain"
)

// SessionStore abstracts how live session records are kept (in-memory, Redis).
// The store owns the canonical record; snapshots handed out are copies.
type SessionStore interface {
	Put(ctx context.Context, session *Session)
	Get(sessionID string) (*Session, bool)
	// SaveSnapshot persists the state after a successful mutation. Delivery is
	// best-effort; persistence failures never fail the triggering operation.
	SaveSnapshot(ctx context.Context, snap domain.SessionSnapshot)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// DefaultTimePerQuestion applies when a session is created without an
// explicit per-question window.
const DefaultTimePerQuestion = 30

// SessionService runs live quiz sessions: a host creates a session over a
// quiz, participants join while it is waiting, the host starts and advances a
// shared question timeline, and participants submit one timed answer per
// question. Every successful mutation broadcasts a full snapshot to all
// subscribers before returning. The service is immutable after construction.
type SessionService struct {
	sessions   SessionStore
	quizzes    QuizRepository
	now        func() time.Time
	newID      func() string
	defaultTPQ int
}

// Option configures a SessionService at construction time.
type Option func(*SessionService)

// WithDefaultTimePerQuestion overrides the fallback question window, in
// seconds. Values <= 0 keep the built-in default.
func WithDefaultTimePerQuestion(seconds int) Option {
	return func(s *SessionService) {
		if seconds > 0 {
			s.defaultTPQ = seconds
		}
	}
}

func NewSessionService(store SessionStore, quizzes QuizRepository, opts ...Option) *SessionService {
	s := &SessionService{
		sessions:   store,
		quizzes:    quizzes,
		now:        time.Now,
		newID:      uuid.NewString,
		defaultTPQ: DefaultTimePerQuestion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionServiceWithClock is test-only for deterministic deadlines.
func NewSessionServiceWithClock(store SessionStore, quizzes QuizRepository, now func() time.Time, opts ...Option) *SessionService {
	s := NewSessionService(store, quizzes, opts...)
	s.now = now
	return s
}

// Create makes a new session over an existing quiz, owned by hostID. The quiz
// content is resolved once here and frozen for the session's lifetime.
func (s *SessionService) Create(ctx context.Context, quizID, hostID string, timePerQuestion int) (domain.SessionSnapshot, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	// A session over an empty quiz could be started but never answered; the
	// timeline has nothing to point at. Refuse it here so no such session exists.
	if len(quiz.Questions) == 0 {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: quiz %q has no questions", domain.ErrInvalidState, quizID)
	}
	if timePerQuestion <= 0 {
		timePerQuestion = s.defaultTPQ
	}

	session := newSession(s.newID(), quiz, hostID, timePerQuestion, s.now)
	s.sessions.Put(ctx, session)

	snap := session.snapshot()
	s.sessions.SaveSnapshot(ctx, snap)
	return snap, nil
}

// Join adds a participant to a waiting session. connID is the caller's
// transient connection handle (may be empty for plain HTTP callers).
func (s *SessionService) Join(ctx context.Context, sessionID, userID, connID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.join(userID, connID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.SaveSnapshot(ctx, snap)
	return snap, nil
}

// Rebind swaps a joined participant's connection handle after a reconnect.
func (s *SessionService) Rebind(ctx context.Context, sessionID, userID, connID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.rebind(userID, connID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.SaveSnapshot(ctx, snap)
	return snap, nil
}

// Start moves a waiting session to in_progress. Host only.
func (s *SessionService) Start(ctx context.Context, sessionID, callerID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.start(callerID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.SaveSnapshot(ctx, snap)
	return snap, nil
}

// Advance moves the session to the next question, or to finished past the
// last one. Host only.
func (s *SessionService) Advance(ctx context.Context, sessionID, callerID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.advance(callerID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.SaveSnapshot(ctx, snap)
	return snap, nil
}

// SubmitAnswer records one timed answer for the current question. Late,
// duplicate, and mis-indexed answers are rejected, never silently dropped,
// so the stored record stays an honest audit trail.
func (s *SessionService) SubmitAnswer(ctx context.Context, sessionID, userID string, sub domain.AnswerSubmission) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	snap, err := session.submitAnswer(userID, sub)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	s.sessions.SaveSnapshot(ctx, snap)
	return snap, nil
}

// Snapshot returns the current state without mutating anything.
func (s *SessionService) Snapshot(_ context.Context, sessionID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return session.snapshot(), nil
}

// Subscribe returns a channel that receives full session snapshots on every
// state change. The caller must invoke the returned cancel function to avoid
// leaks.
func (s *SessionService) Subscribe(_ context.Context, sessionID string) (<-chan domain.SessionSnapshot, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}
