package app

import (
	"fmt"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// Session is the canonical in-memory record of one live quiz session. All
// mutations go through its mutex, so concurrent requests against the same
// session are serialized and the invariants (unique participants, one answer
// per question, monotonic status) hold under contention.
type Session struct {
	id              string
	quizID          string
	hostID          string
	questions       []domain.Question // frozen at creation
	timePerQuestion int               // seconds
	now             func() time.Time

	mu                sync.Mutex
	status            domain.SessionStatus
	currentQuestion   int
	questionStartTime time.Time
	order             []string // join order
	participants      map[string]*participantState
	subscribers       map[chan domain.SessionSnapshot]struct{}
}

type participantState struct {
	userID   string
	connID   string
	answers  []domain.Answer
	answered map[int]bool
}

func newSession(id string, quiz domain.Quiz, hostID string, timePerQuestion int, now func() time.Time) *Session {
	return &Session{
		id:              id,
		quizID:          quiz.ID,
		hostID:          hostID,
		questions:       quiz.Questions,
		timePerQuestion: timePerQuestion,
		now:             now,
		status:          domain.StatusWaiting,
		participants:    make(map[string]*participantState),
		subscribers:     make(map[chan domain.SessionSnapshot]struct{}),
	}
}

// ID returns the session's identity.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) join(userID, connID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusWaiting {
		return domain.SessionSnapshot{}, domain.ErrInvalidState
	}
	if _, ok := s.participants[userID]; ok {
		return domain.SessionSnapshot{}, domain.ErrAlreadyJoined
	}
	s.participants[userID] = &participantState{
		userID:   userID,
		connID:   connID,
		answered: make(map[int]bool),
	}
	s.order = append(s.order, userID)
	return s.broadcastLocked(), nil
}

// rebind swaps a participant's connection handle after a reconnect. The
// handle is transient and carries no meaning across restarts.
func (s *Session) rebind(userID, connID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[userID]
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrForbidden
	}
	p.connID = connID
	return s.broadcastLocked(), nil
}

func (s *Session) start(callerID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callerID != s.hostID {
		return domain.SessionSnapshot{}, domain.ErrForbidden
	}
	if s.status != domain.StatusWaiting {
		return domain.SessionSnapshot{}, domain.ErrInvalidState
	}
	s.status = domain.StatusInProgress
	s.currentQuestion = 0
	s.questionStartTime = s.now()
	return s.broadcastLocked(), nil
}

func (s *Session) advance(callerID string) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if callerID != s.hostID {
		return domain.SessionSnapshot{}, domain.ErrForbidden
	}
	if s.status != domain.StatusInProgress {
		return domain.SessionSnapshot{}, domain.ErrInvalidState
	}
	s.currentQuestion++
	if s.currentQuestion >= len(s.questions) {
		s.status = domain.StatusFinished
	} else {
		s.questionStartTime = s.now()
	}
	return s.broadcastLocked(), nil
}

func (s *Session) submitAnswer(userID string, sub domain.AnswerSubmission) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress {
		return domain.SessionSnapshot{}, domain.ErrInvalidState
	}
	if sub.QuestionIndex != s.currentQuestion {
		return domain.SessionSnapshot{}, fmt.Errorf("%w: current is %d", domain.ErrStaleQuestion, s.currentQuestion)
	}
	elapsed := s.now().Sub(s.questionStartTime)
	if elapsed > time.Duration(s.timePerQuestion)*time.Second {
		return domain.SessionSnapshot{}, domain.ErrDeadlineExceeded
	}
	p, ok := s.participants[userID]
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrForbidden
	}
	if p.answered[sub.QuestionIndex] {
		return domain.SessionSnapshot{}, domain.ErrDuplicateAnswer
	}
	if err := sub.Value.Validate(s.questions[sub.QuestionIndex]); err != nil {
		return domain.SessionSnapshot{}, err
	}

	p.answers = append(p.answers, domain.Answer{
		QuestionIndex: sub.QuestionIndex,
		Value:         sub.Value,
		TimeTaken:     elapsed.Seconds(),
	})
	p.answered[sub.QuestionIndex] = true
	return s.broadcastLocked(), nil
}

func (s *Session) snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked pushes the current snapshot to every subscriber without
// blocking on slow ones: a full buffer drops the stale snapshot in favor of
// the fresh one, which is safe because snapshots are total, not deltas.
func (s *Session) broadcastLocked() domain.SessionSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	views := make([]domain.ParticipantView, 0, len(s.order))
	for _, userID := range s.order {
		p := s.participants[userID]
		answers := make([]domain.Answer, len(p.answers))
		copy(answers, p.answers)
		views = append(views, domain.ParticipantView{
			UserID:       p.userID,
			ConnectionID: p.connID,
			Answers:      answers,
		})
	}

	snap := domain.SessionSnapshot{
		ID:              s.id,
		QuizID:          s.quizID,
		HostID:          s.hostID,
		Status:          s.status,
		CurrentQuestion: s.currentQuestion,
		TimePerQuestion: s.timePerQuestion,
		QuestionCount:   len(s.questions),
		Participants:    views,
	}
	if !s.questionStartTime.IsZero() {
		t := s.questionStartTime
		snap.QuestionStartTime = &t
	}
	return snap
}
