package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
)

func TestCreateJoinStartAnswerFlow(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, err := service.Create(ctx, "quiz-1", "host", 30)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.StatusWaiting || created.QuestionCount != 3 {
		t.Fatalf("unexpected created snapshot: %+v", created)
	}

	if _, err := service.Join(ctx, created.ID, "u1", "c1"); err != nil {
		t.Fatalf("join u1: %v", err)
	}
	if _, err := service.Join(ctx, created.ID, "u2", "c2"); err != nil {
		t.Fatalf("join u2: %v", err)
	}

	started, err := service.Start(ctx, created.ID, "host")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.StatusInProgress || started.CurrentQuestion != 0 {
		t.Fatalf("unexpected started snapshot: %+v", started)
	}
	if started.QuestionStartTime == nil {
		t.Fatalf("expected question start time stamped")
	}

	for _, userID := range []string{"u1", "u2"} {
		if _, err := service.SubmitAnswer(ctx, created.ID, userID, domain.AnswerSubmission{
			QuestionIndex: 0,
			Value:         domain.ChoiceAnswer(1),
		}); err != nil {
			t.Fatalf("submit %s: %v", userID, err)
		}
	}

	snap, err := service.Snapshot(ctx, created.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CurrentQuestion != 0 {
		t.Fatalf("answers alone must not advance the question, index=%d", snap.CurrentQuestion)
	}
	for _, p := range snap.Participants {
		if len(p.Answers) != 1 || p.Answers[0].QuestionIndex != 0 {
			t.Fatalf("expected one answer for question 0, got %+v", p.Answers)
		}
	}
}

func TestCreateUnknownQuiz(t *testing.T) {
	service, _ := newTestService(baseTime)
	if _, err := service.Create(context.Background(), "missing", "host", 30); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestCreateEmptyQuizRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	// A quiz without questions must never become a session: once started, any
	// answer for index 0 would have no question to check against.
	if _, err := service.Create(ctx, "empty-quiz", "host", 30); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for empty quiz, got %v", err)
	}
}

func TestDefaultTimePerQuestionOption(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	service := app.NewSessionService(store, newTestQuizzes(), app.WithDefaultTimePerQuestion(45))

	created, err := service.Create(ctx, "quiz-1", "host", 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TimePerQuestion != 45 {
		t.Fatalf("expected configured default of 45, got %d", created.TimePerQuestion)
	}

	// An explicit window still wins over the configured default.
	created, err = service.Create(ctx, "quiz-1", "host", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TimePerQuestion != 10 {
		t.Fatalf("expected explicit window of 10, got %d", created.TimePerQuestion)
	}
}

func TestNonHostStartForbidden(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	if _, err := service.Join(ctx, created.ID, "u1", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := service.Start(ctx, created.ID, "u1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	snap, _ := service.Snapshot(ctx, created.ID)
	if snap.Status != domain.StatusWaiting {
		t.Fatalf("status must remain waiting after rejected start, got %q", snap.Status)
	}
}

func TestJoinAfterStartInvalidState(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	if _, err := service.Start(ctx, created.ID, "host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Join(ctx, created.ID, "late", ""); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestDuplicateJoinRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	if _, err := service.Join(ctx, created.ID, "u1", "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Join(ctx, created.ID, "u1", "c2"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestConcurrentJoinSameUser(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Join(ctx, created.ID, "u1", "")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, domain.ErrAlreadyJoined) {
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one successful join, got %d", successes)
	}

	snap, _ := service.Snapshot(ctx, created.ID)
	if len(snap.Participants) != 1 {
		t.Fatalf("expected one participant, got %d", len(snap.Participants))
	}
}

func TestDuplicateAnswerKeepsFirst(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")
	_, _ = service.Start(ctx, created.ID, "host")

	if _, err := service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
		QuestionIndex: 0,
		Value:         domain.ChoiceAnswer(1),
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
		QuestionIndex: 0,
		Value:         domain.ChoiceAnswer(2),
	}); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected ErrDuplicateAnswer, got %v", err)
	}

	snap, _ := service.Snapshot(ctx, created.ID)
	answers := snap.Participants[0].Answers
	if len(answers) != 1 || answers[0].Value.Selected[0] != 1 {
		t.Fatalf("store must retain only the first answer, got %+v", answers)
	}
}

func TestConcurrentDuplicateSubmissions(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")
	_, _ = service.Start(ctx, created.ID, "host")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
				QuestionIndex: 0,
				Value:         domain.ChoiceAnswer(1),
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else if !errors.Is(err, domain.ErrDuplicateAnswer) {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one stored answer, got %d successes", successes)
	}
}

func TestStaleQuestionRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")
	_, _ = service.Start(ctx, created.ID, "host")

	if _, err := service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
		QuestionIndex: 1,
		Value:         domain.BoolAnswer(true),
	}); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected ErrStaleQuestion, got %v", err)
	}
}

func TestDeadlineBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(baseTime)
	service, _ := newTestServiceWithClock(clock)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")
	_, _ = service.Join(ctx, created.ID, "u2", "")
	_, _ = service.Start(ctx, created.ID, "host")

	// Exactly at the limit is still inside the window.
	clock.advance(30 * time.Second)
	snap, err := service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
		QuestionIndex: 0,
		Value:         domain.ChoiceAnswer(1),
	})
	if err != nil {
		t.Fatalf("boundary submit: %v", err)
	}
	if got := snap.Participants[0].Answers[0].TimeTaken; got != 30 {
		t.Fatalf("expected timeTaken 30, got %v", got)
	}

	// One tick past the limit is rejected and nothing is stored.
	clock.advance(time.Nanosecond)
	if _, err := service.SubmitAnswer(ctx, created.ID, "u2", domain.AnswerSubmission{
		QuestionIndex: 0,
		Value:         domain.ChoiceAnswer(1),
	}); !errors.Is(err, domain.ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
	snap, _ = service.Snapshot(ctx, created.ID)
	if len(snap.Participants[1].Answers) != 0 {
		t.Fatalf("late answer must not be stored, got %+v", snap.Participants[1].Answers)
	}
}

func TestNonParticipantAnswerForbidden(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Start(ctx, created.ID, "host")

	if _, err := service.SubmitAnswer(ctx, created.ID, "stranger", domain.AnswerSubmission{
		QuestionIndex: 0,
		Value:         domain.ChoiceAnswer(1),
	}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestMalformedAnswerRejected(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")
	_, _ = service.Start(ctx, created.ID, "host")

	// Question 0 is multiple choice; a bare text value has the wrong shape.
	if _, err := service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
		QuestionIndex: 0,
		Value:         domain.TextAnswer("four"),
	}); !errors.Is(err, domain.ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
	snap, _ := service.Snapshot(ctx, created.ID)
	if len(snap.Participants[0].Answers) != 0 {
		t.Fatalf("rejected answer must not be stored")
	}
}

func TestAdvanceThroughToFinished(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(baseTime)
	service, _ := newTestServiceWithClock(clock)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")
	_, _ = service.Start(ctx, created.ID, "host")

	if _, err := service.Advance(ctx, created.ID, "u1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("participant advance must be forbidden, got %v", err)
	}

	firstStart, _ := service.Snapshot(ctx, created.ID)

	clock.advance(10 * time.Second)
	snap, err := service.Advance(ctx, created.ID, "host")
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if snap.CurrentQuestion != 1 || snap.Status != domain.StatusInProgress {
		t.Fatalf("unexpected snapshot after advance: %+v", snap)
	}
	if !snap.QuestionStartTime.After(*firstStart.QuestionStartTime) {
		t.Fatalf("question start time must be restamped on advance")
	}

	snap, _ = service.Advance(ctx, created.ID, "host")
	if snap.CurrentQuestion != 2 {
		t.Fatalf("expected index 2, got %d", snap.CurrentQuestion)
	}
	snap, _ = service.Advance(ctx, created.ID, "host")
	if snap.Status != domain.StatusFinished {
		t.Fatalf("expected finished past the last question, got %q", snap.Status)
	}

	if _, err := service.Advance(ctx, created.ID, "host"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("advance after finish must fail, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, created.ID, "u1", domain.AnswerSubmission{
		QuestionIndex: 2,
		Value:         domain.TextAnswer("x"),
	}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("answer after finish must fail, got %v", err)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	ch, cancel, err := service.Subscribe(ctx, created.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-ch
	if initial.Status != domain.StatusWaiting {
		t.Fatalf("expected initial waiting snapshot, got %q", initial.Status)
	}

	if _, err := service.Join(ctx, created.ID, "u1", ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	update := <-ch
	if len(update.Participants) != 1 || update.Participants[0].UserID != "u1" {
		t.Fatalf("expected join visible in broadcast, got %+v", update.Participants)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "c1")

	first, _ := service.Snapshot(ctx, created.ID)
	second, _ := service.Snapshot(ctx, created.ID)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshots differ without intervening mutation:\n%+v\n%+v", first, second)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("serialized snapshots differ:\n%s\n%s", a, b)
	}
}

func TestRebindConnection(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "c1")

	snap, err := service.Rebind(ctx, created.ID, "u1", "c2")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if snap.Participants[0].ConnectionID != "c2" {
		t.Fatalf("expected rebound connection, got %q", snap.Participants[0].ConnectionID)
	}

	if _, err := service.Rebind(ctx, created.ID, "stranger", "c3"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-participant rebind, got %v", err)
	}
}

func TestSnapshotPersistedOnMutation(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(baseTime)

	created, _ := service.Create(ctx, "quiz-1", "host", 30)
	_, _ = service.Join(ctx, created.ID, "u1", "")

	persisted, ok := store.LatestSnapshot(created.ID)
	if !ok {
		t.Fatalf("expected persisted snapshot")
	}
	if len(persisted.Participants) != 1 {
		t.Fatalf("persisted snapshot must reflect the join, got %+v", persisted.Participants)
	}
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(start time.Time) (*app.SessionService, *memory.SessionStore) {
	return newTestServiceWithClock(newFakeClock(start))
}

func newTestServiceWithClock(clock *fakeClock) (*app.SessionService, *memory.SessionStore) {
	store := memory.NewSessionStore()
	return app.NewSessionServiceWithClock(store, newTestQuizzes(), clock.now), store
}

func newTestQuizzes() *memory.QuizRepository {
	return memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Mixed basics",
			Questions: []domain.Question{
				{Type: domain.QuestionMultipleChoice, Subtype: domain.SubtypeSingle, Text: "2 + 2?", Options: []string{"3", "4", "5"}},
				{Type: domain.QuestionTrueFalse, Text: "Go compiles to machine code."},
				{Type: domain.QuestionShortAnswer, Text: "Name the Go mascot."},
			},
		},
		"empty-quiz": {
			ID:    "empty-quiz",
			Title: "No content yet",
		},
	}), 5*time.Minute)
}
