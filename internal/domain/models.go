package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
// Transitions are strictly waiting -> in_progress -> finished.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "waiting"
	StatusInProgress SessionStatus = "in_progress"
	StatusFinished   SessionStatus = "finished"
)

// QuestionType tags the shape of a question and of its expected answer.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionMatching       QuestionType = "matching"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// Multiple-choice subtypes.
const (
	SubtypeSingle   = "single"
	SubtypeMultiple = "multiple"
)

// MatchPair is one left/right pairing in a matching question.
type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Question describes a single quiz question. Grading is out of scope for the
// coordinator, so correct answers are not part of this view.
type Question struct {
	Type          QuestionType `json:"type"`
	Subtype       string       `json:"subtype,omitempty"`
	Text          string       `json:"text"`
	Options       []string     `json:"options,omitempty"`
	Matches       []MatchPair  `json:"matches,omitempty"`
	CaseSensitive bool         `json:"caseSensitive,omitempty"`
}

// Quiz is an ordered list of questions; frozen once a session references it.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answer is one participant's timed answer to a question.
type Answer struct {
	QuestionIndex int         `json:"questionIndex"`
	Value         AnswerValue `json:"answer"`
	TimeTaken     float64     `json:"timeTaken"` // seconds since the question window opened
}

// AnswerSubmission is the inbound answer payload before timing validation.
type AnswerSubmission struct {
	QuestionIndex int
	Value         AnswerValue
}

// ParticipantView is a snapshot-friendly view of a joined participant.
type ParticipantView struct {
	UserID       string   `json:"userId"`
	ConnectionID string   `json:"connectionId,omitempty"`
	Answers      []Answer `json:"answers"`
}

// SessionSnapshot is the complete, point-in-time state of a session.
// Every broadcast carries a full snapshot, never a delta.
type SessionSnapshot struct {
	ID                string            `json:"id"`
	QuizID            string            `json:"quizId"`
	HostID            string            `json:"hostId"`
	Status            SessionStatus     `json:"status"`
	CurrentQuestion   int               `json:"currentQuestion"`
	QuestionStartTime *time.Time        `json:"questionStartTime,omitempty"`
	TimePerQuestion   int               `json:"timePerQuestion"` // seconds
	QuestionCount     int               `json:"questionCount"`
	Participants      []ParticipantView `json:"participants"` // join order
}
