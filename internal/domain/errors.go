package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID does not resolve.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the referenced quiz could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrForbidden is an authority violation: a non-host driving the session
	// or a non-participant submitting answers.
	ErrForbidden = errors.New("caller not allowed to perform this operation")
	// ErrInvalidState means the operation is illegal for the session's status.
	ErrInvalidState = errors.New("operation not allowed in current session state")
	// ErrAlreadyJoined means the user is already a participant.
	ErrAlreadyJoined = errors.New("user already joined this session")
	// ErrDuplicateAnswer means an answer for this question was already recorded.
	ErrDuplicateAnswer = errors.New("answer already submitted for this question")
	// ErrStaleQuestion means the submitted index is not the current question.
	ErrStaleQuestion = errors.New("not the current question")
	// ErrDeadlineExceeded means the answer arrived after the question window closed.
	ErrDeadlineExceeded = errors.New("time expired for this question")
	// ErrInvalidAnswer means the answer value does not match the question's shape.
	ErrInvalidAnswer = errors.New("answer value does not match question type")
	// ErrUnauthenticated means the caller's credential could not be resolved.
	ErrUnauthenticated = errors.New("invalid or missing credential")
)
