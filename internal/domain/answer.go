package domain

import "fmt"

// AnswerValue is a tagged union over the possible answer shapes. Exactly the
// fields matching Kind are meaningful; the rest stay zero. The coordinator
// validates the shape against the question definition but never grades it.
type AnswerValue struct {
	Kind     QuestionType `json:"kind"`
	Selected []int        `json:"selected,omitempty"` // multiple_choice: option indices
	Bool     *bool        `json:"bool,omitempty"`     // true_false
	Pairs    []MatchPair  `json:"pairs,omitempty"`    // matching
	Text     string       `json:"text,omitempty"`     // short_answer
}

// Validate checks the value against the question it answers.
func (v AnswerValue) Validate(q Question) error {
	if v.Kind != q.Type {
		return fmt.Errorf("%w: got %q, question is %q", ErrInvalidAnswer, v.Kind, q.Type)
	}
	switch q.Type {
	case QuestionMultipleChoice:
		return v.validateChoice(q)
	case QuestionTrueFalse:
		if v.Bool == nil {
			return fmt.Errorf("%w: missing boolean value", ErrInvalidAnswer)
		}
	case QuestionMatching:
		return v.validatePairs(q)
	case QuestionShortAnswer:
		if v.Text == "" {
			return fmt.Errorf("%w: empty text answer", ErrInvalidAnswer)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidAnswer, q.Type)
	}
	return nil
}

func (v AnswerValue) validateChoice(q Question) error {
	if len(v.Selected) == 0 {
		return fmt.Errorf("%w: no option selected", ErrInvalidAnswer)
	}
	if q.Subtype != SubtypeMultiple && len(v.Selected) > 1 {
		return fmt.Errorf("%w: question accepts a single option", ErrInvalidAnswer)
	}
	seen := make(map[int]bool, len(v.Selected))
	for _, idx := range v.Selected {
		if idx < 0 || idx >= len(q.Options) {
			return fmt.Errorf("%w: option index %d out of range", ErrInvalidAnswer, idx)
		}
		if seen[idx] {
			return fmt.Errorf("%w: option index %d selected twice", ErrInvalidAnswer, idx)
		}
		seen[idx] = true
	}
	return nil
}

func (v AnswerValue) validatePairs(q Question) error {
	if len(v.Pairs) == 0 {
		return fmt.Errorf("%w: no pairs submitted", ErrInvalidAnswer)
	}
	valid := make(map[string]bool, len(q.Matches))
	for _, m := range q.Matches {
		valid[m.Left] = true
	}
	used := make(map[string]bool, len(v.Pairs))
	for _, p := range v.Pairs {
		if !valid[p.Left] {
			return fmt.Errorf("%w: unknown left item %q", ErrInvalidAnswer, p.Left)
		}
		if used[p.Left] {
			return fmt.Errorf("%w: left item %q paired twice", ErrInvalidAnswer, p.Left)
		}
		used[p.Left] = true
	}
	return nil
}

// ChoiceAnswer builds a multiple-choice answer value.
func ChoiceAnswer(indices ...int) AnswerValue {
	return AnswerValue{Kind: QuestionMultipleChoice, Selected: indices}
}

// BoolAnswer builds a true/false answer value.
func BoolAnswer(b bool) AnswerValue {
	return AnswerValue{Kind: QuestionTrueFalse, Bool: &b}
}

// TextAnswer builds a short-answer value.
func TextAnswer(text string) AnswerValue {
	return AnswerValue{Kind: QuestionShortAnswer, Text: text}
}

// MatchingAnswer builds a matching answer value.
func MatchingAnswer(pairs ...MatchPair) AnswerValue {
	return AnswerValue{Kind: QuestionMatching, Pairs: pairs}
}
