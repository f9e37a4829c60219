package domain

import "fmt"

// Validate re-checks the content-authoring invariants before a quiz is
// played, so a malformed quiz fails match creation instead of a match.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return ErrQuizEmpty
	}
	for i, question := range q.Questions {
		if question.Order != i+1 {
			return fmt.Errorf("quiz %s: question %s has order %d, want %d", q.ID, question.ID, question.Order, i+1)
		}
		want := 0
		switch question.Type {
		case TrueFalse:
			want = 2
		case MultipleChoice:
			want = 4
		default:
			return fmt.Errorf("quiz %s: question %s has unknown type %q", q.ID, question.ID, question.Type)
		}
		if len(question.Options) != want {
			return fmt.Errorf("quiz %s: question %s has %d options, want %d", q.ID, question.ID, len(question.Options), want)
		}
		correct := 0
		for _, opt := range question.Options {
			if opt.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("quiz %s: question %s has %d correct options, want exactly 1", q.ID, question.ID, correct)
		}
	}
	return nil
}

// TimeLimitFor resolves the effective time limit for a question,
// falling back to the quiz default and then to 30 seconds.
func (q Quiz) TimeLimitFor(question Question) int {
	if question.TimeLimitMs > 0 {
		return question.TimeLimitMs
	}
	if q.TimePerQuestionMs > 0 {
		return q.TimePerQuestionMs
	}
	return 30000
}
