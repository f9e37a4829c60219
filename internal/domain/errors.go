package domain

import "errors"

var (
	// ErrMatchNotFound is returned when no match exists for a code.
	ErrMatchNotFound = errors.New("match not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizEmpty indicates a quiz with no questions was requested for play.
	ErrQuizEmpty = errors.New("quiz has no questions")
	// ErrNicknameTaken is returned when a nickname is already in use within a match.
	ErrNicknameTaken = errors.New("nickname already in use in this match")
	// ErrMatchStarted is returned on joins against a running match.
	ErrMatchStarted = errors.New("match has already started")
	// ErrMatchClosed is returned on any player mutation against a completed match.
	ErrMatchClosed = errors.New("match has ended")
	// ErrNotEnoughPlayers is returned when a start is attempted with fewer than two players.
	ErrNotEnoughPlayers = errors.New("at least two players are required to start")
	// ErrNotAllReady is returned when a start is attempted before everyone is ready.
	ErrNotAllReady = errors.New("not all players are ready")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in match")
	// ErrNotEligible is returned for submissions against a question the player
	// cannot answer (not open, or the player joined after it opened).
	ErrNotEligible = errors.New("player not eligible for this question")
	// ErrDuplicateAnswer is returned on a second submission for the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted for this question")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates a submitted answer ID is invalid.
	ErrAnswerNotFound = errors.New("answer option not found")
)

// ErrorKind maps an engine error to the stable kind string reported to clients.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrMatchNotFound):
		return "MatchNotFound"
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrQuizEmpty):
		return "QuizNotFound"
	case errors.Is(err, ErrNicknameTaken):
		return "DuplicateNickname"
	case errors.Is(err, ErrMatchStarted):
		return "MatchAlreadyStarted"
	case errors.Is(err, ErrMatchClosed):
		return "MatchClosed"
	case errors.Is(err, ErrNotEnoughPlayers), errors.Is(err, ErrNotAllReady):
		return "PreconditionError"
	case errors.Is(err, ErrNotEligible):
		return "PlayerNotEligible"
	case errors.Is(err, ErrDuplicateAnswer):
		return "DuplicateAnswer"
	case errors.Is(err, ErrQuestionNotFound):
		return "UnknownQuestion"
	case errors.Is(err, ErrAnswerNotFound):
		return "UnknownAnswer"
	case errors.Is(err, ErrPlayerNotFound):
		return "PlayerNotFound"
	default:
		return "Internal"
	}
}
