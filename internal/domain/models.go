package domain

import "time"

// MatchStatus is the lifecycle state of a match.
type MatchStatus string

const (
	StatusWaiting    MatchStatus = "waiting"
	StatusInProgress MatchStatus = "in_progress"
	StatusCompleted  MatchStatus = "completed"
)

// QuestionType distinguishes the two supported question shapes.
type QuestionType string

const (
	TrueFalse      QuestionType = "true_false"
	MultipleChoice QuestionType = "multiple_choice"
)

// Option is a possible answer for a question. Exactly one option per
// question carries Correct=true.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
	Order   int    `json:"order"`
}

// Question is immutable for the duration of any match playing it.
// A TimeLimitMs of zero falls back to the quiz-level default.
type Question struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Order       int          `json:"order"` // 1-based, contiguous within a quiz
	Points      int          `json:"points"`
	TimeLimitMs int          `json:"timeLimitMs"`
	Options     []Option     `json:"options"`
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	TimePerQuestionMs int        `json:"timePerQuestionMs"`
	Questions         []Question `json:"questions"`
}

// Player is a participant in a single match. ConnID is the opaque
// transport handle used for direct delivery.
type Player struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	Score    int       `json:"score"`
	Ready    bool      `json:"isReady"`
	ConnID   string    `json:"-"`
	JoinedAt time.Time `json:"-"`
}

// PlayerAnswer records one submission; at most one exists per
// (player, question) and it is never overwritten.
type PlayerAnswer struct {
	PlayerID     string    `json:"playerId"`
	QuestionID   string    `json:"questionId"`
	AnswerID     string    `json:"answerId"`
	TimeTakenMs  int       `json:"timeTakenMs"`
	PointsEarned int       `json:"pointsEarned"`
	AnsweredAt   time.Time `json:"answeredAt"`
}

// RosterEntry is the public view of a player, broadcast on every roster change.
type RosterEntry struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Ready    bool   `json:"isReady"`
}

// ClientOption is an option stripped of its correctness flag.
type ClientOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// QuestionView is the sanitized question broadcast when it opens.
type QuestionView struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Type           QuestionType   `json:"type"`
	Options        []ClientOption `json:"options"`
	TimeLimitMs    int            `json:"timeLimitMs"`
	QuestionNumber int            `json:"questionNumber"`
	TotalQuestions int            `json:"totalQuestions"`
}

// QuestionResult is one per-player row of a closed question's outcome.
// Players who never answered get a zero row with Answered=false.
type QuestionResult struct {
	PlayerID     string `json:"playerId"`
	Nickname     string `json:"nickname"`
	Answered     bool   `json:"answered"`
	AnswerID     string `json:"answerId,omitempty"`
	AnswerText   string `json:"answerText,omitempty"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"pointsEarned"`
	TimeTakenMs  int    `json:"timeTakenMs"`
}

// Standing is one row of the final ranking.
type Standing struct {
	Position   int    `json:"position"`
	PlayerID   string `json:"playerId"`
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"totalScore"`
}

// MatchSnapshot is an immutable copy of match state, taken inside the
// match's own goroutine and safe to hand to archival or HTTP callers.
type MatchSnapshot struct {
	Code            string         `json:"code"`
	QuizID          string         `json:"quizId"`
	Status          MatchStatus    `json:"status"`
	CurrentQuestion int            `json:"currentQuestion"`
	CreatedAt       time.Time      `json:"createdAt"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	Players         []Player       `json:"players"`
	Answers         []PlayerAnswer `json:"-"`
	Standings       []Standing     `json:"-"`
}
