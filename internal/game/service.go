package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"trivia-match-service/internal/domain"
)

// MatchStore keeps the live matches of this process, keyed by code.
type MatchStore interface {
	// Register claims the match's code; it returns false when the code
	// is already in use by an active match.
	Register(m *Match) bool
	Get(code string) (*Match, bool)
	Remove(code string)
	Codes() []string
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// codeAttempts bounds the retry loop for allocating an unused code.
const codeAttempts = 32

// GameService creates matches and routes inbound player events to them.
type GameService struct {
	matches     MatchStore
	quizzes     QuizRepository
	broadcaster Broadcaster
	archiver    Archiver
	rules       Rules

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGameService(matches MatchStore, quizzes QuizRepository, b Broadcaster, archiver Archiver, rules Rules) *GameService {
	return &GameService{
		matches:     matches,
		quizzes:     quizzes,
		broadcaster: b,
		archiver:    archiver,
		rules:       rules,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateMatch loads and validates the quiz, allocates an unused code
// and spins up the match.
func (s *GameService) CreateMatch(ctx context.Context, quizID string) (domain.MatchSnapshot, domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.MatchSnapshot{}, domain.Quiz{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.MatchSnapshot{}, domain.Quiz{}, err
	}
	for i := 0; i < codeAttempts; i++ {
		s.mu.Lock()
		code := GenerateCode(s.rnd)
		s.mu.Unlock()
		m := NewMatch(code, quiz, s.rules, s.broadcaster, s.archiver)
		if s.matches.Register(m) {
			return m.Snapshot(), quiz, nil
		}
		m.Stop()
	}
	return domain.MatchSnapshot{}, domain.Quiz{}, errors.New("could not allocate a match code")
}

// Match looks up a live match by code.
func (s *GameService) Match(code string) (*Match, error) {
	m, ok := s.matches.Get(code)
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	return m, nil
}

// Join admits a player into the match behind code.
func (s *GameService) Join(code, nickname, connID string) (domain.Player, error) {
	m, err := s.Match(code)
	if err != nil {
		return domain.Player{}, err
	}
	return m.Join(nickname, connID)
}

// SetReady marks a player ready.
func (s *GameService) SetReady(code, playerID string) error {
	m, err := s.Match(code)
	if err != nil {
		return err
	}
	return m.SetReady(playerID)
}

// Start begins a match manually (auto-start covers the common path).
func (s *GameService) Start(code string) error {
	m, err := s.Match(code)
	if err != nil {
		return err
	}
	return m.Start()
}

// SubmitAnswer records an answer for the open question.
func (s *GameService) SubmitAnswer(code, playerID, questionID, answerID string, timeTakenMs int) (domain.PlayerAnswer, error) {
	m, err := s.Match(code)
	if err != nil {
		return domain.PlayerAnswer{}, err
	}
	return m.SubmitAnswer(playerID, questionID, answerID, timeTakenMs)
}

// Leave removes a player and drops the match once its roster is empty.
func (s *GameService) Leave(code, playerID string) error {
	m, err := s.Match(code)
	if err != nil {
		return err
	}
	leaveErr := m.Leave(playerID)
	if m.IsEmpty() {
		m.Stop()
		s.matches.Remove(code)
	}
	return leaveErr
}

// CleanupExpired reaps matches older than maxAge, plus completed
// matches regardless of age once past gracePeriod. Returns the number
// of matches removed.
func (s *GameService) CleanupExpired(maxAge, gracePeriod time.Duration) int {
	now := time.Now()
	removed := 0
	for _, code := range s.matches.Codes() {
		m, ok := s.matches.Get(code)
		if !ok {
			continue
		}
		snap := m.Snapshot()
		expired := now.Sub(snap.CreatedAt) > maxAge
		finished := snap.Status == domain.StatusCompleted &&
			snap.EndedAt != nil && now.Sub(*snap.EndedAt) > gracePeriod
		if expired || finished {
			m.Stop()
			s.matches.Remove(code)
			removed++
		}
	}
	return removed
}
