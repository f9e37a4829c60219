package memory

import (
	"sync"

	"trivia-match-service/internal/game"
)

// MatchStore is an in-memory implementation of game.MatchStore.
type MatchStore struct {
	mu      sync.RWMutex
	matches map[string]*game.Match
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*game.Match),
	}
}

func (s *MatchStore) Register(m *game.Match) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.matches[m.Code()]; taken {
		return false
	}
	s.matches[m.Code()] = m
	return true
}

func (s *MatchStore) Get(code string) (*game.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[code]
	return m, ok
}

func (s *MatchStore) Remove(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, code)
}

func (s *MatchStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.matches))
	for code := range s.matches {
		codes = append(codes, code)
	}
	return codes
}
