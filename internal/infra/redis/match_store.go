package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-match-service/internal/game"
)

// MatchStore is a Redis-aware implementation of game.MatchStore.
// Notes:
//   - Match actors stay in-process (their goroutines and timers cannot
//     live in Redis); the local map reuses the in-memory routing.
//   - Redis holds a reservation key per active code (SET NX with the
//     retention TTL), so codes stay globally unique across instances
//     and across restarts for as long as a match may be alive.
type MatchStore struct {
	client  *redis.Client
	ttl     time.Duration
	mu      sync.RWMutex
	matches map[string]*game.Match
}

func NewMatchStore(client *redis.Client, ttl time.Duration) *MatchStore {
	return &MatchStore{
		client:  client,
		ttl:     ttl,
		matches: make(map[string]*game.Match),
	}
}

func (s *MatchStore) Register(m *game.Match) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.matches[m.Code()]; taken {
		return false
	}
	reserved, err := s.client.SetNX(context.Background(), s.key(m.Code()), "1", s.ttl).Result()
	if err == nil && !reserved {
		return false
	}
	// On a Redis error the local map still guards uniqueness in-process.
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
	if _, ok := s.matches[code]; !ok {
		return
	}
	delete(s.matches, code)
	_ = s.client.Del(context.Background(), s.key(code)).Err()
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

func (s *MatchStore) key(code string) string {
	return "match:code:" + code
}
