package memory

import (
	"testing"
	"time"

	"trivia-match-service/internal/game"
)

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(room, event string, payload any) {}

func newMatch(code string) *game.Match {
	rules := game.Rules{MinPlayers: 2, AutoStartDelay: time.Hour, SettleDelay: time.Hour}
	return game.NewMatch(code, sampleQuiz(), rules, nopBroadcaster{}, nil)
}

func TestMatchStoreLifecycle(t *testing.T) {
	store := NewMatchStore()

	m := newMatch("ABC123")
	defer m.Stop()
	if !store.Register(m) {
		t.Fatalf("expected registration to succeed")
	}
	if _, ok := store.Get("ABC123"); !ok {
		t.Fatalf("expected match present")
	}

	dup := newMatch("ABC123")
	defer dup.Stop()
	if store.Register(dup) {
		t.Fatalf("duplicate code registered")
	}

	store.Remove("ABC123")
	if _, ok := store.Get("ABC123"); ok {
		t.Fatalf("expected match removed")
	}
	if codes := store.Codes(); len(codes) != 0 {
		t.Fatalf("expected no codes, got %v", codes)
	}
}
