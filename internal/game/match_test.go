package game

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"trivia-match-service/internal/domain"
)

type broadcastEvent struct {
	room    string
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) Broadcast(room, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{room: room, event: event, payload: payload})
}

func (b *recordingBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) last(event string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].event == event {
			return b.events[i].payload, true
		}
	}
	return nil, false
}

func (b *recordingBroadcaster) waitFor(t *testing.T, event string, n int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.count(event) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events, saw %d", n, event, b.count(event))
}

func fastRules() Rules {
	return Rules{
		MinPlayers:     2,
		AutoStartDelay: 20 * time.Millisecond,
		SettleDelay:    20 * time.Millisecond,
	}
}

func testQuiz(questions, limitMs int) domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-test", Title: "Test", TimePerQuestionMs: limitMs}
	for i := 1; i <= questions; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:     fmt.Sprintf("q%d", i),
			Text:   fmt.Sprintf("Question %d", i),
			Type:   domain.TrueFalse,
			Order:  i,
			Points: 10,
			Options: []domain.Option{
				{ID: fmt.Sprintf("q%do1", i), Text: "True", Correct: true, Order: 1},
				{ID: fmt.Sprintf("q%do2", i), Text: "False", Correct: false, Order: 2},
			},
		})
	}
	return quiz
}

// startedMatch builds a two-player match that has already broadcast its
// first question.
func startedMatch(t *testing.T, quiz domain.Quiz, b *recordingBroadcaster) (*Match, domain.Player, domain.Player) {
	t.Helper()
	m := NewMatch("TEST01", quiz, fastRules(), b, nil)
	t.Cleanup(m.Stop)
	p1, err := m.Join("Alice", "c1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	p2, err := m.Join("Bob", "c2")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.SetReady(p1.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := m.SetReady(p2.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	b.waitFor(t, EventNewQuestion, 1, time.Second)
	return m, p1, p2
}

func TestJoinRejectsDuplicateNickname(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), fastRules(), b, nil)
	defer m.Stop()

	if _, err := m.Join("Alice", "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := m.Join("Alice", "c2"); !errors.Is(err, domain.ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}
	if got := b.count(EventPlayerJoined); got != 1 {
		t.Fatalf("rejected join must not broadcast, saw %d playerJoined events", got)
	}
}

func TestJoinRejectedAfterStart(t *testing.T) {
	b := &recordingBroadcaster{}
	m, _, _ := startedMatch(t, testQuiz(1, 5000), b)

	if _, err := m.Join("Carol", "c3"); !errors.Is(err, domain.ErrMatchStarted) {
		t.Fatalf("expected ErrMatchStarted, got %v", err)
	}
}

func TestStartPreconditions(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), fastRules(), b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	if err := m.Start(); !errors.Is(err, domain.ErrNotEnoughPlayers) {
		t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
	}

	if _, err := m.Join("Bob", "c2"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Start(); !errors.Is(err, domain.ErrNotAllReady) {
		t.Fatalf("expected ErrNotAllReady, got %v", err)
	}

	_ = p1
	if got := b.count(EventMatchStarted); got != 0 {
		t.Fatalf("failed starts must not broadcast, saw %d matchStarted events", got)
	}
}

func TestAutoStartFiresOnceWhenAllReady(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), fastRules(), b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	p2, _ := m.Join("Bob", "c2")
	if err := m.SetReady(p1.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if err := m.SetReady(p2.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}

	b.waitFor(t, EventMatchStarted, 1, time.Second)
	// Give any duplicate deferred start a chance to fire.
	time.Sleep(100 * time.Millisecond)
	if got := b.count(EventMatchStarted); got != 1 {
		t.Fatalf("expected exactly one matchStarted, got %d", got)
	}
	if got := b.count(EventNewQuestion); got != 1 {
		t.Fatalf("expected first question broadcast once, got %d", got)
	}
}

func TestAutoStartNeverFiresBelowMinPlayers(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), fastRules(), b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	if err := m.SetReady(p1.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := b.count(EventMatchStarted); got != 0 {
		t.Fatalf("auto start fired with a single player")
	}
}

func TestAutoStartIsCancelledByDeparture(t *testing.T) {
	b := &recordingBroadcaster{}
	rules := fastRules()
	rules.AutoStartDelay = 80 * time.Millisecond
	m := NewMatch("TEST01", testQuiz(1, 5000), rules, b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	p2, _ := m.Join("Bob", "c2")
	_ = m.SetReady(p1.ID)
	_ = m.SetReady(p2.ID)
	if err := m.Leave(p2.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := b.count(EventMatchStarted); got != 0 {
		t.Fatalf("deferred start fired after a player left")
	}
}

func TestAutoStartAfterLastNotReadyPlayerLeaves(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), fastRules(), b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	p2, _ := m.Join("Bob", "c2")
	p3, _ := m.Join("Carol", "c3")
	_ = m.SetReady(p1.ID)
	_ = m.SetReady(p2.ID)

	// Everyone still present is ready once Carol leaves; the lobby must
	// not idle waiting for a readiness change that will never come.
	if err := m.Leave(p3.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	b.waitFor(t, EventMatchStarted, 1, time.Second)
}

func TestSubmitValidation(t *testing.T) {
	b := &recordingBroadcaster{}
	m, p1, _ := startedMatch(t, testQuiz(2, 5000), b)

	if _, err := m.SubmitAnswer(p1.ID, "nope", "q1o1", 100); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	// q2 exists but is not the open question.
	if _, err := m.SubmitAnswer(p1.ID, "q2", "q2o1", 100); !errors.Is(err, domain.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if _, err := m.SubmitAnswer(p1.ID, "q1", "bogus", 100); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected ErrAnswerNotFound, got %v", err)
	}
	if _, err := m.SubmitAnswer("ghost", "q1", "q1o1", 100); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestSubmitRejectsDuplicate(t *testing.T) {
	b := &recordingBroadcaster{}
	m, p1, _ := startedMatch(t, testQuiz(1, 5000), b)

	rec, err := m.SubmitAnswer(p1.ID, "q1", "q1o1", 1000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.PointsEarned == 0 {
		t.Fatalf("correct answer earned no points")
	}

	if _, err := m.SubmitAnswer(p1.ID, "q1", "q1o2", 2000); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected ErrDuplicateAnswer, got %v", err)
	}

	snap := m.Snapshot()
	for _, p := range snap.Players {
		if p.ID == p1.ID && p.Score != rec.PointsEarned {
			t.Fatalf("duplicate submission changed score: %d != %d", p.Score, rec.PointsEarned)
		}
	}
}

func TestQuestionClosesOnceUnderRacingTriggers(t *testing.T) {
	b := &recordingBroadcaster{}
	m, _, _ := startedMatch(t, testQuiz(1, 5000), b)

	done := make(chan struct{})
	if err := m.do(func() {
		stale := m.epoch
		m.closeQuestion()
		m.onDeadline(stale)  // deadline firing in the same tick
		m.closeQuestion()    // and a second all-answered trigger
		close(done)
	}); err != nil {
		t.Fatalf("post: %v", err)
	}
	<-done

	if got := b.count(EventQuestionResults); got != 1 {
		t.Fatalf("question closed %d times, want exactly 1", got)
	}
}

func TestDeadlineClosesUnansweredQuestion(t *testing.T) {
	b := &recordingBroadcaster{}
	m, _, _ := startedMatch(t, testQuiz(1, 60), b)

	b.waitFor(t, EventQuestionResults, 1, time.Second)
	payload, _ := b.last(EventQuestionResults)
	rows := payload.([]domain.QuestionResult)
	if len(rows) != 2 {
		t.Fatalf("expected one row per roster member, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Answered || row.PointsEarned != 0 {
			t.Fatalf("non-answer must be a zero row, got %+v", row)
		}
	}

	b.waitFor(t, EventMatchEnded, 1, time.Second)
	if snap := m.Snapshot(); snap.Status != domain.StatusCompleted || snap.EndedAt == nil {
		t.Fatalf("expected completed match with endedAt, got %+v", snap)
	}
}

func TestDepartedPlayerDoesNotBlockAllAnswered(t *testing.T) {
	b := &recordingBroadcaster{}
	quiz := testQuiz(1, 30000) // deadline far away; only all-answered can close
	m := NewMatch("TEST01", quiz, fastRules(), b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	p2, _ := m.Join("Bob", "c2")
	p3, _ := m.Join("Carol", "c3")
	for _, p := range []domain.Player{p1, p2, p3} {
		_ = m.SetReady(p.ID)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	b.waitFor(t, EventNewQuestion, 1, time.Second)

	if _, err := m.SubmitAnswer(p1.ID, "q1", "q1o1", 500); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.SubmitAnswer(p2.ID, "q1", "q1o2", 700); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Both remaining players have answered; Carol's departure must
	// close the question instead of leaving it stuck until the deadline.
	if err := m.Leave(p3.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	b.waitFor(t, EventQuestionResults, 1, time.Second)
}

func TestMatchRunsToCompletion(t *testing.T) {
	b := &recordingBroadcaster{}
	m, p1, p2 := startedMatch(t, testQuiz(2, 30000), b)

	if _, err := m.SubmitAnswer(p1.ID, "q1", "q1o1", 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.SubmitAnswer(p2.ID, "q1", "q1o2", 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	b.waitFor(t, EventQuestionResults, 1, time.Second)
	b.waitFor(t, EventNewQuestion, 2, time.Second)

	if _, err := m.SubmitAnswer(p1.ID, "q2", "q2o1", 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := m.SubmitAnswer(p2.ID, "q2", "q2o1", 200); err != nil {
		t.Fatalf("submit: %v", err)
	}
	b.waitFor(t, EventQuestionResults, 2, time.Second)
	b.waitFor(t, EventMatchEnded, 1, time.Second)

	payload, _ := b.last(EventMatchEnded)
	standings := payload.([]domain.Standing)
	if len(standings) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(standings))
	}
	if standings[0].Nickname != "Alice" || standings[0].Position != 1 {
		t.Fatalf("expected Alice first, got %+v", standings[0])
	}
	if standings[1].Position != 2 {
		t.Fatalf("positions must be contiguous, got %+v", standings[1])
	}

	snap := m.Snapshot()
	if snap.Status != domain.StatusCompleted || snap.CurrentQuestion != 2 {
		t.Fatalf("unexpected final state: %+v", snap)
	}
}

func TestStandingsTieBreakByJoinOrder(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), fastRules(), b, nil)
	defer m.Stop()

	p1, _ := m.Join("P1", "c1")
	p2, _ := m.Join("P2", "c2")
	p3, _ := m.Join("P3", "c3")

	result := make(chan []domain.Standing, 1)
	if err := m.do(func() {
		m.players[p1.ID].Score = 30
		m.players[p2.ID].Score = 45
		m.players[p3.ID].Score = 45
		result <- m.standings()
	}); err != nil {
		t.Fatalf("post: %v", err)
	}
	standings := <-result

	want := []string{"P2", "P3", "P1"}
	for i, nickname := range want {
		if standings[i].Nickname != nickname || standings[i].Position != i+1 {
			t.Fatalf("position %d: want %s, got %+v", i+1, nickname, standings[i])
		}
	}
}

func TestMutationsRejectedAfterCompletion(t *testing.T) {
	b := &recordingBroadcaster{}
	m, p1, p2 := startedMatch(t, testQuiz(1, 30000), b)

	_, _ = m.SubmitAnswer(p1.ID, "q1", "q1o1", 100)
	_, _ = m.SubmitAnswer(p2.ID, "q1", "q1o1", 100)
	b.waitFor(t, EventMatchEnded, 1, time.Second)

	if _, err := m.Join("Late", "c9"); !errors.Is(err, domain.ErrMatchClosed) {
		t.Fatalf("expected ErrMatchClosed on join, got %v", err)
	}
	if err := m.SetReady(p1.ID); !errors.Is(err, domain.ErrMatchClosed) {
		t.Fatalf("expected ErrMatchClosed on ready, got %v", err)
	}
	if _, err := m.SubmitAnswer(p1.ID, "q1", "q1o1", 100); !errors.Is(err, domain.ErrMatchClosed) {
		t.Fatalf("expected ErrMatchClosed on submit, got %v", err)
	}
}

func TestReadyIsIdempotentButRebroadcasts(t *testing.T) {
	b := &recordingBroadcaster{}
	m := NewMatch("TEST01", testQuiz(1, 5000), Rules{MinPlayers: 2, AutoStartDelay: time.Hour, SettleDelay: time.Hour}, b, nil)
	defer m.Stop()

	p1, _ := m.Join("Alice", "c1")
	_ = m.SetReady(p1.ID)
	_ = m.SetReady(p1.ID)

	if got := b.count(EventPlayerReady); got != 2 {
		t.Fatalf("each ready call must notify, got %d events", got)
	}
}
