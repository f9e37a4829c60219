package game

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-match-service/internal/domain"
)

// Rules are the tunable pacing knobs of a match.
type Rules struct {
	MinPlayers     int
	AutoStartDelay time.Duration
	SettleDelay    time.Duration
}

// DefaultRules mirrors the classic pacing: start 3s after everyone is
// ready, 3s between a question's results and the next question.
func DefaultRules() Rules {
	return Rules{
		MinPlayers:     2,
		AutoStartDelay: 3 * time.Second,
		SettleDelay:    3 * time.Second,
	}
}

// Archiver persists a completed match. It is invoked outside the
// match's own goroutine so slow storage never blocks gameplay.
type Archiver interface {
	ArchiveMatch(ctx context.Context, snap domain.MatchSnapshot) error
}

// Match is one run of a quiz by a fixed set of players. All mutable
// state is owned by a single goroutine; external callers post commands
// through a channel, which serializes every operation targeting the
// match (joins, answers, timer fires) without a shared lock.
type Match struct {
	code        string
	quiz        domain.Quiz
	rules       Rules
	broadcaster Broadcaster
	archiver    Archiver
	now         func() time.Time

	cmds     chan func()
	quit     chan struct{}
	stopOnce sync.Once

	// Owned by the run goroutine.
	status        domain.MatchStatus
	createdAt     time.Time
	startedAt     *time.Time
	endedAt       *time.Time
	current       int // 1-based order of the open (or last closed) question
	players       map[string]*domain.Player
	joinOrder     []string
	answers       map[string]map[string]*domain.PlayerAnswer // questionID -> playerID
	eligible      map[string]struct{}
	questionOpen  bool
	openedAt      time.Time
	epoch         int64 // bumped at every phase boundary; stale timers compare against it
	rosterVersion int64
	deadline      *time.Timer
	settle        *time.Timer
	pendingStart  *time.Timer
}

// NewMatch creates a match in the waiting state and starts its goroutine.
// The quiz must already be validated and is treated as immutable.
func NewMatch(code string, quiz domain.Quiz, rules Rules, b Broadcaster, archiver Archiver) *Match {
	return newMatchWithClock(code, quiz, rules, b, archiver, time.Now)
}

// newMatchWithClock allows deterministic timestamps in tests.
func newMatchWithClock(code string, quiz domain.Quiz, rules Rules, b Broadcaster, archiver Archiver, now func() time.Time) *Match {
	m := &Match{
		code:        code,
		quiz:        quiz,
		rules:       rules,
		broadcaster: b,
		archiver:    archiver,
		now:         now,
		cmds:        make(chan func(), 64),
		quit:        make(chan struct{}),
		status:      domain.StatusWaiting,
		createdAt:   now(),
		players:     make(map[string]*domain.Player),
		answers:     make(map[string]map[string]*domain.PlayerAnswer),
	}
	go m.run()
	return m
}

func (m *Match) run() {
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.quit:
			return
		}
	}
}

// do posts a command to the match goroutine. It fails once the match
// has been stopped, so timer callbacks outliving the match are no-ops.
func (m *Match) do(fn func()) error {
	select {
	case m.cmds <- fn:
		return nil
	case <-m.quit:
		return domain.ErrMatchClosed
	}
}

// call runs fn inside the match goroutine and waits for its result.
func call[T any](m *Match, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	if err := m.do(func() {
		v, err := fn()
		ch <- result{v, err}
	}); err != nil {
		var zero T
		return zero, err
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-m.quit:
		// The command may still have completed just before shutdown.
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		var zero T
		return zero, domain.ErrMatchClosed
	}
}

// Code returns the match's join code.
func (m *Match) Code() string { return m.code }

// Quiz returns the immutable quiz content this match plays.
func (m *Match) Quiz() domain.Quiz { return m.quiz }

// Stop terminates the match goroutine and cancels any armed timers.
// Posted commands that have not run yet are abandoned.
func (m *Match) Stop() {
	m.stopOnce.Do(func() {
		_ = m.do(func() {
			m.stopTimers()
			close(m.quit)
		})
	})
}

// Join admits a player while the match is still waiting.
func (m *Match) Join(nickname, connID string) (domain.Player, error) {
	return call(m, func() (domain.Player, error) { return m.join(nickname, connID) })
}

// SetReady marks a player ready. Repeated calls are idempotent but
// still emit a readiness notification.
func (m *Match) SetReady(playerID string) error {
	_, err := call(m, func() (struct{}, error) { return struct{}{}, m.setReady(playerID) })
	return err
}

// Start begins the question sequence if the preconditions hold.
func (m *Match) Start() error {
	_, err := call(m, func() (struct{}, error) { return struct{}{}, m.start() })
	return err
}

// SubmitAnswer records a player's answer for the open question.
func (m *Match) SubmitAnswer(playerID, questionID, answerID string, timeTakenMs int) (domain.PlayerAnswer, error) {
	return call(m, func() (domain.PlayerAnswer, error) {
		return m.submit(playerID, questionID, answerID, timeTakenMs)
	})
}

// Leave removes a player (disconnect or explicit leave).
func (m *Match) Leave(playerID string) error {
	_, err := call(m, func() (struct{}, error) { return struct{}{}, m.leave(playerID) })
	return err
}

// IsEmpty reports whether the match has no players left.
func (m *Match) IsEmpty() bool {
	empty, err := call(m, func() (bool, error) { return len(m.players) == 0, nil })
	return err != nil || empty
}

// Snapshot copies the match state for HTTP callers and archival.
func (m *Match) Snapshot() domain.MatchSnapshot {
	snap, err := call(m, func() (domain.MatchSnapshot, error) { return m.snapshot(), nil })
	if err != nil {
		return domain.MatchSnapshot{Code: m.code, QuizID: m.quiz.ID, Status: domain.StatusCompleted}
	}
	return snap
}

func (m *Match) join(nickname, connID string) (domain.Player, error) {
	switch m.status {
	case domain.StatusInProgress:
		return domain.Player{}, domain.ErrMatchStarted
	case domain.StatusCompleted:
		return domain.Player{}, domain.ErrMatchClosed
	}
	for _, p := range m.players {
		if p.Nickname == nickname {
			return domain.Player{}, domain.ErrNicknameTaken
		}
	}
	p := &domain.Player{
		ID:       uuid.NewString(),
		Nickname: nickname,
		ConnID:   connID,
		JoinedAt: m.now(),
	}
	m.players[p.ID] = p
	m.joinOrder = append(m.joinOrder, p.ID)
	m.rosterVersion++
	m.broadcaster.Broadcast(m.code, EventPlayerJoined, nickname)
	m.broadcaster.Broadcast(m.code, EventPlayersUpdate, m.roster())
	return *p, nil
}

func (m *Match) setReady(playerID string) error {
	switch m.status {
	case domain.StatusInProgress:
		return domain.ErrMatchStarted
	case domain.StatusCompleted:
		return domain.ErrMatchClosed
	}
	p, ok := m.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Ready = true
	m.broadcaster.Broadcast(m.code, EventPlayerReady, ReadyChange{Nickname: p.Nickname, Ready: true})
	m.scheduleAutoStart()
	return nil
}

// scheduleAutoStart arms the deferred start when the roster qualifies.
// The fire re-checks status, roster version and readiness, so an
// outdated timer is a safe no-op.
func (m *Match) scheduleAutoStart() {
	if len(m.players) < m.rules.MinPlayers || !m.allReady() {
		return
	}
	if m.pendingStart != nil {
		m.pendingStart.Stop()
	}
	version := m.rosterVersion
	m.pendingStart = time.AfterFunc(m.rules.AutoStartDelay, func() {
		_ = m.do(func() { m.autoStart(version) })
	})
}

func (m *Match) autoStart(version int64) {
	if m.status != domain.StatusWaiting || m.rosterVersion != version {
		return
	}
	if len(m.players) < m.rules.MinPlayers || !m.allReady() {
		return
	}
	if err := m.start(); err != nil {
		log.Printf("match %s: auto start: %v", m.code, err)
	}
}

func (m *Match) allReady() bool {
	for _, p := range m.players {
		if !p.Ready {
			return false
		}
	}
	return len(m.players) > 0
}

func (m *Match) start() error {
	switch m.status {
	case domain.StatusInProgress:
		return domain.ErrMatchStarted
	case domain.StatusCompleted:
		return domain.ErrMatchClosed
	}
	if len(m.players) < m.rules.MinPlayers {
		return domain.ErrNotEnoughPlayers
	}
	if !m.allReady() {
		return domain.ErrNotAllReady
	}
	if m.pendingStart != nil {
		m.pendingStart.Stop()
		m.pendingStart = nil
	}
	now := m.now()
	m.status = domain.StatusInProgress
	m.startedAt = &now
	m.broadcaster.Broadcast(m.code, EventMatchStarted, nil)
	m.current = 1
	m.openQuestion()
	return nil
}

// openQuestion starts the cycle for m.current: snapshot eligibility,
// broadcast the sanitized question, arm the deadline timer.
func (m *Match) openQuestion() {
	q := m.quiz.Questions[m.current-1]
	m.epoch++
	epoch := m.epoch
	m.questionOpen = true
	m.openedAt = m.now()
	m.eligible = make(map[string]struct{}, len(m.players))
	for id := range m.players {
		m.eligible[id] = struct{}{}
	}
	limit := m.quiz.TimeLimitFor(q)
	m.broadcaster.Broadcast(m.code, EventNewQuestion, m.questionView(q, limit))
	if m.deadline != nil {
		m.deadline.Stop()
	}
	m.deadline = time.AfterFunc(time.Duration(limit)*time.Millisecond, func() {
		_ = m.do(func() { m.onDeadline(epoch) })
	})
}

// onDeadline is the timer-side close trigger. A fire from a previous
// phase carries a stale epoch and is ignored.
func (m *Match) onDeadline(epoch int64) {
	if epoch != m.epoch || !m.questionOpen {
		return
	}
	m.closeQuestion()
}

func (m *Match) submit(playerID, questionID, answerID string, timeTakenMs int) (domain.PlayerAnswer, error) {
	if m.status == domain.StatusCompleted {
		return domain.PlayerAnswer{}, domain.ErrMatchClosed
	}
	q, ok := m.questionByID(questionID)
	if !ok {
		return domain.PlayerAnswer{}, domain.ErrQuestionNotFound
	}
	if m.status != domain.StatusInProgress || !m.questionOpen || q.Order != m.current {
		return domain.PlayerAnswer{}, domain.ErrNotEligible
	}
	p, ok := m.players[playerID]
	if !ok {
		return domain.PlayerAnswer{}, domain.ErrPlayerNotFound
	}
	if _, ok := m.eligible[playerID]; !ok {
		// Joined after the question opened; cannot answer it.
		return domain.PlayerAnswer{}, domain.ErrNotEligible
	}
	ledger := m.answers[questionID]
	if ledger == nil {
		ledger = make(map[string]*domain.PlayerAnswer)
		m.answers[questionID] = ledger
	}
	if _, dup := ledger[playerID]; dup {
		return domain.PlayerAnswer{}, domain.ErrDuplicateAnswer
	}
	opt, ok := optionByID(q, answerID)
	if !ok {
		return domain.PlayerAnswer{}, domain.ErrAnswerNotFound
	}
	if timeTakenMs < 0 {
		timeTakenMs = 0
	}
	points := Award(basePoints(q), m.quiz.TimeLimitFor(q), timeTakenMs, opt.Correct)
	rec := &domain.PlayerAnswer{
		PlayerID:     playerID,
		QuestionID:   questionID,
		AnswerID:     answerID,
		TimeTakenMs:  timeTakenMs,
		PointsEarned: points,
		AnsweredAt:   m.now(),
	}
	ledger[playerID] = rec
	p.Score += points
	if m.allEligibleAnswered(questionID) {
		m.closeQuestion()
	}
	return *rec, nil
}

// allEligibleAnswered is the all-answered trigger condition. Players
// who left after the question opened are excluded at evaluation time so
// a departure can never leave the question stuck.
func (m *Match) allEligibleAnswered(questionID string) bool {
	ledger := m.answers[questionID]
	counted := 0
	for id := range m.eligible {
		if _, present := m.players[id]; !present {
			continue
		}
		if _, ok := ledger[id]; !ok {
			return false
		}
		counted++
	}
	return counted > 0
}

// closeQuestion runs the close logic exactly once per question; the
// open flag is the close-once guard, so the second of two racing
// triggers is a no-op.
func (m *Match) closeQuestion() {
	if !m.questionOpen {
		return
	}
	m.questionOpen = false
	m.epoch++
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	q := m.quiz.Questions[m.current-1]
	m.broadcaster.Broadcast(m.code, EventQuestionResults, m.resultsFor(q))
	epoch := m.epoch
	m.settle = time.AfterFunc(m.rules.SettleDelay, func() {
		_ = m.do(func() { m.advance(epoch) })
	})
}

// advance fires after the settle delay: next question or match end.
func (m *Match) advance(epoch int64) {
	if epoch != m.epoch || m.status != domain.StatusInProgress || m.questionOpen {
		return
	}
	if m.current < len(m.quiz.Questions) {
		m.current++
		m.openQuestion()
		return
	}
	m.complete()
}

func (m *Match) complete() {
	now := m.now()
	m.status = domain.StatusCompleted
	m.endedAt = &now
	m.epoch++
	m.stopTimers()
	standings := m.standings()
	m.broadcaster.Broadcast(m.code, EventMatchEnded, standings)
	if m.archiver != nil {
		snap := m.snapshot()
		snap.Standings = standings
		go func() {
			if err := m.archiver.ArchiveMatch(context.Background(), snap); err != nil {
				log.Printf("match %s: archive: %v", m.code, err)
			}
		}()
	}
}

func (m *Match) leave(playerID string) error {
	p, ok := m.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	delete(m.players, playerID)
	for i, id := range m.joinOrder {
		if id == playerID {
			m.joinOrder = append(m.joinOrder[:i], m.joinOrder[i+1:]...)
			break
		}
	}
	m.rosterVersion++
	if m.status == domain.StatusCompleted {
		return nil
	}
	m.broadcaster.Broadcast(m.code, EventPlayerLeft, p.Nickname)
	m.broadcaster.Broadcast(m.code, EventPlayersUpdate, m.roster())
	if m.status == domain.StatusWaiting {
		// The departed player may have been the only one not ready.
		m.scheduleAutoStart()
		return nil
	}
	if m.status == domain.StatusInProgress && len(m.players) == 0 {
		// Everyone is gone; finish so the match can be archived and reaped.
		if m.questionOpen {
			m.questionOpen = false
			m.epoch++
		}
		m.complete()
		return nil
	}
	if m.questionOpen && m.allEligibleAnswered(m.quiz.Questions[m.current-1].ID) {
		m.closeQuestion()
	}
	return nil
}

func (m *Match) stopTimers() {
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	if m.pendingStart != nil {
		m.pendingStart.Stop()
		m.pendingStart = nil
	}
}

func (m *Match) roster() []domain.RosterEntry {
	entries := make([]domain.RosterEntry, 0, len(m.joinOrder))
	for _, id := range m.joinOrder {
		p := m.players[id]
		entries = append(entries, domain.RosterEntry{Nickname: p.Nickname, Score: p.Score, Ready: p.Ready})
	}
	return entries
}

// resultsFor builds one row per current roster member; players without
// a ledger entry get a zero "no answer" row.
func (m *Match) resultsFor(q domain.Question) []domain.QuestionResult {
	ledger := m.answers[q.ID]
	rows := make([]domain.QuestionResult, 0, len(m.joinOrder))
	for _, id := range m.joinOrder {
		p := m.players[id]
		row := domain.QuestionResult{PlayerID: id, Nickname: p.Nickname}
		if rec, ok := ledger[id]; ok {
			row.Answered = true
			row.AnswerID = rec.AnswerID
			row.PointsEarned = rec.PointsEarned
			row.TimeTakenMs = rec.TimeTakenMs
			if opt, ok := optionByID(q, rec.AnswerID); ok {
				row.AnswerText = opt.Text
				row.Correct = opt.Correct
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// standings ranks the current roster by score descending; ties keep
// join order, so the earlier joiner places higher.
func (m *Match) standings() []domain.Standing {
	out := make([]domain.Standing, 0, len(m.joinOrder))
	for _, id := range m.joinOrder {
		p := m.players[id]
		out = append(out, domain.Standing{PlayerID: id, Nickname: p.Nickname, TotalScore: p.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalScore > out[j].TotalScore
	})
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

func (m *Match) questionView(q domain.Question, limitMs int) domain.QuestionView {
	opts := make([]domain.ClientOption, 0, len(q.Options))
	for _, opt := range q.Options {
		opts = append(opts, domain.ClientOption{ID: opt.ID, Text: opt.Text, Order: opt.Order})
	}
	return domain.QuestionView{
		ID:             q.ID,
		Text:           q.Text,
		Type:           q.Type,
		Options:        opts,
		TimeLimitMs:    limitMs,
		QuestionNumber: q.Order,
		TotalQuestions: len(m.quiz.Questions),
	}
}

func (m *Match) questionByID(id string) (domain.Question, bool) {
	for _, q := range m.quiz.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (m *Match) snapshot() domain.MatchSnapshot {
	players := make([]domain.Player, 0, len(m.joinOrder))
	for _, id := range m.joinOrder {
		players = append(players, *m.players[id])
	}
	var answers []domain.PlayerAnswer
	for _, ledger := range m.answers {
		for _, rec := range ledger {
			answers = append(answers, *rec)
		}
	}
	return domain.MatchSnapshot{
		Code:            m.code,
		QuizID:          m.quiz.ID,
		Status:          m.status,
		CurrentQuestion: m.current,
		CreatedAt:       m.createdAt,
		StartedAt:       m.startedAt,
		EndedAt:         m.endedAt,
		Players:         players,
		Answers:         answers,
	}
}

func optionByID(q domain.Question, id string) (domain.Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return domain.Option{}, false
}

func basePoints(q domain.Question) int {
	if q.Points > 0 {
		return q.Points
	}
	return 10
}
