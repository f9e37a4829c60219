package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-match-service/internal/domain"
)

// MatchArchive writes completed matches to Postgres. The whole match is
// written in one transaction so a retrying caller never observes a
// half-archived match.
type MatchArchive struct {
	pool *pgxpool.Pool
}

func NewMatchArchive(pool *pgxpool.Pool) *MatchArchive {
	return &MatchArchive{pool: pool}
}

func (a *MatchArchive) ArchiveMatch(ctx context.Context, snap domain.MatchSnapshot) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("archive match %s: begin: %w", snap.Code, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO matches (code, quiz_id, status, current_question, created_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE
		SET status=EXCLUDED.status, current_question=EXCLUDED.current_question, ended_at=EXCLUDED.ended_at`,
		snap.Code, snap.QuizID, string(snap.Status), snap.CurrentQuestion, snap.CreatedAt, snap.StartedAt, snap.EndedAt)
	if err != nil {
		return fmt.Errorf("archive match %s: %w", snap.Code, err)
	}

	for _, p := range snap.Players {
		_, err = tx.Exec(ctx, `
			INSERT INTO match_players (id, match_code, nickname, score, joined_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET score=EXCLUDED.score`,
			p.ID, snap.Code, p.Nickname, p.Score, p.JoinedAt)
		if err != nil {
			return fmt.Errorf("archive match %s player %s: %w", snap.Code, p.ID, err)
		}
	}

	for _, rec := range snap.Answers {
		_, err = tx.Exec(ctx, `
			INSERT INTO player_answers (player_id, match_code, question_id, answer_id, time_taken_ms, points_earned, answered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (player_id, question_id) DO NOTHING`,
			rec.PlayerID, snap.Code, rec.QuestionID, rec.AnswerID, rec.TimeTakenMs, rec.PointsEarned, rec.AnsweredAt)
		if err != nil {
			return fmt.Errorf("archive match %s answer: %w", snap.Code, err)
		}
	}

	return tx.Commit(ctx)
}

// CleanupBefore deletes archived matches created before cutoff and
// returns the number removed. Player and answer rows cascade.
func (a *MatchArchive) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, `DELETE FROM matches WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup matches: %w", err)
	}
	return tag.RowsAffected(), nil
}
