package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
)

// initRounds creates the rounds table
func (s *Store) initRounds(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS rounds (
			round_id BIGINT PRIMARY KEY,
			epoch_id BIGINT NOT NULL,
			commit_open_at BIGINT NOT NULL,
			commit_close_at BIGINT NOT NULL,
			reveal_close_at BIGINT NOT NULL,
			answer_hash TEXT NOT NULL DEFAULT '',
			question_id BIGINT NOT NULL DEFAULT 0,
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			expired BOOLEAN NOT NULL DEFAULT FALSE,
			answer TEXT,
			correct_count BIGINT NOT NULL DEFAULT 0,
			question TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_rounds_epoch ON rounds(epoch_id);
		CREATE INDEX IF NOT EXISTS idx_rounds_open ON rounds(settled, expired);
	`

	return s.Exec(ctx, query)
}

// UpsertRound inserts or updates a round. The conflict clause refuses to
// touch rows already settled or expired, which makes the round immutable
// once terminal as the lifecycle requires.
func (s *Store) UpsertRound(ctx context.Context, r *models.Round) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	query := `
		INSERT INTO rounds (
			round_id, epoch_id, commit_open_at, commit_close_at, reveal_close_at,
			answer_hash, question_id, settled, expired, answer, correct_count,
			question, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (round_id) DO UPDATE SET
			epoch_id = EXCLUDED.epoch_id,
			commit_open_at = EXCLUDED.commit_open_at,
			commit_close_at = EXCLUDED.commit_close_at,
			reveal_close_at = EXCLUDED.reveal_close_at,
			answer_hash = EXCLUDED.answer_hash,
			question_id = EXCLUDED.question_id,
			settled = EXCLUDED.settled,
			expired = EXCLUDED.expired,
			answer = EXCLUDED.answer,
			correct_count = EXCLUDED.correct_count,
			question = COALESCE(EXCLUDED.question, rounds.question),
			updated_at = EXCLUDED.updated_at
		WHERE rounds.settled = FALSE AND rounds.expired = FALSE
	`

	return s.Exec(ctx, query,
		r.RoundID,
		r.EpochID,
		r.CommitOpenAt,
		r.CommitCloseAt,
		r.RevealCloseAt,
		r.AnswerHash,
		r.QuestionID,
		r.Settled,
		r.Expired,
		r.Answer,
		r.CorrectCount,
		r.Question,
		r.CreatedAt,
		r.UpdatedAt,
	)
}

const roundColumns = `
	round_id, epoch_id, commit_open_at, commit_close_at, reveal_close_at,
	answer_hash, question_id, settled, expired, answer, correct_count,
	question, created_at, updated_at
`

func scanRound(row interface{ Scan(...any) error }) (models.Round, error) {
	var r models.Round
	err := row.Scan(
		&r.RoundID,
		&r.EpochID,
		&r.CommitOpenAt,
		&r.CommitCloseAt,
		&r.RevealCloseAt,
		&r.AnswerHash,
		&r.QuestionID,
		&r.Settled,
		&r.Expired,
		&r.Answer,
		&r.CorrectCount,
		&r.Question,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

// GetRound returns the round for the given round_id.
func (s *Store) GetRound(ctx context.Context, id uint64) (*models.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE round_id = $1`

	r, err := scanRound(s.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("round %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to query round %d: %w", id, err)
	}
	return &r, nil
}

// MaxRoundID returns the highest mirrored round id, zero when empty.
func (s *Store) MaxRoundID(ctx context.Context) (uint64, error) {
	query := `SELECT COALESCE(MAX(round_id), 0) FROM rounds`

	var id uint64
	if err := s.QueryRow(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query max round id: %w", err)
	}
	return id, nil
}

// UnsettledRounds returns every round that is neither settled nor expired,
// oldest first.
func (s *Store) UnsettledRounds(ctx context.Context) ([]models.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		WHERE settled = FALSE AND expired = FALSE
		ORDER BY round_id
	`

	rows, err := s.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// RecentRounds returns the most recent posted rounds, newest first.
func (s *Store) RecentRounds(ctx context.Context, limit int) ([]models.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		ORDER BY round_id DESC
		LIMIT $1
	`

	rows, err := s.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []models.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// RoundsByEpoch returns an epoch's rounds in order along with the epoch's
// aggregate correct-reveal count.
func (s *Store) RoundsByEpoch(ctx context.Context, epochID uint64) ([]models.Round, uint64, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM rounds
		WHERE epoch_id = $1
		ORDER BY round_id
	`

	rows, err := s.Query(ctx, query, epochID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rounds []models.Round
	var totalCorrect uint64
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, 0, err
		}
		totalCorrect += r.CorrectCount
		rounds = append(rounds, r)
	}
	return rounds, totalCorrect, rows.Err()
}
