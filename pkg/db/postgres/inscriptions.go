package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
)

// initInscriptions creates the inscriptions table
func (s *Store) initInscriptions(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS inscriptions (
			inscription_id BIGINT PRIMARY KEY,
			round_id BIGINT NOT NULL,
			agent_id BIGINT NOT NULL,
			wallet TEXT NOT NULL,
			block_type TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			content_hash TEXT NOT NULL,
			proof_hash TEXT NOT NULL,
			prev_hash TEXT NOT NULL,
			cycle_count BIGINT NOT NULL DEFAULT 0,
			revealed BOOLEAN NOT NULL DEFAULT FALSE,
			content TEXT,
			correct BOOLEAN,
			tx_hash TEXT NOT NULL DEFAULT '',
			block_number BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_inscriptions_round ON inscriptions(round_id);
		CREATE INDEX IF NOT EXISTS idx_inscriptions_wallet ON inscriptions(wallet);
	`

	return s.Exec(ctx, query)
}

// InsertInscription inserts a newly observed commit. Duplicate observation
// of the same inscription id (overlapping log scans re-deliver events) is an
// ON CONFLICT DO NOTHING no-op; the return value reports whether a row was
// actually inserted.
func (s *Store) InsertInscription(ctx context.Context, ins *models.Inscription) (bool, error) {
	now := time.Now()
	if ins.CreatedAt.IsZero() {
		ins.CreatedAt = now
	}
	ins.UpdatedAt = now

	query := `
		INSERT INTO inscriptions (
			inscription_id, round_id, agent_id, wallet, block_type, summary,
			content_hash, proof_hash, prev_hash, cycle_count, revealed, content,
			correct, tx_hash, block_number, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (inscription_id) DO NOTHING
	`

	rows, err := s.ExecRows(ctx, query,
		ins.InscriptionID,
		ins.RoundID,
		ins.AgentID,
		ins.Wallet,
		ins.BlockType,
		ins.Summary,
		ins.ContentHash,
		ins.ProofHash,
		ins.PrevHash,
		ins.CycleCount,
		ins.Revealed,
		ins.Content,
		ins.Correct,
		ins.TxHash,
		ins.BlockNumber,
		ins.CreatedAt,
		ins.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// InscriptionExists reports whether the inscription id is already mirrored.
func (s *Store) InscriptionExists(ctx context.Context, id uint64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM inscriptions WHERE inscription_id = $1)`

	var exists bool
	if err := s.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check inscription %d: %w", id, err)
	}
	return exists, nil
}

// MarkRevealed records an observed reveal for an inscription.
func (s *Store) MarkRevealed(ctx context.Context, id uint64, content string) error {
	query := `
		UPDATE inscriptions
		SET revealed = TRUE, content = $2, updated_at = NOW()
		WHERE inscription_id = $1
	`
	return s.Exec(ctx, query, id, content)
}

// GradeInscription records correctness once the owning round has settled.
func (s *Store) GradeInscription(ctx context.Context, id uint64, correct bool) error {
	query := `
		UPDATE inscriptions
		SET correct = $2, updated_at = NOW()
		WHERE inscription_id = $1 AND revealed = TRUE
	`
	return s.Exec(ctx, query, id, correct)
}

const inscriptionColumns = `
	inscription_id, round_id, agent_id, wallet, block_type, summary,
	content_hash, proof_hash, prev_hash, cycle_count, revealed, content,
	correct, tx_hash, block_number, created_at, updated_at
`

func scanInscription(row interface{ Scan(...any) error }) (models.Inscription, error) {
	var ins models.Inscription
	err := row.Scan(
		&ins.InscriptionID,
		&ins.RoundID,
		&ins.AgentID,
		&ins.Wallet,
		&ins.BlockType,
		&ins.Summary,
		&ins.ContentHash,
		&ins.ProofHash,
		&ins.PrevHash,
		&ins.CycleCount,
		&ins.Revealed,
		&ins.Content,
		&ins.Correct,
		&ins.TxHash,
		&ins.BlockNumber,
		&ins.CreatedAt,
		&ins.UpdatedAt,
	)
	return ins, err
}

func (s *Store) queryInscriptions(ctx context.Context, query string, args ...any) ([]models.Inscription, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inscriptions []models.Inscription
	for rows.Next() {
		ins, err := scanInscription(rows)
		if err != nil {
			return nil, err
		}
		inscriptions = append(inscriptions, ins)
	}
	return inscriptions, rows.Err()
}

// InscriptionsByRound returns all inscriptions for a round in id order.
func (s *Store) InscriptionsByRound(ctx context.Context, roundID uint64) ([]models.Inscription, error) {
	query := `SELECT ` + inscriptionColumns + ` FROM inscriptions WHERE round_id = $1 ORDER BY inscription_id`
	return s.queryInscriptions(ctx, query, roundID)
}

// InscriptionsByWallet returns a wallet's most recent inscriptions.
func (s *Store) InscriptionsByWallet(ctx context.Context, wallet string, limit int) ([]models.Inscription, error) {
	query := `SELECT ` + inscriptionColumns + ` FROM inscriptions WHERE wallet = $1 ORDER BY inscription_id DESC LIMIT $2`
	return s.queryInscriptions(ctx, query, wallet, limit)
}

// UngradedRevealed returns a round's revealed but not yet graded
// inscriptions.
func (s *Store) UngradedRevealed(ctx context.Context, roundID uint64) ([]models.Inscription, error) {
	query := `
		SELECT ` + inscriptionColumns + `
		FROM inscriptions
		WHERE round_id = $1 AND revealed = TRUE AND correct IS NULL
		ORDER BY inscription_id
	`
	return s.queryInscriptions(ctx, query, roundID)
}

// UnrevealedByRound returns a round's inscriptions with no reveal recorded
// yet.
func (s *Store) UnrevealedByRound(ctx context.Context, roundID uint64) ([]models.Inscription, error) {
	query := `
		SELECT ` + inscriptionColumns + `
		FROM inscriptions
		WHERE round_id = $1 AND revealed = FALSE
		ORDER BY inscription_id
	`
	return s.queryInscriptions(ctx, query, roundID)
}
