package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
)

// initStakes creates the agent_stakes table
func (s *Store) initStakes(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS agent_stakes (
			wallet TEXT PRIMARY KEY,
			amount NUMERIC(78, 0) NOT NULL DEFAULT 0,
			tier SMALLINT NOT NULL DEFAULT 0,
			refreshed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_agent_stakes_refreshed ON agent_stakes(refreshed_at);
	`

	return s.Exec(ctx, query)
}

// UpsertStake inserts or refreshes a wallet's stake snapshot.
func (s *Store) UpsertStake(ctx context.Context, stake *models.AgentStake) error {
	if stake.RefreshedAt.IsZero() {
		stake.RefreshedAt = time.Now()
	}

	query := `
		INSERT INTO agent_stakes (wallet, amount, tier, refreshed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet) DO UPDATE SET
			amount = EXCLUDED.amount,
			tier = EXCLUDED.tier,
			refreshed_at = EXCLUDED.refreshed_at
	`

	return s.Exec(ctx, query, stake.Wallet, stake.Amount, stake.Tier, stake.RefreshedAt)
}

// GetStake returns the stake snapshot for a wallet.
func (s *Store) GetStake(ctx context.Context, wallet string) (*models.AgentStake, error) {
	query := `
		SELECT wallet, amount::TEXT, tier, refreshed_at
		FROM agent_stakes
		WHERE wallet = $1
	`

	var stake models.AgentStake
	err := s.QueryRow(ctx, query, wallet).Scan(
		&stake.Wallet,
		&stake.Amount,
		&stake.Tier,
		&stake.RefreshedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("stake for %s not found: %w", wallet, err)
		}
		return nil, fmt.Errorf("failed to query stake for %s: %w", wallet, err)
	}
	return &stake, nil
}

// StaleStakes returns up to limit wallets whose snapshot is older than the
// cutoff, oldest first. The bounded batch keeps the per-tick refresh cost
// flat.
func (s *Store) StaleStakes(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	query := `
		SELECT wallet
		FROM agent_stakes
		WHERE refreshed_at < $1
		ORDER BY refreshed_at
		LIMIT $2
	`

	rows, err := s.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
