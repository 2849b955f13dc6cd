package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
	"github.com/agentmine-network/agentmine-indexer/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
)

// scanStakeTransfers re-reads the stake of every wallet that moved tokens
// into or out of the staking contract within [from, to].
func (e *Engine) scanStakeTransfers(ctx context.Context, from, to uint64, sum *Summary) {
	transfers, err := e.chain.FilterStakeTransfers(ctx, from, to)
	if err != nil {
		slog.Warn("stake transfer scan failed", "from", from, "to", to, "err", err)
		sum.Errors++
		return
	}

	staking := e.chain.StakingContract()
	seen := make(map[common.Address]bool)
	for _, tr := range transfers {
		counterparty := tr.From
		if tr.From == staking {
			counterparty = tr.To
		}
		// Self-transfers and mint/burn legs have no wallet to refresh.
		if counterparty == staking || counterparty == (common.Address{}) {
			continue
		}
		if seen[counterparty] {
			continue
		}
		seen[counterparty] = true

		if err := e.refreshStake(ctx, counterparty); err != nil {
			slog.Warn("stake refresh failed", "wallet", counterparty.Hex(), "err", err)
			sum.Errors++
			continue
		}
		sum.StakesRefreshed++
	}
}

// refreshStake re-reads a wallet's staked amount and upserts its tier.
func (e *Engine) refreshStake(ctx context.Context, wallet common.Address) error {
	amount, err := e.chain.StakeOf(ctx, wallet)
	if err != nil {
		return fmt.Errorf("read stake: %w", err)
	}

	return e.store.UpsertStake(ctx, &models.AgentStake{
		Wallet:      strings.ToLower(wallet.Hex()),
		Amount:      amount.String(),
		Tier:        protocol.TierForStake(amount),
		RefreshedAt: e.now(),
	})
}

// refreshStaleStakes is the safety net behind event-driven updates: any
// snapshot older than the TTL is re-read, in bounded batches so one tick
// never drags.
func (e *Engine) refreshStaleStakes(ctx context.Context, sum *Summary) {
	cutoff := e.now().Add(-e.cfg.StaleStakeTTL)
	wallets, err := e.store.StaleStakes(ctx, cutoff, e.cfg.StaleStakeBatch)
	if err != nil {
		slog.Warn("stale stake query failed", "err", err)
		sum.Errors++
		return
	}

	for _, w := range wallets {
		if !common.IsHexAddress(w) {
			slog.Warn("stored stake wallet is not an address", "wallet", w)
			sum.Errors++
			continue
		}
		if err := e.refreshStake(ctx, common.HexToAddress(w)); err != nil {
			slog.Warn("stale stake refresh failed", "wallet", w, "err", err)
			sum.Errors++
			continue
		}
		sum.StaleRefreshed++
	}
}
