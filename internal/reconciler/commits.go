package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
	"github.com/agentmine-network/agentmine-indexer/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// scanCommits discovers new participant commits in [from, to]. The range
// intentionally overlaps earlier ticks; duplicates surface as skips from the
// insert-or-ignore, never as errors.
func (e *Engine) scanCommits(ctx context.Context, from, to uint64, sum *Summary) {
	events, err := e.chain.FilterCommits(ctx, from, to)
	if err != nil {
		slog.Warn("commit scan failed", "from", from, "to", to, "err", err)
		sum.Errors++
		return
	}

	for _, ev := range events {
		inserted, skipped, err := e.recordCommit(ctx, ev)
		if err != nil {
			slog.Warn("record commit failed",
				"inscription_id", ev.InscriptionID,
				"tx", ev.TxHash.Hex(),
				"err", err,
			)
			sum.Errors++
			continue
		}
		if inserted {
			sum.CommitsInserted++
		} else if skipped {
			sum.CommitsSkipped++
		}
	}
}

// recordCommit mirrors one commit event. Non-mining block types and the
// oracle's own question postings are ignored outright (not counted as
// skips). Round linkage and authoring wallet are independent contract reads
// and are resolved concurrently.
func (e *Engine) recordCommit(ctx context.Context, ev chain.CommitEvent) (inserted, skipped bool, err error) {
	if ev.BlockType != protocol.BlockTypeMine {
		return false, false, nil
	}

	exists, err := e.store.InscriptionExists(ctx, ev.InscriptionID)
	if err != nil {
		return false, false, fmt.Errorf("existence check: %w", err)
	}
	if exists {
		return false, true, nil
	}

	var (
		roundID uint64
		wallet  common.Address
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var gErr error
		roundID, gErr = e.chain.InscriptionRound(gCtx, ev.InscriptionID)
		return gErr
	})
	g.Go(func() error {
		var gErr error
		wallet, gErr = e.chain.InscriptionAgent(gCtx, ev.InscriptionID)
		return gErr
	})
	if err := g.Wait(); err != nil {
		return false, false, fmt.Errorf("resolve linkage: %w", err)
	}

	if wallet == e.cfg.OracleWallet {
		return false, false, nil
	}

	ins := &models.Inscription{
		InscriptionID: ev.InscriptionID,
		RoundID:       roundID,
		AgentID:       ev.AgentID,
		Wallet:        strings.ToLower(wallet.Hex()),
		BlockType:     ev.BlockType,
		Summary:       ev.Summary,
		ContentHash:   strings.ToLower(ev.ContentHash.Hex()),
		ProofHash:     strings.ToLower(ev.ProofHash.Hex()),
		PrevHash:      strings.ToLower(ev.PrevHash.Hex()),
		CycleCount:    ev.CycleCount,
		TxHash:        strings.ToLower(ev.TxHash.Hex()),
		BlockNumber:   ev.BlockNumber,
	}

	inserted, err = e.store.InsertInscription(ctx, ins)
	if err != nil {
		return false, false, fmt.Errorf("insert inscription: %w", err)
	}
	return inserted, !inserted, nil
}
