package reconciler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
)

// refreshActiveRounds re-fetches every round the mirror still considers
// open. Reveal probing runs before grading so a reveal that landed outside
// the event scans is graded in the same tick. The settlement flag is only
// written once grading completed cleanly; a partially graded round stays in
// the active set and is finished on the next tick.
func (e *Engine) refreshActiveRounds(ctx context.Context, sum *Summary) {
	rounds, err := e.store.UnsettledRounds(ctx)
	if err != nil {
		slog.Warn("unsettled rounds query failed", "err", err)
		sum.Errors++
		return
	}

	for _, local := range rounds {
		cr, err := e.chain.RoundByID(ctx, local.RoundID)
		if err != nil {
			slog.Warn("round refresh fetch failed", "round_id", local.RoundID, "err", err)
			sum.Errors++
			continue
		}

		e.probeReveals(ctx, local.RoundID, sum)

		if cr.Settled {
			if !e.gradeRound(ctx, cr, sum) {
				slog.Warn("grading incomplete, deferring settlement flag", "round_id", local.RoundID)
				continue
			}
		}

		if _, err := e.syncRound(ctx, local.RoundID, local.Question); err != nil {
			slog.Warn("round refresh upsert failed", "round_id", local.RoundID, "err", err)
			sum.Errors++
			continue
		}
		sum.RoundsRefreshed++
	}
}

// probeReveals checks every not-yet-revealed inscription of a round for a
// reveal that landed out of band of the event scans.
func (e *Engine) probeReveals(ctx context.Context, roundID uint64, sum *Summary) {
	pending, err := e.store.UnrevealedByRound(ctx, roundID)
	if err != nil {
		slog.Warn("unrevealed query failed", "round_id", roundID, "err", err)
		sum.Errors++
		return
	}

	for _, ins := range pending {
		revealTime, err := e.chain.InscriptionRevealTime(ctx, ins.InscriptionID)
		if err != nil {
			sum.Errors++
			continue
		}
		if revealTime == 0 {
			continue
		}

		content, err := e.chain.InscriptionContent(ctx, ins.InscriptionID)
		if err != nil {
			sum.Errors++
			continue
		}
		if err := e.store.MarkRevealed(ctx, ins.InscriptionID, content); err != nil {
			sum.Errors++
			continue
		}
		sum.RevealsRecorded++
	}
}

// gradeRound marks every revealed, ungraded inscription of a settled round
// correct or incorrect by trimmed exact comparison against the revealed
// canonical answer. Returns false if any item failed.
func (e *Engine) gradeRound(ctx context.Context, r *chain.Round, sum *Summary) bool {
	// Settlement always reveals the canonical answer in the same contract
	// write. A settled round without one is inconsistent node state, so the
	// settlement flag is held back and grading retried on a later tick
	// rather than settling the mirror with permanently ungraded rows.
	if r.Answer == "" {
		slog.Warn("settled round has no answer, deferring grading", "round_id", r.ID)
		sum.Errors++
		return false
	}
	want := strings.TrimSpace(r.Answer)

	ungraded, err := e.store.UngradedRevealed(ctx, r.ID)
	if err != nil {
		slog.Warn("ungraded query failed", "round_id", r.ID, "err", err)
		sum.Errors++
		return false
	}

	clean := true
	for _, ins := range ungraded {
		if ins.Content == nil {
			continue
		}
		correct := strings.TrimSpace(*ins.Content) == want
		if err := e.store.GradeInscription(ctx, ins.InscriptionID, correct); err != nil {
			slog.Warn("grade failed", "inscription_id", ins.InscriptionID, "err", err)
			sum.Errors++
			clean = false
			continue
		}
		sum.Graded++
	}
	return clean
}
