package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
)

// discoverRounds pulls every round the chain knows about that the mirror
// does not yet. Only a Mirror Store failure is fatal; an unreachable chain
// skips discovery for this tick.
func (e *Engine) discoverRounds(ctx context.Context, sum *Summary) error {
	maxKnown, err := e.store.MaxRoundID(ctx)
	if err != nil {
		return fmt.Errorf("max round id: %w", err)
	}

	count, err := e.chain.RoundCount(ctx)
	if err != nil {
		slog.Warn("round count unavailable, skipping round discovery", "err", err)
		sum.Errors++
		return nil
	}

	for id := maxKnown + 1; id <= count; id++ {
		posted, err := e.syncRound(ctx, id, nil)
		if err != nil {
			slog.Warn("round discovery failed", "round_id", id, "err", err)
			sum.Errors++
			continue
		}
		if posted {
			sum.RoundsDiscovered++
		}
	}
	return nil
}

// syncRound fetches one round from the chain and upserts it. Rounds with a
// zero open timestamp are slots the oracle has not posted yet and are not
// mirrored. cachedQuestion carries question text already mirrored so it is
// not re-fetched on every refresh.
func (e *Engine) syncRound(ctx context.Context, id uint64, cachedQuestion *string) (bool, error) {
	r, err := e.chain.RoundByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("fetch round: %w", err)
	}
	if r.CommitOpenAt == 0 {
		return false, nil
	}

	model := roundModel(r)
	if cachedQuestion != nil {
		model.Question = cachedQuestion
	} else if question, qErr := e.questionText(ctx, r); qErr != nil {
		// Best effort: a failed question lookup leaves the text null for a
		// later tick.
		slog.Debug("question text unavailable", "round_id", id, "err", qErr)
	} else if question != "" {
		model.Question = &question
	}

	if err := e.store.UpsertRound(ctx, model); err != nil {
		return false, fmt.Errorf("upsert round: %w", err)
	}
	return true, nil
}

// questionText returns the oracle's question for a round, empty while the
// oracle has not revealed it.
func (e *Engine) questionText(ctx context.Context, r *chain.Round) (string, error) {
	if r.QuestionID == 0 {
		return "", nil
	}
	revealTime, err := e.chain.InscriptionRevealTime(ctx, r.QuestionID)
	if err != nil {
		return "", err
	}
	if revealTime == 0 {
		return "", nil
	}
	return e.chain.InscriptionContent(ctx, r.QuestionID)
}

func roundModel(r *chain.Round) *models.Round {
	m := &models.Round{
		RoundID:       r.ID,
		EpochID:       r.EpochID,
		CommitOpenAt:  r.CommitOpenAt,
		CommitCloseAt: r.CommitCloseAt,
		RevealCloseAt: r.RevealCloseAt,
		AnswerHash:    strings.ToLower(r.AnswerHash.Hex()),
		QuestionID:    r.QuestionID,
		Settled:       r.Settled,
		Expired:       r.Expired,
		CorrectCount:  r.CorrectCount,
	}
	if r.Settled && r.Answer != "" {
		answer := r.Answer
		m.Answer = &answer
	}
	return m
}
