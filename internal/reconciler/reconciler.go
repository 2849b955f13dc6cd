package reconciler

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
	"github.com/ethereum/go-ethereum/common"
)

// ChainReader is the read-only chain surface the engine reconciles against.
// The chain is always authoritative; the mirror is a cache.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	RoundCount(ctx context.Context) (uint64, error)
	RoundByID(ctx context.Context, id uint64) (*chain.Round, error)
	InscriptionContent(ctx context.Context, id uint64) (string, error)
	InscriptionRevealTime(ctx context.Context, id uint64) (uint64, error)
	InscriptionRound(ctx context.Context, id uint64) (uint64, error)
	InscriptionAgent(ctx context.Context, id uint64) (common.Address, error)
	StakeOf(ctx context.Context, wallet common.Address) (*big.Int, error)
	FilterCommits(ctx context.Context, from, to uint64) ([]chain.CommitEvent, error)
	FilterStakeTransfers(ctx context.Context, from, to uint64) ([]chain.Transfer, error)
	StakingContract() common.Address
}

// Store is the Mirror Store surface the engine writes through. Every write
// is an idempotent upsert keyed by a natural identifier.
type Store interface {
	MaxRoundID(ctx context.Context) (uint64, error)
	UpsertRound(ctx context.Context, r *models.Round) error
	UnsettledRounds(ctx context.Context) ([]models.Round, error)
	InsertInscription(ctx context.Context, ins *models.Inscription) (bool, error)
	InscriptionExists(ctx context.Context, id uint64) (bool, error)
	MarkRevealed(ctx context.Context, id uint64, content string) error
	GradeInscription(ctx context.Context, id uint64, correct bool) error
	UngradedRevealed(ctx context.Context, roundID uint64) ([]models.Inscription, error)
	UnrevealedByRound(ctx context.Context, roundID uint64) ([]models.Inscription, error)
	UpsertStake(ctx context.Context, stake *models.AgentStake) error
	StaleStakes(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// Config holds the engine's named scan policies. The scan window plus
// overlap is deliberately generous: overlapping ranges between ticks are
// absorbed by insert-or-ignore, never by a watermark that a short reorg
// could skip past.
type Config struct {
	OracleWallet    common.Address
	ScanWindow      uint64        // blocks scanned per tick
	ScanOverlap     uint64        // extra trailing blocks re-scanned each tick
	StaleStakeTTL   time.Duration // snapshot age before a background refresh
	StaleStakeBatch int           // stale refreshes per tick
}

// DefaultConfig returns the engine's default scan policies.
func DefaultConfig() Config {
	return Config{
		ScanWindow:      600,
		ScanOverlap:     120,
		StaleStakeTTL:   30 * time.Minute,
		StaleStakeBatch: 25,
	}
}

// Summary reports what one tick did. Per-item failures are counted, not
// raised; only a catastrophic failure (mirror unreachable) fails a tick.
type Summary struct {
	RoundsDiscovered int   `json:"rounds_discovered"`
	RoundsRefreshed  int   `json:"rounds_refreshed"`
	CommitsInserted  int   `json:"commits_inserted"`
	CommitsSkipped   int   `json:"commits_skipped"`
	RevealsRecorded  int   `json:"reveals_recorded"`
	Graded           int   `json:"inscriptions_graded"`
	StakesRefreshed  int   `json:"stakes_refreshed"`
	StaleRefreshed   int   `json:"stale_stakes_refreshed"`
	Errors           int   `json:"errors"`
	DurationMs       int64 `json:"duration_ms"`
}

// Engine keeps the Mirror Store eventually consistent with chain state.
// Invocations are stateless and idempotent, so overlapping ticks only do
// redundant work.
type Engine struct {
	chain ChainReader
	store Store
	cfg   Config
	now   func() time.Time
}

// New creates an Engine.
func New(chainReader ChainReader, store Store, cfg Config) *Engine {
	if cfg.ScanWindow == 0 {
		cfg.ScanWindow = DefaultConfig().ScanWindow
	}
	if cfg.ScanOverlap == 0 {
		cfg.ScanOverlap = DefaultConfig().ScanOverlap
	}
	if cfg.StaleStakeBatch == 0 {
		cfg.StaleStakeBatch = DefaultConfig().StaleStakeBatch
	}
	if cfg.StaleStakeTTL == 0 {
		cfg.StaleStakeTTL = DefaultConfig().StaleStakeTTL
	}
	return &Engine{
		chain: chainReader,
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Tick runs one full reconciliation pass. Round discovery runs before
// active-round refresh so the refresh sees rows discovery just inserted.
func (e *Engine) Tick(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}

	if err := e.discoverRounds(ctx, sum); err != nil {
		return nil, err
	}

	head, err := e.chain.BlockNumber(ctx)
	if err != nil {
		slog.Warn("chain head unavailable, skipping log scans", "err", err)
		sum.Errors++
	} else {
		from := uint64(0)
		if span := e.cfg.ScanWindow + e.cfg.ScanOverlap; head > span {
			from = head - span
		}
		e.scanCommits(ctx, from, head, sum)
		e.scanStakeTransfers(ctx, from, head, sum)
	}

	e.refreshActiveRounds(ctx, sum)
	e.refreshStaleStakes(ctx, sum)

	sum.DurationMs = time.Since(start).Milliseconds()
	slog.Info("reconciliation tick complete",
		"rounds_discovered", sum.RoundsDiscovered,
		"rounds_refreshed", sum.RoundsRefreshed,
		"commits_inserted", sum.CommitsInserted,
		"commits_skipped", sum.CommitsSkipped,
		"reveals_recorded", sum.RevealsRecorded,
		"graded", sum.Graded,
		"stakes_refreshed", sum.StakesRefreshed,
		"stale_refreshed", sum.StaleRefreshed,
		"errors", sum.Errors,
		"duration_ms", sum.DurationMs,
	)
	return sum, nil
}

// ScanRange re-runs commit and stake discovery over an explicit block range,
// used by the resync CLI. Idempotent like the tick scans.
func (e *Engine) ScanRange(ctx context.Context, from, to uint64) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}
	e.scanCommits(ctx, from, to, sum)
	e.scanStakeTransfers(ctx, from, to, sum)
	sum.DurationMs = time.Since(start).Milliseconds()
	return sum, nil
}

// SyncRounds force-refreshes specific rounds from chain state, used by the
// resync CLI. Terminal rounds stay immutable in the mirror regardless.
func (e *Engine) SyncRounds(ctx context.Context, ids []uint64) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}
	for _, id := range ids {
		posted, err := e.syncRound(ctx, id, nil)
		if err != nil {
			slog.Warn("round resync failed", "round_id", id, "err", err)
			sum.Errors++
			continue
		}
		if posted {
			sum.RoundsRefreshed++
		}
	}
	sum.DurationMs = time.Since(start).Milliseconds()
	return sum, nil
}
