package protocol

import (
	"math/big"
	"time"
)

// Protocol timing constants. Three rounds are always in flight: one in its
// commit window, the previous in its reveal window, the one before that
// awaiting settlement.
const (
	RoundDuration = 10 * time.Minute
	EpochLength   = 140
)

// Block-type tags carried on inscriptions. Only "mine" inscriptions count as
// participant commits; the oracle posts questions under "question".
const (
	BlockTypeMine     = "mine"
	BlockTypeQuestion = "question"
)

// Stake tier thresholds in base token units (18 decimals). Inclusive lower
// bounds: a wallet staking exactly TierTwoStake is tier 2.
var (
	TierOneStake   = tokens(10_000)
	TierTwoStake   = tokens(50_000)
	TierThreeStake = tokens(250_000)

	// MinStake is the minimum staked amount required to participate.
	MinStake = TierOneStake
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// TierForStake maps a raw staked amount to its reward tier (0-3).
func TierForStake(amount *big.Int) int16 {
	if amount == nil {
		return 0
	}
	switch {
	case amount.Cmp(TierThreeStake) >= 0:
		return 3
	case amount.Cmp(TierTwoStake) >= 0:
		return 2
	case amount.Cmp(TierOneStake) >= 0:
		return 1
	default:
		return 0
	}
}
