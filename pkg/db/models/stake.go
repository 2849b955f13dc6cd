package models

import "time"

const StakesTableName = "agent_stakes"

// AgentStake is a wallet's staking tier snapshot. Amount is the raw staked
// balance in base token units, kept as a decimal string because it exceeds
// int64 range.
type AgentStake struct {
	Wallet      string    `json:"wallet" db:"wallet"`
	Amount      string    `json:"amount" db:"amount"`
	Tier        int16     `json:"tier" db:"tier"`
	RefreshedAt time.Time `json:"refreshed_at" db:"refreshed_at"`
}
