package models

import "time"

const InscriptionsTableName = "inscriptions"

// Inscription is one participant commit (and optional reveal) for a round.
// Content is set only after a reveal is observed; Correct only after the
// owning round settles. Rows are never deleted, and re-observation of the
// same inscription id is an insert-or-ignore no-op.
type Inscription struct {
	InscriptionID uint64    `json:"inscription_id" db:"inscription_id"`
	RoundID       uint64    `json:"round_id" db:"round_id"`
	AgentID       uint64    `json:"agent_id" db:"agent_id"`
	Wallet        string    `json:"wallet" db:"wallet"`
	BlockType     string    `json:"block_type" db:"block_type"`
	Summary       string    `json:"summary" db:"summary"`
	ContentHash   string    `json:"content_hash" db:"content_hash"`
	ProofHash     string    `json:"proof_hash" db:"proof_hash"`
	PrevHash      string    `json:"prev_hash" db:"prev_hash"`
	CycleCount    uint64    `json:"cycle_count" db:"cycle_count"`
	Revealed      bool      `json:"revealed" db:"revealed"`
	Content       *string   `json:"content,omitempty" db:"content"`
	Correct       *bool     `json:"correct,omitempty" db:"correct"`
	TxHash        string    `json:"tx_hash" db:"tx_hash"`
	BlockNumber   uint64    `json:"block_number" db:"block_number"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
