package models

import "time"

const RoundsTableName = "rounds"

// Round is the mirrored state of one 10-minute mining round. Once settled or
// expired the row is immutable; later upserts become no-ops.
type Round struct {
	RoundID       uint64    `json:"round_id" db:"round_id"`
	EpochID       uint64    `json:"epoch_id" db:"epoch_id"`
	CommitOpenAt  int64     `json:"commit_open_at" db:"commit_open_at"`
	CommitCloseAt int64     `json:"commit_close_at" db:"commit_close_at"`
	RevealCloseAt int64     `json:"reveal_close_at" db:"reveal_close_at"`
	AnswerHash    string    `json:"answer_hash" db:"answer_hash"`
	QuestionID    uint64    `json:"question_id" db:"question_id"`
	Settled       bool      `json:"settled" db:"settled"`
	Expired       bool      `json:"expired" db:"expired"`
	Answer        *string   `json:"answer,omitempty" db:"answer"`
	CorrectCount  uint64    `json:"correct_count" db:"correct_count"`
	Question      *string   `json:"question,omitempty" db:"question"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
