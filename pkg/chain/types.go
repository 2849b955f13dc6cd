package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Round is the on-chain state of one mining round, decoded from the mining
// contract's rounds() tuple. A zero CommitOpenAt means the round slot exists
// but the oracle has not posted it yet.
type Round struct {
	ID            uint64
	EpochID       uint64
	CommitOpenAt  int64
	CommitCloseAt int64
	RevealCloseAt int64
	AnswerHash    common.Hash
	QuestionID    uint64
	Settled       bool
	Expired       bool
	Answer        string
	CorrectCount  uint64
}

// Epoch is the on-chain state of one 140-round epoch.
type Epoch struct {
	ID         uint64
	StartRound uint64
	EndRound   uint64
	RewardPool *big.Int
}

// CommitEvent is one decoded InscriptionCommitted log.
type CommitEvent struct {
	AgentID       uint64
	InscriptionID uint64
	ContentHash   common.Hash
	ProofHash     common.Hash
	PrevHash      common.Hash
	BlockType     string
	Summary       string
	CycleCount    uint64
	TxHash        common.Hash
	BlockNumber   uint64
}

// Transfer is one decoded ERC-20 Transfer log on the protocol token.
type Transfer struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	BlockNumber uint64
}
