package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Field is the closed enumeration of block attributes a challenge may ask
// about.
type Field string

const (
	FieldHash       Field = "hash"
	FieldParentHash Field = "parenthash"
	FieldTimestamp  Field = "timestamp"
	FieldGasUsed    Field = "gasused"
	FieldTxCount    Field = "txcount"
	FieldFirstTx    Field = "firsttx"
	FieldMiner      Field = "miner"
	FieldBaseFee    Field = "basefee"
	FieldState      Field = "state"
)

// Challenge is a parsed question descriptor: which finalized block to
// inspect and which attribute of it to answer with. State challenges also
// carry a contract address and storage slot.
type Challenge struct {
	BlockNumber uint64
	Field       Field
	Contract    common.Address
	Slot        common.Hash
}

// ParseChallenge decodes the oracle's question wire format:
//
//	block:<number>:<field>
//	state:<number>:<address>:<slot>
//
// Field names are matched case-insensitively; everything else is exact.
// This is the only place question text is interpreted.
func ParseChallenge(question string) (*Challenge, error) {
	parts := strings.Split(strings.TrimSpace(question), ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed challenge %q", question)
	}

	switch parts[0] {
	case "block":
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed block challenge %q", question)
		}
		number, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad block number in challenge %q: %w", question, err)
		}
		field := Field(strings.ToLower(parts[2]))
		switch field {
		case FieldHash, FieldParentHash, FieldTimestamp, FieldGasUsed,
			FieldTxCount, FieldFirstTx, FieldMiner, FieldBaseFee:
		default:
			return nil, fmt.Errorf("unknown challenge field %q", parts[2])
		}
		return &Challenge{BlockNumber: number, Field: field}, nil

	case "state":
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed state challenge %q", question)
		}
		number, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad block number in challenge %q: %w", question, err)
		}
		if !common.IsHexAddress(parts[2]) {
			return nil, fmt.Errorf("bad contract address in challenge %q", question)
		}
		return &Challenge{
			BlockNumber: number,
			Field:       FieldState,
			Contract:    common.HexToAddress(parts[2]),
			Slot:        common.HexToHash(parts[3]),
		}, nil

	default:
		return nil, fmt.Errorf("unknown challenge kind %q", parts[0])
	}
}
