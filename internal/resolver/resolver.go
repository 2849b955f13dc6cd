package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrUnresolvable marks a terminal resolution failure: no answer can ever be
// derived for this challenge (e.g. a first-transaction question about an
// empty block). Distinct from transient RPC failures, which callers may
// retry on a fixed backoff.
var ErrUnresolvable = errors.New("answer unresolvable")

// BlockReader is the subset of chain reads the resolver needs. Challenges
// only reference finalized blocks, so plain number lookups are sufficient.
type BlockReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	StorageAt(ctx context.Context, account common.Address, slot common.Hash, number *big.Int) ([]byte, error)
}

// Resolver derives the canonical answer string for a challenge, using the
// same normalization the oracle applies so a participant's reveal matches
// byte for byte.
type Resolver struct {
	chain BlockReader
}

// New creates a Resolver over the given chain reader.
func New(chain BlockReader) *Resolver {
	return &Resolver{chain: chain}
}

// Resolve computes the canonical answer for a challenge.
//
// Normalization is exact and case-sensitive: hex values are lowercase with a
// 0x prefix, numeric values are plain base-10 with no leading zeros. Any
// deviation would be rejected by the on-chain verifier.
func (r *Resolver) Resolve(ctx context.Context, ch *Challenge) (string, error) {
	if ch == nil {
		return "", fmt.Errorf("nil challenge")
	}
	number := new(big.Int).SetUint64(ch.BlockNumber)

	switch ch.Field {
	case FieldFirstTx:
		block, err := r.chain.BlockByNumber(ctx, number)
		if err != nil {
			return "", fmt.Errorf("fetch block %d: %w", ch.BlockNumber, err)
		}
		txs := block.Transactions()
		if len(txs) == 0 {
			return "", fmt.Errorf("block %d has no transactions: %w", ch.BlockNumber, ErrUnresolvable)
		}
		return hexHash(txs[0].Hash()), nil

	case FieldState:
		value, err := r.chain.StorageAt(ctx, ch.Contract, ch.Slot, number)
		if err != nil {
			return "", fmt.Errorf("read storage %s[%s] at %d: %w", ch.Contract, ch.Slot, ch.BlockNumber, err)
		}
		return "0x" + new(big.Int).SetBytes(value).Text(16), nil
	}

	header, err := r.chain.HeaderByNumber(ctx, number)
	if err != nil {
		return "", fmt.Errorf("fetch header %d: %w", ch.BlockNumber, err)
	}

	switch ch.Field {
	case FieldHash:
		return hexHash(header.Hash()), nil
	case FieldParentHash:
		return hexHash(header.ParentHash), nil
	case FieldTimestamp:
		return strconv.FormatUint(header.Time, 10), nil
	case FieldGasUsed:
		return strconv.FormatUint(header.GasUsed, 10), nil
	case FieldTxCount:
		// Header alone cannot answer this; needs the body.
		block, err := r.chain.BlockByNumber(ctx, number)
		if err != nil {
			return "", fmt.Errorf("fetch block %d: %w", ch.BlockNumber, err)
		}
		return strconv.Itoa(len(block.Transactions())), nil
	case FieldMiner:
		return hexAddress(header.Coinbase), nil
	case FieldBaseFee:
		if header.BaseFee == nil {
			return "", fmt.Errorf("block %d has no base fee: %w", ch.BlockNumber, ErrUnresolvable)
		}
		return header.BaseFee.String(), nil
	default:
		return "", fmt.Errorf("unknown challenge field %q", ch.Field)
	}
}

func hexHash(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

func hexAddress(a common.Address) string {
	// Address.Hex is EIP-55 checksummed; the verifier wants plain lowercase.
	return strings.ToLower(a.Hex())
}
