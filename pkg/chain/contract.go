package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// call packs a view-method call, executes it against a healthy endpoint and
// returns the decoded output values. This is the single typed decoding
// boundary between the contracts and the rest of the system.
func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var raw []byte
	err = c.do(ctx, func(ec *ethclient.Client) error {
		var callErr error
		raw, callErr = ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func asUint64(v any) (uint64, error) {
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("expected uint64, got %T", v)
	}
	return n, nil
}

func asHash(v any) (common.Hash, error) {
	b, ok := v.([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("expected bytes32, got %T", v)
	}
	return common.Hash(b), nil
}

// RoundCount returns the number of rounds the contract has ever opened.
func (c *Client) RoundCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.mining, miningABI, "roundCount")
	if err != nil {
		return 0, err
	}
	return asUint64(out[0])
}

// RoundByID reads the full on-chain state of one round.
func (c *Client) RoundByID(ctx context.Context, id uint64) (*Round, error) {
	out, err := c.call(ctx, c.mining, miningABI, "rounds", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 10 {
		return nil, fmt.Errorf("rounds: expected 10 outputs, got %d", len(out))
	}

	r := &Round{ID: id}
	if r.EpochID, err = asUint64(out[0]); err != nil {
		return nil, err
	}
	openAt, err := asUint64(out[1])
	if err != nil {
		return nil, err
	}
	commitClose, err := asUint64(out[2])
	if err != nil {
		return nil, err
	}
	revealClose, err := asUint64(out[3])
	if err != nil {
		return nil, err
	}
	r.CommitOpenAt = int64(openAt)
	r.CommitCloseAt = int64(commitClose)
	r.RevealCloseAt = int64(revealClose)
	if r.AnswerHash, err = asHash(out[4]); err != nil {
		return nil, err
	}
	if r.QuestionID, err = asUint64(out[5]); err != nil {
		return nil, err
	}
	var ok bool
	if r.Settled, ok = out[6].(bool); !ok {
		return nil, fmt.Errorf("rounds: expected bool settled, got %T", out[6])
	}
	if r.Expired, ok = out[7].(bool); !ok {
		return nil, fmt.Errorf("rounds: expected bool expired, got %T", out[7])
	}
	if r.Answer, ok = out[8].(string); !ok {
		return nil, fmt.Errorf("rounds: expected string answer, got %T", out[8])
	}
	if r.CorrectCount, err = asUint64(out[9]); err != nil {
		return nil, err
	}
	return r, nil
}

// CurrentEpochID returns the epoch currently accepting rounds.
func (c *Client) CurrentEpochID(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.mining, miningABI, "currentEpochId")
	if err != nil {
		return 0, err
	}
	return asUint64(out[0])
}

// EpochByID reads the state of one epoch.
func (c *Client) EpochByID(ctx context.Context, id uint64) (*Epoch, error) {
	out, err := c.call(ctx, c.mining, miningABI, "epochs", id)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("epochs: expected 3 outputs, got %d", len(out))
	}
	e := &Epoch{ID: id}
	if e.StartRound, err = asUint64(out[0]); err != nil {
		return nil, err
	}
	if e.EndRound, err = asUint64(out[1]); err != nil {
		return nil, err
	}
	pool, ok := out[2].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("epochs: expected uint256 rewardPool, got %T", out[2])
	}
	e.RewardPool = pool
	return e, nil
}

// InscriptionContent returns the revealed plaintext of an inscription, empty
// if not yet revealed.
func (c *Client) InscriptionContent(ctx context.Context, id uint64) (string, error) {
	out, err := c.call(ctx, c.mining, miningABI, "inscriptionContent", id)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("inscriptionContent: expected string, got %T", out[0])
	}
	return s, nil
}

// InscriptionRound returns the round an inscription belongs to.
func (c *Client) InscriptionRound(ctx context.Context, id uint64) (uint64, error) {
	out, err := c.call(ctx, c.mining, miningABI, "inscriptionRound", id)
	if err != nil {
		return 0, err
	}
	return asUint64(out[0])
}

// InscriptionAgent returns the wallet that authored an inscription.
func (c *Client) InscriptionAgent(ctx context.Context, id uint64) (common.Address, error) {
	out, err := c.call(ctx, c.mining, miningABI, "inscriptionAgent", id)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("inscriptionAgent: expected address, got %T", out[0])
	}
	return addr, nil
}

// InscriptionCount returns the total number of inscriptions ever committed.
func (c *Client) InscriptionCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.mining, miningABI, "inscriptionCount")
	if err != nil {
		return 0, err
	}
	return asUint64(out[0])
}

// InscriptionRevealTime returns the unix time an inscription was revealed,
// zero if still hidden.
func (c *Client) InscriptionRevealTime(ctx context.Context, id uint64) (uint64, error) {
	out, err := c.call(ctx, c.mining, miningABI, "inscriptionRevealTime", id)
	if err != nil {
		return 0, err
	}
	return asUint64(out[0])
}

// ProofChainHead returns the wallet's current proof-chain head, the zero
// hash if the wallet has never committed.
func (c *Client) ProofChainHead(ctx context.Context, wallet common.Address) (common.Hash, error) {
	out, err := c.call(ctx, c.mining, miningABI, "proofChainHead", wallet)
	if err != nil {
		return common.Hash{}, err
	}
	return asHash(out[0])
}

// StakeOf returns the wallet's currently staked amount.
func (c *Client) StakeOf(ctx context.Context, wallet common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.staking, stakingABI, "stakedBalance", wallet)
	if err != nil {
		return nil, err
	}
	amt, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("stakedBalance: expected uint256, got %T", out[0])
	}
	return amt, nil
}

// IsStaked reports whether the wallet has any active stake.
func (c *Client) IsStaked(ctx context.Context, wallet common.Address) (bool, error) {
	out, err := c.call(ctx, c.staking, stakingABI, "isStaked", wallet)
	if err != nil {
		return false, err
	}
	b, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("isStaked: expected bool, got %T", out[0])
	}
	return b, nil
}

// TokenBalance returns the wallet's liquid token balance.
func (c *Client) TokenBalance(ctx context.Context, wallet common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.token, erc20ABI, "balanceOf", wallet)
	if err != nil {
		return nil, err
	}
	amt, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: expected uint256, got %T", out[0])
	}
	return amt, nil
}

// TokenAllowance returns the owner's token allowance toward spender.
func (c *Client) TokenAllowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	amt, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance: expected uint256, got %T", out[0])
	}
	return amt, nil
}

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.do(ctx, func(ec *ethclient.Client) error {
		var callErr error
		n, callErr = ec.BlockNumber(ctx)
		return callErr
	})
	return n, err
}

// HeaderByNumber returns the header at the given block number.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var h *types.Header
	err := c.do(ctx, func(ec *ethclient.Client) error {
		var callErr error
		h, callErr = ec.HeaderByNumber(ctx, number)
		return callErr
	})
	return h, err
}

// BlockByNumber returns the block at the given number with full transaction
// bodies.
func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	var b *types.Block
	err := c.do(ctx, func(ec *ethclient.Client) error {
		var callErr error
		b, callErr = ec.BlockByNumber(ctx, number)
		return callErr
	})
	return b, err
}

// StorageAt returns the contract storage slot value at the given block.
func (c *Client) StorageAt(ctx context.Context, account common.Address, slot common.Hash, number *big.Int) ([]byte, error) {
	var v []byte
	err := c.do(ctx, func(ec *ethclient.Client) error {
		var callErr error
		v, callErr = ec.StorageAt(ctx, account, slot, number)
		return callErr
	})
	return v, err
}
