package calldata

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	miningAddr = common.HexToAddress("0x0000000000000000000000000000000000000C0F")
	miner      = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	minerHex   = "0x00000000000000000000000000000000000000bb"
)

type fakeChain struct {
	rounds    map[uint64]*chain.Round
	contents  map[uint64]string
	reveals   map[uint64]uint64
	insCount  uint64
	insRounds map[uint64]uint64
	insAgents map[uint64]common.Address
	stakes    map[common.Address]*big.Int
	heads     map[common.Address]common.Hash
	headers   map[uint64]*types.Header
	blocks    map[uint64]*types.Block
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		rounds:    map[uint64]*chain.Round{},
		contents:  map[uint64]string{},
		reveals:   map[uint64]uint64{},
		insRounds: map[uint64]uint64{},
		insAgents: map[uint64]common.Address{},
		stakes:    map[common.Address]*big.Int{},
		heads:     map[common.Address]common.Hash{},
		headers:   map[uint64]*types.Header{},
		blocks:    map[uint64]*types.Block{},
	}
}

func (f *fakeChain) RoundCount(context.Context) (uint64, error) {
	var max uint64
	for id := range f.rounds {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeChain) RoundByID(_ context.Context, id uint64) (*chain.Round, error) {
	r, ok := f.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %d unknown", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeChain) InscriptionCount(context.Context) (uint64, error) { return f.insCount, nil }

func (f *fakeChain) InscriptionRound(_ context.Context, id uint64) (uint64, error) {
	return f.insRounds[id], nil
}

func (f *fakeChain) InscriptionAgent(_ context.Context, id uint64) (common.Address, error) {
	return f.insAgents[id], nil
}

func (f *fakeChain) InscriptionRevealTime(_ context.Context, id uint64) (uint64, error) {
	return f.reveals[id], nil
}

func (f *fakeChain) InscriptionContent(_ context.Context, id uint64) (string, error) {
	return f.contents[id], nil
}

func (f *fakeChain) ProofChainHead(_ context.Context, wallet common.Address) (common.Hash, error) {
	return f.heads[wallet], nil
}

func (f *fakeChain) StakeOf(_ context.Context, wallet common.Address) (*big.Int, error) {
	if amt, ok := f.stakes[wallet]; ok {
		return amt, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	h, ok := f.headers[number.Uint64()]
	if !ok {
		return nil, fmt.Errorf("header %s unknown", number)
	}
	return h, nil
}

func (f *fakeChain) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	b, ok := f.blocks[number.Uint64()]
	if !ok {
		return nil, fmt.Errorf("block %s unknown", number)
	}
	return b, nil
}

func (f *fakeChain) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	return make([]byte, 32), nil
}

func (f *fakeChain) MiningContract() common.Address { return miningAddr }
func (f *fakeChain) ChainID() uint64                { return 31337 }

func (f *fakeChain) stakeMiner() {
	f.stakes[miner] = protocol.MinStake
}

// addRound installs a round with commit open 1000..1600 and reveal close
// 2200, question inscription id 9000+id.
func (f *fakeChain) addRound(id uint64, settled, expired bool) *chain.Round {
	r := &chain.Round{
		ID:            id,
		EpochID:       1,
		CommitOpenAt:  1000,
		CommitCloseAt: 1600,
		RevealCloseAt: 2200,
		QuestionID:    9000 + id,
		Settled:       settled,
		Expired:       expired,
	}
	f.rounds[id] = r
	return r
}

func (f *fakeChain) revealQuestion(r *chain.Round, question string) {
	f.reveals[r.QuestionID] = uint64(r.CommitOpenAt + 1)
	f.contents[r.QuestionID] = question
}

func newService(f *fakeChain, now int64) *Service {
	return New(f, DefaultConfig(), func() int64 { return now })
}

func TestDeriveRejectsBadWallet(t *testing.T) {
	_, err := newService(newFakeChain(), 1500).Derive(context.Background(), "not-an-address", 0)
	assert.ErrorIs(t, err, ErrBadWallet)
}

func TestDeriveStakeGateRunsFirst(t *testing.T) {
	f := newFakeChain()
	f.stakes[miner] = new(big.Int).Sub(protocol.MinStake, big.NewInt(1))

	_, err := newService(f, 1500).Derive(context.Background(), minerHex, 0)
	assert.ErrorIs(t, err, ErrInsufficientStake)
}

func TestDeriveUnknownRound(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	f.addRound(1, false, false)

	_, err := newService(f, 1500).Derive(context.Background(), minerHex, 99)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestDeriveUnpostedRoundIsNotFound(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	f.addRound(1, false, false)
	f.rounds[2] = &chain.Round{ID: 2} // slot exists, oracle has not posted

	_, err := newService(f, 1500).Derive(context.Background(), minerHex, 2)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestDeriveNoActionNeeded(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	f.addRound(1, true, false) // settled, no open window anywhere

	res, err := newService(f, 5000).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)
	assert.Zero(t, res.RoundID)
	assert.Nil(t, res.Commit)
	assert.Nil(t, res.Reveal)
	assert.Contains(t, res.Status, "nothing to do")
}

func TestDeriveQuestionNotRevealed(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	f.addRound(1, false, false) // question inscription still hidden

	res, err := newService(f, 1500).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), res.RoundID)
	assert.True(t, res.InCommit)
	assert.Nil(t, res.Commit)
	assert.Nil(t, res.Question)
	assert.Nil(t, res.Answer)
	assert.Contains(t, res.Status, "not yet revealed")
}

func TestDeriveUnresolvableAnswerIsTerminalNotError(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	r := f.addRound(1, false, false)
	f.revealQuestion(r, "block:100:firsttx")
	f.blocks[100] = types.NewBlockWithHeader(&types.Header{Number: big.NewInt(100)}) // no transactions

	res, err := newService(f, 1500).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.True(t, res.InCommit)
	require.NotNil(t, res.Question)
	assert.Nil(t, res.Answer)
	assert.Nil(t, res.Commit)
	assert.Contains(t, res.Status, "not actionable")
}

func TestDeriveMalformedQuestionIsTerminalNotError(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	r := f.addRound(1, false, false)
	f.revealQuestion(r, "block:not-a-number:hash")

	res, err := newService(f, 1500).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.Nil(t, res.Answer)
	assert.Nil(t, res.Commit)
	assert.Contains(t, res.Status, "not actionable")
}

func TestDeriveCommitPayload(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	r := f.addRound(1, false, false)
	f.revealQuestion(r, "block:100:gasused")
	f.headers[100] = &types.Header{GasUsed: 8_500_000, Number: big.NewInt(100)}

	res, err := newService(f, 1500).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.True(t, res.InCommit)
	assert.False(t, res.InReveal)
	assert.Equal(t, int64(100), res.CommitSecondsLeft)
	require.NotNil(t, res.Question)
	assert.Equal(t, "block:100:gasused", *res.Question)
	require.NotNil(t, res.Answer)
	assert.Equal(t, "8500000", *res.Answer)

	wantSalt := protocol.DeriveSalt(1, miner)
	require.NotNil(t, res.Salt)
	assert.Equal(t, wantSalt.Hex(), *res.Salt)

	require.NotNil(t, res.Commit)
	assert.Nil(t, res.Reveal)
	assert.Equal(t, "0x0000000000000000000000000000000000000c0f", res.Commit.To)
	assert.Equal(t, "0", res.Commit.Value)
	assert.Equal(t, uint64(31337), res.Commit.ChainID)

	contentHash := protocol.ContentHash("8500000", wantSalt)
	proofHash := protocol.ProofHash(contentHash, protocol.ZeroHash)
	wantData, err := chain.PackCommit(1, protocol.BlockTypeMine, "mined round 1", contentHash, proofHash, protocol.ZeroHash, 1)
	require.NoError(t, err)
	assert.Equal(t, "0x"+common.Bytes2Hex(wantData), res.Commit.Data)
}

func TestDeriveRevealPayload(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	r := f.addRound(1, false, false)
	f.revealQuestion(r, "block:100:timestamp")
	f.headers[100] = &types.Header{Time: 1_700_000_000, Number: big.NewInt(100)}

	f.insCount = 3
	f.insRounds[2] = 1
	f.insAgents[2] = miner

	res, err := newService(f, 1700).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.True(t, res.InReveal)
	assert.Zero(t, res.CommitSecondsLeft)
	assert.Equal(t, int64(500), res.RevealSecondsLeft)
	require.NotNil(t, res.Answer)
	assert.Equal(t, "1700000000", *res.Answer)
	assert.Nil(t, res.Commit)
	require.NotNil(t, res.Reveal)

	wantData, err := chain.PackReveal(2, "1700000000", protocol.DeriveSalt(1, miner))
	require.NoError(t, err)
	assert.Equal(t, "0x"+common.Bytes2Hex(wantData), res.Reveal.Data)
}

func TestDeriveRevealAlreadyRevealed(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	r := f.addRound(1, false, false)
	f.revealQuestion(r, "block:100:timestamp")

	f.insCount = 2
	f.insRounds[2] = 1
	f.insAgents[2] = miner
	f.reveals[2] = 1650

	res, err := newService(f, 1700).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.Nil(t, res.Reveal)
	assert.Contains(t, res.Status, "already revealed")
}

func TestDeriveRevealNoCommitFound(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	r := f.addRound(1, false, false)
	f.revealQuestion(r, "block:100:timestamp")
	f.insCount = 1 // only the oracle's question inscription

	res, err := newService(f, 1700).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)

	assert.Nil(t, res.Reveal)
	assert.Contains(t, res.Status, "nothing to reveal")
}

func TestDeriveAutoSelectsMostRecentActive(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	f.addRound(1, true, false)
	f.addRound(2, false, false)
	later := f.addRound(3, false, false)
	later.CommitOpenAt = 1400
	later.CommitCloseAt = 2000
	later.RevealCloseAt = 2600
	f.rounds[4] = &chain.Round{ID: 4} // unposted slot is skipped

	res, err := newService(f, 1500).Derive(context.Background(), minerHex, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.RoundID)
	assert.True(t, res.InCommit)
}

func TestDeriveSettlingAwaitsOracle(t *testing.T) {
	f := newFakeChain()
	f.stakeMiner()
	f.addRound(1, false, false)

	res, err := newService(f, 3000).Derive(context.Background(), minerHex, 1)
	require.NoError(t, err)
	assert.Equal(t, protocol.PhaseSettling, res.Phase)
	assert.Nil(t, res.Commit)
	assert.Nil(t, res.Reveal)
	assert.Contains(t, res.Status, "awaiting oracle")
}
