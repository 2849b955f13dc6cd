package reconciler

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"testing"
	"time"

	"github.com/agentmine-network/agentmine-indexer/pkg/chain"
	"github.com/agentmine-network/agentmine-indexer/pkg/db/models"
	"github.com/agentmine-network/agentmine-indexer/pkg/protocol"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	oracleWallet  = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	minerWallet   = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	stakingCtr    = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	anotherWallet = common.HexToAddress("0x00000000000000000000000000000000000000DD")
)

type fakeChain struct {
	head      uint64
	rounds    map[uint64]*chain.Round
	contents  map[uint64]string
	reveals   map[uint64]uint64
	insRounds map[uint64]uint64
	insAgents map[uint64]common.Address
	stakes    map[common.Address]*big.Int
	commits   []chain.CommitEvent
	transfers []chain.Transfer
	failRound map[uint64]bool

	scanFrom uint64
	scanTo   uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		rounds:    map[uint64]*chain.Round{},
		contents:  map[uint64]string{},
		reveals:   map[uint64]uint64{},
		insRounds: map[uint64]uint64{},
		insAgents: map[uint64]common.Address{},
		stakes:    map[common.Address]*big.Int{},
		failRound: map[uint64]bool{},
	}
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

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
	if f.failRound[id] {
		return nil, fmt.Errorf("rpc timeout")
	}
	r, ok := f.rounds[id]
	if !ok {
		return nil, fmt.Errorf("round %d unknown", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeChain) InscriptionContent(_ context.Context, id uint64) (string, error) {
	return f.contents[id], nil
}

func (f *fakeChain) InscriptionRevealTime(_ context.Context, id uint64) (uint64, error) {
	return f.reveals[id], nil
}

func (f *fakeChain) InscriptionRound(_ context.Context, id uint64) (uint64, error) {
	return f.insRounds[id], nil
}

func (f *fakeChain) InscriptionAgent(_ context.Context, id uint64) (common.Address, error) {
	return f.insAgents[id], nil
}

func (f *fakeChain) StakeOf(_ context.Context, wallet common.Address) (*big.Int, error) {
	if amt, ok := f.stakes[wallet]; ok {
		return amt, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeChain) FilterCommits(_ context.Context, from, to uint64) ([]chain.CommitEvent, error) {
	f.scanFrom, f.scanTo = from, to
	return f.commits, nil
}

func (f *fakeChain) FilterStakeTransfers(context.Context, uint64, uint64) ([]chain.Transfer, error) {
	return f.transfers, nil
}

func (f *fakeChain) StakingContract() common.Address { return stakingCtr }

type fakeStore struct {
	rounds       map[uint64]*models.Round
	inscriptions map[uint64]*models.Inscription
	stakes       map[string]*models.AgentStake
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rounds:       map[uint64]*models.Round{},
		inscriptions: map[uint64]*models.Inscription{},
		stakes:       map[string]*models.AgentStake{},
	}
}

func (f *fakeStore) MaxRoundID(context.Context) (uint64, error) {
	var max uint64
	for id := range f.rounds {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeStore) UpsertRound(_ context.Context, r *models.Round) error {
	if cur, ok := f.rounds[r.RoundID]; ok && (cur.Settled || cur.Expired) {
		return nil // terminal rounds are immutable
	}
	cp := *r
	f.rounds[r.RoundID] = &cp
	return nil
}

func (f *fakeStore) UnsettledRounds(context.Context) ([]models.Round, error) {
	var out []models.Round
	for _, r := range f.rounds {
		if !r.Settled && !r.Expired {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoundID < out[j].RoundID })
	return out, nil
}

func (f *fakeStore) InsertInscription(_ context.Context, ins *models.Inscription) (bool, error) {
	if _, ok := f.inscriptions[ins.InscriptionID]; ok {
		return false, nil
	}
	cp := *ins
	f.inscriptions[ins.InscriptionID] = &cp
	return true, nil
}

func (f *fakeStore) InscriptionExists(_ context.Context, id uint64) (bool, error) {
	_, ok := f.inscriptions[id]
	return ok, nil
}

func (f *fakeStore) MarkRevealed(_ context.Context, id uint64, content string) error {
	ins, ok := f.inscriptions[id]
	if !ok {
		return fmt.Errorf("inscription %d unknown", id)
	}
	ins.Revealed = true
	ins.Content = &content
	return nil
}

func (f *fakeStore) GradeInscription(_ context.Context, id uint64, correct bool) error {
	ins, ok := f.inscriptions[id]
	if !ok || !ins.Revealed {
		return fmt.Errorf("inscription %d not gradable", id)
	}
	ins.Correct = &correct
	return nil
}

func (f *fakeStore) UngradedRevealed(_ context.Context, roundID uint64) ([]models.Inscription, error) {
	var out []models.Inscription
	for _, ins := range f.inscriptions {
		if ins.RoundID == roundID && ins.Revealed && ins.Correct == nil {
			out = append(out, *ins)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InscriptionID < out[j].InscriptionID })
	return out, nil
}

func (f *fakeStore) UnrevealedByRound(_ context.Context, roundID uint64) ([]models.Inscription, error) {
	var out []models.Inscription
	for _, ins := range f.inscriptions {
		if ins.RoundID == roundID && !ins.Revealed {
			out = append(out, *ins)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InscriptionID < out[j].InscriptionID })
	return out, nil
}

func (f *fakeStore) UpsertStake(_ context.Context, stake *models.AgentStake) error {
	cp := *stake
	f.stakes[stake.Wallet] = &cp
	return nil
}

func (f *fakeStore) StaleStakes(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	var out []string
	for w, s := range f.stakes {
		if s.RefreshedAt.Before(olderThan) && len(out) < limit {
			out = append(out, w)
		}
	}
	return out, nil
}

func newEngine(fc *fakeChain, fs *fakeStore) *Engine {
	cfg := DefaultConfig()
	cfg.OracleWallet = oracleWallet
	return New(fc, fs, cfg)
}

func postedRound(id uint64, settled bool, answer string) *chain.Round {
	r := &chain.Round{
		ID:            id,
		EpochID:       (id-1)/protocol.EpochLength + 1,
		CommitOpenAt:  1000,
		CommitCloseAt: 1600,
		RevealCloseAt: 2200,
		QuestionID:    id * 100,
		Settled:       settled,
		Answer:        answer,
	}
	return r
}

func commitEvent(id uint64) chain.CommitEvent {
	return chain.CommitEvent{
		AgentID:       7,
		InscriptionID: id,
		ContentHash:   common.HexToHash("0x01"),
		ProofHash:     common.HexToHash("0x02"),
		PrevHash:      common.HexToHash("0x03"),
		BlockType:     protocol.BlockTypeMine,
		Summary:       "round answer commit",
		CycleCount:    1,
		BlockNumber:   500,
	}
}

func TestDiscoverRounds(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.rounds[1] = postedRound(1, false, "")
	fc.rounds[2] = postedRound(2, false, "")
	fc.rounds[3] = &chain.Round{ID: 3} // slot not posted yet

	sum := &Summary{}
	require.NoError(t, newEngine(fc, fs).discoverRounds(context.Background(), sum))

	assert.Equal(t, 2, sum.RoundsDiscovered)
	assert.Len(t, fs.rounds, 2)
	assert.NotContains(t, fs.rounds, uint64(3))
}

func TestDiscoverRoundsResolvesQuestion(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.rounds[1] = postedRound(1, false, "")
	fc.reveals[100] = 1050
	fc.contents[100] = "block:19000000:gasused"

	sum := &Summary{}
	require.NoError(t, newEngine(fc, fs).discoverRounds(context.Background(), sum))

	require.NotNil(t, fs.rounds[1].Question)
	assert.Equal(t, "block:19000000:gasused", *fs.rounds[1].Question)
}

func TestScanCommitsIdempotent(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	ev := commitEvent(11)
	fc.commits = []chain.CommitEvent{ev}
	fc.insRounds[11] = 1
	fc.insAgents[11] = minerWallet

	e := newEngine(fc, fs)

	sum := &Summary{}
	e.scanCommits(context.Background(), 0, 1000, sum)
	assert.Equal(t, 1, sum.CommitsInserted)
	assert.Equal(t, 0, sum.CommitsSkipped)
	assert.Equal(t, 0, sum.Errors)

	// Overlapping re-scan of the same events: a skip, not an error, and no
	// duplicate row.
	sum = &Summary{}
	e.scanCommits(context.Background(), 0, 1000, sum)
	assert.Equal(t, 0, sum.CommitsInserted)
	assert.Equal(t, 1, sum.CommitsSkipped)
	assert.Equal(t, 0, sum.Errors)
	assert.Len(t, fs.inscriptions, 1)
}

func TestScanCommitsIgnoresOracleAndOtherTags(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()

	oracleEv := commitEvent(21)
	fc.insAgents[21] = oracleWallet
	fc.insRounds[21] = 1

	taggedEv := commitEvent(22)
	taggedEv.BlockType = protocol.BlockTypeQuestion
	fc.insAgents[22] = minerWallet
	fc.insRounds[22] = 1

	fc.commits = []chain.CommitEvent{oracleEv, taggedEv}

	sum := &Summary{}
	newEngine(fc, fs).scanCommits(context.Background(), 0, 1000, sum)

	assert.Equal(t, 0, sum.CommitsInserted)
	assert.Equal(t, 0, sum.CommitsSkipped)
	assert.Equal(t, 0, sum.Errors)
	assert.Empty(t, fs.inscriptions)
}

func TestScanCommitsLowercasesWallet(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.commits = []chain.CommitEvent{commitEvent(31)}
	fc.insRounds[31] = 1
	fc.insAgents[31] = minerWallet

	sum := &Summary{}
	newEngine(fc, fs).scanCommits(context.Background(), 0, 1000, sum)

	require.Contains(t, fs.inscriptions, uint64(31))
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", fs.inscriptions[31].Wallet)
}

func TestStakeTransfersRefreshTiers(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.stakes[minerWallet] = protocol.TierTwoStake // exactly the threshold
	fc.stakes[anotherWallet] = big.NewInt(1)
	fc.transfers = []chain.Transfer{
		{From: minerWallet, To: stakingCtr, Value: big.NewInt(1)},
		{From: stakingCtr, To: minerWallet, Value: big.NewInt(1)}, // same counterparty twice
		{From: anotherWallet, To: stakingCtr, Value: big.NewInt(1)},
	}

	sum := &Summary{}
	newEngine(fc, fs).scanStakeTransfers(context.Background(), 0, 1000, sum)

	assert.Equal(t, 2, sum.StakesRefreshed)
	miner := fs.stakes["0x00000000000000000000000000000000000000bb"]
	require.NotNil(t, miner)
	assert.Equal(t, int16(2), miner.Tier)
	other := fs.stakes["0x00000000000000000000000000000000000000dd"]
	require.NotNil(t, other)
	assert.Equal(t, int16(0), other.Tier)
}

func TestRefreshGradesOnSettlement(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()

	fc.rounds[1] = postedRound(1, true, "12345678")
	fs.rounds[1] = &models.Round{RoundID: 1, EpochID: 1, CommitOpenAt: 1000, CommitCloseAt: 1600, RevealCloseAt: 2200}

	exact := "12345678"
	padded := "12345678 \n"
	wrong := "87654321"
	fs.inscriptions[1] = &models.Inscription{InscriptionID: 1, RoundID: 1, Wallet: "0xbb", Revealed: true, Content: &exact}
	fs.inscriptions[2] = &models.Inscription{InscriptionID: 2, RoundID: 1, Wallet: "0xcc", Revealed: true, Content: &padded}
	fs.inscriptions[3] = &models.Inscription{InscriptionID: 3, RoundID: 1, Wallet: "0xdd", Revealed: true, Content: &wrong}

	sum := &Summary{}
	newEngine(fc, fs).refreshActiveRounds(context.Background(), sum)

	assert.Equal(t, 3, sum.Graded)
	require.NotNil(t, fs.inscriptions[1].Correct)
	assert.True(t, *fs.inscriptions[1].Correct)
	// Trim applies to both sides: trailing whitespace is still correct.
	require.NotNil(t, fs.inscriptions[2].Correct)
	assert.True(t, *fs.inscriptions[2].Correct)
	require.NotNil(t, fs.inscriptions[3].Correct)
	assert.False(t, *fs.inscriptions[3].Correct)

	// The settlement flag landed after clean grading.
	assert.True(t, fs.rounds[1].Settled)
}

func TestRefreshDefersSettlementWithoutAnswer(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()

	fc.rounds[1] = postedRound(1, true, "") // settled but the answer read back empty
	fs.rounds[1] = &models.Round{RoundID: 1, CommitOpenAt: 1000, CommitCloseAt: 1600, RevealCloseAt: 2200}
	content := "42"
	fs.inscriptions[1] = &models.Inscription{InscriptionID: 1, RoundID: 1, Wallet: "0xbb", Revealed: true, Content: &content}

	sum := &Summary{}
	newEngine(fc, fs).refreshActiveRounds(context.Background(), sum)

	assert.Equal(t, 0, sum.Graded)
	assert.Equal(t, 1, sum.Errors)
	assert.False(t, fs.rounds[1].Settled)
	assert.Nil(t, fs.inscriptions[1].Correct)
}

func TestRefreshSkipsUnrevealedGrading(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()

	fc.rounds[1] = postedRound(1, true, "answer")
	fs.rounds[1] = &models.Round{RoundID: 1, CommitOpenAt: 1000, CommitCloseAt: 1600, RevealCloseAt: 2200}
	fs.inscriptions[1] = &models.Inscription{InscriptionID: 1, RoundID: 1, Wallet: "0xbb"}

	sum := &Summary{}
	newEngine(fc, fs).refreshActiveRounds(context.Background(), sum)

	assert.Equal(t, 0, sum.Graded)
	assert.Nil(t, fs.inscriptions[1].Correct)
}

func TestRefreshRecordsOutOfBandReveal(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()

	fc.rounds[1] = postedRound(1, false, "")
	fs.rounds[1] = &models.Round{RoundID: 1, CommitOpenAt: 1000, CommitCloseAt: 1600, RevealCloseAt: 2200}
	fs.inscriptions[5] = &models.Inscription{InscriptionID: 5, RoundID: 1, Wallet: "0xbb"}
	fc.reveals[5] = 1700
	fc.contents[5] = "late reveal"

	sum := &Summary{}
	newEngine(fc, fs).refreshActiveRounds(context.Background(), sum)

	assert.Equal(t, 1, sum.RevealsRecorded)
	assert.True(t, fs.inscriptions[5].Revealed)
	require.NotNil(t, fs.inscriptions[5].Content)
	assert.Equal(t, "late reveal", *fs.inscriptions[5].Content)
}

func TestRefreshIsolatesPerRoundErrors(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()

	fc.rounds[1] = postedRound(1, false, "")
	fc.rounds[2] = postedRound(2, false, "")
	fc.failRound[1] = true
	fs.rounds[1] = &models.Round{RoundID: 1, CommitOpenAt: 1000, CommitCloseAt: 1600, RevealCloseAt: 2200}
	fs.rounds[2] = &models.Round{RoundID: 2, CommitOpenAt: 1000, CommitCloseAt: 1600, RevealCloseAt: 2200}

	sum := &Summary{}
	newEngine(fc, fs).refreshActiveRounds(context.Background(), sum)

	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.RoundsRefreshed)
}

func TestStaleStakeSweep(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.stakes[minerWallet] = protocol.TierThreeStake

	stale := "0x00000000000000000000000000000000000000bb"
	fresh := "0x00000000000000000000000000000000000000dd"
	freshAt := time.Now()
	fs.stakes[stale] = &models.AgentStake{Wallet: stale, Amount: "0", Tier: 0, RefreshedAt: freshAt.Add(-time.Hour)}
	fs.stakes[fresh] = &models.AgentStake{Wallet: fresh, Amount: "7", Tier: 1, RefreshedAt: freshAt}

	sum := &Summary{}
	newEngine(fc, fs).refreshStaleStakes(context.Background(), sum)

	assert.Equal(t, 1, sum.StaleRefreshed)
	assert.Equal(t, 0, sum.Errors)

	// The stale snapshot was re-read from the chain and re-tiered.
	assert.Equal(t, int16(3), fs.stakes[stale].Tier)
	assert.Equal(t, protocol.TierThreeStake.String(), fs.stakes[stale].Amount)
	assert.True(t, fs.stakes[stale].RefreshedAt.After(freshAt.Add(-time.Minute)))

	// The fresh snapshot was not touched.
	assert.Equal(t, int16(1), fs.stakes[fresh].Tier)
	assert.Equal(t, freshAt, fs.stakes[fresh].RefreshedAt)
}

func TestStaleStakeSweepBoundedBatch(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	old := time.Now().Add(-time.Hour)
	for _, w := range []string{
		"0x0000000000000000000000000000000000000001",
		"0x0000000000000000000000000000000000000002",
		"0x0000000000000000000000000000000000000003",
	} {
		fs.stakes[w] = &models.AgentStake{Wallet: w, Amount: "0", RefreshedAt: old}
	}

	cfg := DefaultConfig()
	cfg.OracleWallet = oracleWallet
	cfg.StaleStakeBatch = 2
	e := New(fc, fs, cfg)

	sum := &Summary{}
	e.refreshStaleStakes(context.Background(), sum)

	assert.Equal(t, 2, sum.StaleRefreshed)
	assert.Equal(t, 0, sum.Errors)
}

func TestTickDefaultsScanOverlap(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.head = 10_000

	// Zero-valued policies fall back to the defaults, overlap included.
	_, err := New(fc, fs, Config{OracleWallet: oracleWallet}).Tick(context.Background())
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, fc.head-def.ScanWindow-def.ScanOverlap, fc.scanFrom)
	assert.Equal(t, fc.head, fc.scanTo)
}

func TestTickEndToEnd(t *testing.T) {
	fc := newFakeChain()
	fs := newFakeStore()
	fc.head = 10_000
	fc.rounds[1] = postedRound(1, false, "")
	fc.commits = []chain.CommitEvent{commitEvent(11)}
	fc.insRounds[11] = 1
	fc.insAgents[11] = minerWallet

	sum, err := newEngine(fc, fs).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.RoundsDiscovered)
	assert.Equal(t, 1, sum.CommitsInserted)
	assert.Equal(t, 0, sum.Errors)

	// Second tick over the same chain state only does redundant work.
	sum, err = newEngine(fc, fs).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.RoundsDiscovered)
	assert.Equal(t, 1, sum.CommitsSkipped)
	assert.Len(t, fs.inscriptions, 1)
}
