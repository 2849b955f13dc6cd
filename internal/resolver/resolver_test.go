package resolver

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	header  *types.Header
	block   *types.Block
	storage []byte
	err     error
}

func (f *fakeChain) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return f.header, f.err
}

func (f *fakeChain) BlockByNumber(_ context.Context, _ *big.Int) (*types.Block, error) {
	return f.block, f.err
}

func (f *fakeChain) StorageAt(_ context.Context, _ common.Address, _ common.Hash, _ *big.Int) ([]byte, error) {
	return f.storage, f.err
}

func testHeader() *types.Header {
	return &types.Header{
		ParentHash: common.HexToHash("0xABCDEF0000000000000000000000000000000000000000000000000000000001"),
		Coinbase:   common.HexToAddress("0xDEADBEEF00000000000000000000000000000001"),
		Number:     big.NewInt(19_000_000),
		Time:       1_700_000_000,
		GasUsed:    12_345_678,
		BaseFee:    big.NewInt(7_000_000_000),
	}
}

func TestParseChallenge(t *testing.T) {
	ch, err := ParseChallenge("block:19000000:gasUsed")
	require.NoError(t, err)
	assert.Equal(t, uint64(19_000_000), ch.BlockNumber)
	assert.Equal(t, FieldGasUsed, ch.Field)

	ch, err = ParseChallenge("state:100:0xDEADBEEF00000000000000000000000000000001:0x2")
	require.NoError(t, err)
	assert.Equal(t, FieldState, ch.Field)
	assert.Equal(t, common.HexToHash("0x2"), ch.Slot)

	for _, bad := range []string{
		"",
		"block:19000000",
		"block:abc:hash",
		"block:1:unknownfield",
		"state:1:notanaddress:0x0",
		"reveal:1:hash",
	} {
		_, err := ParseChallenge(bad)
		assert.Error(t, err, "challenge %q should not parse", bad)
	}
}

func TestResolveNumericFields(t *testing.T) {
	r := New(&fakeChain{header: testHeader()})

	answer, err := r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldTimestamp})
	require.NoError(t, err)
	assert.Equal(t, "1700000000", answer)

	answer, err = r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldGasUsed})
	require.NoError(t, err)
	assert.Equal(t, "12345678", answer)

	answer, err = r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldBaseFee})
	require.NoError(t, err)
	assert.Equal(t, "7000000000", answer)
}

func TestResolveHexFieldsLowercase(t *testing.T) {
	h := testHeader()
	r := New(&fakeChain{header: h})

	answer, err := r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldParentHash})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(answer), answer)
	assert.True(t, strings.HasPrefix(answer, "0x"))
	assert.Len(t, answer, 66)

	answer, err = r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldMiner})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef00000000000000000000000000000001", answer)
}

func TestResolveFirstTx(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
	block := types.NewBlockWithHeader(testHeader()).WithBody(types.Body{Transactions: types.Transactions{tx}})
	r := New(&fakeChain{block: block})

	answer, err := r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldFirstTx})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(tx.Hash().Hex()), answer)
}

func TestResolveFirstTxEmptyBlockTerminal(t *testing.T) {
	block := types.NewBlockWithHeader(testHeader())
	r := New(&fakeChain{block: block})

	_, err := r.Resolve(context.Background(), &Challenge{BlockNumber: 19_000_000, Field: FieldFirstTx})
	require.ErrorIs(t, err, ErrUnresolvable)
}

func TestResolveStateUnpadded(t *testing.T) {
	value := make([]byte, 32)
	value[31] = 0x2a
	r := New(&fakeChain{storage: value})

	answer, err := r.Resolve(context.Background(), &Challenge{
		BlockNumber: 100,
		Field:       FieldState,
		Contract:    common.HexToAddress("0x1"),
		Slot:        common.HexToHash("0x0"),
	})
	require.NoError(t, err)
	assert.Equal(t, "0x2a", answer)
}

func TestResolveTransientError(t *testing.T) {
	r := New(&fakeChain{err: fmt.Errorf("rpc timeout")})

	_, err := r.Resolve(context.Background(), &Challenge{BlockNumber: 1, Field: FieldHash})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnresolvable)
}
