package chain_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"course-subscription-be/pkg/chain"
	"course-subscription-be/pkg/chain/chaintest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token    = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	treasury = common.HexToAddress("0x1111111111111111111111111111111111111111")
	payer    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func hash(n byte) common.Hash {
	return common.BytesToHash([]byte{n})
}

func TestTokenAmount(t *testing.T) {
	assert.True(t, decimal.RequireFromString("10").Equal(chain.TokenAmount(big.NewInt(10_000_000), 6)))
	assert.True(t, decimal.RequireFromString("9.5").Equal(chain.TokenAmount(big.NewInt(9_500_000), 6)))
	assert.True(t, decimal.Zero.Equal(chain.TokenAmount(nil, 6)))
}

func TestDecodeTransfer(t *testing.T) {
	log := chaintest.TransferLog(token, payer, treasury, big.NewInt(42))
	transfer, ok := chain.DecodeTransfer(log)
	require.True(t, ok)
	assert.Equal(t, token, transfer.Token)
	assert.Equal(t, payer, transfer.From)
	assert.Equal(t, treasury, transfer.To)
	assert.Equal(t, int64(42), transfer.Value.Int64())

	_, ok = chain.DecodeTransfer(&types.Log{Address: token, Topics: []common.Hash{hash(9)}})
	assert.False(t, ok)
}

func TestParseHash(t *testing.T) {
	_, err := chain.ParseHash("0x1234")
	assert.ErrorIs(t, err, chain.ErrInvalidHash)

	h, err := chain.ParseHash(hash(7).Hex())
	require.NoError(t, err)
	assert.Equal(t, hash(7), h)
}

func TestInspect(t *testing.T) {
	blockTime := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	reader := chaintest.NewReader()
	reader.AddMined(hash(1), types.ReceiptStatusSuccessful, 100, blockTime,
		chaintest.TransferLog(token, payer, treasury, big.NewInt(10_000_000)))
	reader.AddMined(hash(2), types.ReceiptStatusFailed, 101, blockTime)
	reader.AddPending(hash(3))
	reader.AddMined(hash(4), types.ReceiptStatusSuccessful, 102, blockTime,
		chaintest.TransferLog(token, payer, stranger, big.NewInt(10_000_000)))

	inspector := chain.NewInspector(reader, token.Hex(), treasury.Hex(), 6, time.Second)
	ctx := context.Background()

	payment, err := inspector.Inspect(ctx, hash(1).Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), payment.BlockNumber)
	assert.True(t, payment.BlockTime.Equal(blockTime))
	assert.True(t, decimal.NewFromInt(10).Equal(payment.Amount))

	_, err = inspector.Inspect(ctx, hash(2).Hex())
	assert.ErrorIs(t, err, chain.ErrTxFailed)

	_, err = inspector.Inspect(ctx, hash(3).Hex())
	assert.ErrorIs(t, err, chain.ErrTxPending)

	_, err = inspector.Inspect(ctx, hash(4).Hex())
	assert.ErrorIs(t, err, chain.ErrNoTransfer)

	_, err = inspector.Inspect(ctx, hash(5).Hex())
	assert.ErrorIs(t, err, chain.ErrTxNotFound)

	reader.Err = errors.New("connection refused")
	_, err = inspector.Inspect(ctx, hash(1).Hex())
	require.Error(t, err)
	assert.NotErrorIs(t, err, chain.ErrTxNotFound)
}

func TestInspectorNotConfigured(t *testing.T) {
	inspector := chain.NewInspector(nil, "", "", 6, 0)
	assert.False(t, inspector.Configured())
	_, err := inspector.Inspect(context.Background(), hash(1).Hex())
	assert.ErrorIs(t, err, chain.ErrNotConfigured)
}
