package verification

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/pkg/chain/chaintest"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyByTxHashActivatesSubscription(t *testing.T) {
	f := newFixture(t, entity.MethodTxHash)
	userId := uuid.New()
	blockTime := time.Now().Add(-time.Minute)
	row := f.seedPending(t, userId, blockTime.Add(-2*time.Minute))
	hash := f.mine(1, 10_000_000, blockTime)

	result := f.engine.Verify(context.Background(), userId, entity.Evidence{TxHash: "0x" + strings.ToUpper(hash.Hex()[2:])})
	require.True(t, result.IsSuccess(), result.Message)
	assert.Equal(t, entity.ProviderOnchain, result.Subscription.Provider)

	stored := f.row(t, row.MerchantRecognitionId)
	assert.Equal(t, entity.TransactionStatusSuccess, stored.Status)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, strings.ToLower(hash.Hex()), *stored.TxHash)
}

func TestVerifyByTxHashChainOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture) string
		code  entity.VerificationErrorCode
	}{
		{
			name:  "malformed hash",
			setup: func(f *fixture) string { return "0x1234" },
			code:  entity.ErrTxNotFound,
		},
		{
			name: "unknown hash",
			setup: func(f *fixture) string {
				return common.BytesToHash([]byte{0xde, 0xad}).Hex()
			},
			code: entity.ErrTxNotFound,
		},
		{
			name: "pending",
			setup: func(f *fixture) string {
				hash := common.BytesToHash([]byte{0x01})
				f.reader.AddPending(hash)
				return hash.Hex()
			},
			code: entity.ErrTxPending,
		},
		{
			name: "reverted",
			setup: func(f *fixture) string {
				hash := common.BytesToHash([]byte{0x02})
				f.reader.AddMined(hash, 0, 2000, time.Now(),
					chaintest.TransferLog(tokenAddr, payerAddr, treasuryAddr, big.NewInt(10_000_000)))
				return hash.Hex()
			},
			code: entity.ErrTxFailed,
		},
		{
			name: "paid someone else",
			setup: func(f *fixture) string {
				hash := common.BytesToHash([]byte{0x03})
				f.reader.AddMined(hash, 1, 2001, time.Now(),
					chaintest.TransferLog(tokenAddr, payerAddr, payerAddr, big.NewInt(10_000_000)))
				return hash.Hex()
			},
			code: entity.ErrInvalidPayment,
		},
		{
			name: "underpaid",
			setup: func(f *fixture) string {
				return f.mine(4, 5_000_000, time.Now()).Hex()
			},
			code: entity.ErrInsufficientAmount,
		},
		{
			name: "rpc down",
			setup: func(f *fixture) string {
				f.reader.Err = errors.New("connection refused")
				return common.BytesToHash([]byte{0x05}).Hex()
			},
			code: entity.ErrBlockchain,
		},
		{
			name: "chain not configured",
			setup: func(f *fixture) string {
				f.engine.chain = nil
				return f.mine(6, 10_000_000, time.Now()).Hex()
			},
			code: entity.ErrConfig,
		},
		{
			name: "no pending payment",
			setup: func(f *fixture) string {
				return f.mine(7, 10_000_000, time.Now()).Hex()
			},
			code: entity.ErrNoPendingPayment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, entity.MethodTxHash)
			userId := uuid.New()
			hash := tt.setup(f)

			result := f.engine.Verify(context.Background(), userId, entity.Evidence{TxHash: hash})
			assert.Equal(t, tt.code, result.ErrorCode())
			assert.Empty(t, f.subscriptions(t, userId))
		})
	}
}

func TestVerifyByTxHashRejectsSpentTransaction(t *testing.T) {
	f := newFixture(t, entity.MethodTxHash)
	ctx := context.Background()
	blockTime := time.Now().Add(-time.Minute)
	payer := uuid.New()
	f.seedPending(t, payer, blockTime.Add(-time.Minute))
	hash := f.mine(1, 10_000_000, blockTime)
	require.True(t, f.engine.Verify(ctx, payer, entity.Evidence{TxHash: hash.Hex()}).IsSuccess())

	other := uuid.New()
	f.seedPending(t, other, blockTime.Add(-2*time.Minute))
	result := f.engine.Verify(ctx, other, entity.Evidence{TxHash: hash.Hex()})
	assert.Equal(t, entity.ErrTxAlreadyUsed, result.ErrorCode())
	assert.Empty(t, f.subscriptions(t, other))
}

func TestVerifyByTxHashCorrelation(t *testing.T) {
	blockTime := time.Now().Add(-time.Hour).Truncate(time.Second)

	t.Run("exact pair wins among nearby rows", func(t *testing.T) {
		f := newFixture(t, entity.MethodTxHash)
		userId := uuid.New()
		f.seedPending(t, userId, blockTime.Add(-5*time.Minute))
		paired := f.seedPending(t, userId, blockTime.Add(-30*time.Second))
		hash := f.mine(1, 10_000_000, blockTime)

		result := f.engine.Verify(context.Background(), userId, entity.Evidence{TxHash: hash.Hex()})
		require.True(t, result.IsSuccess(), result.Message)
		assert.Equal(t, entity.TransactionStatusSuccess, f.row(t, paired.MerchantRecognitionId).Status)
	})

	t.Run("ambiguous rows need confirmation", func(t *testing.T) {
		f := newFixture(t, entity.MethodTxHash)
		userId := uuid.New()
		f.seedPending(t, userId, blockTime.Add(-5*time.Minute))
		nearest := f.seedPending(t, userId, blockTime.Add(-3*time.Minute))
		hash := f.mine(1, 10_000_000, blockTime)

		result := f.engine.Verify(context.Background(), userId, entity.Evidence{TxHash: hash.Hex()})
		require.Equal(t, entity.OutcomeNeedsConfirmation, result.Outcome)
		require.NotNil(t, result.Candidate)
		assert.Equal(t, nearest.Id, result.Candidate.Id)
		assert.Empty(t, f.subscriptions(t, userId))
	})

	t.Run("single older pending row", func(t *testing.T) {
		f := newFixture(t, entity.MethodTxHash)
		userId := uuid.New()
		row := f.seedPending(t, userId, blockTime.Add(-3*time.Hour))
		hash := f.mine(1, 10_000_000, blockTime)

		result := f.engine.Verify(context.Background(), userId, entity.Evidence{TxHash: hash.Hex()})
		require.True(t, result.IsSuccess(), result.Message)
		assert.Equal(t, entity.TransactionStatusSuccess, f.row(t, row.MerchantRecognitionId).Status)
	})

	t.Run("several older pending rows", func(t *testing.T) {
		f := newFixture(t, entity.MethodTxHash)
		userId := uuid.New()
		f.seedPending(t, userId, blockTime.Add(-3*time.Hour))
		f.seedPending(t, userId, blockTime.Add(-4*time.Hour))
		hash := f.mine(1, 10_000_000, blockTime)

		result := f.engine.Verify(context.Background(), userId, entity.Evidence{TxHash: hash.Hex()})
		assert.Equal(t, entity.ErrNoMatchingTransaction, result.ErrorCode())
	})

	t.Run("other users rows are ignored", func(t *testing.T) {
		f := newFixture(t, entity.MethodTxHash)
		f.seedPending(t, uuid.New(), blockTime.Add(-time.Minute))
		hash := f.mine(1, 10_000_000, blockTime)

		result := f.engine.Verify(context.Background(), uuid.New(), entity.Evidence{TxHash: hash.Hex()})
		assert.Equal(t, entity.ErrNoPendingPayment, result.ErrorCode())
	})
}
