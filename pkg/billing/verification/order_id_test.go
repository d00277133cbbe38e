package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/pkg/payment/provider"
	"course-subscription-be/pkg/payment/recognition"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyByOrderIdActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userId := uuid.New()
	row := f.seedPending(t, userId, time.Now().Add(-10*time.Minute))
	f.provider.settle("ORD-123", row.MerchantRecognitionId, "10.00")

	result := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-123"})
	require.True(t, result.IsSuccess(), result.Message)
	assert.False(t, result.Idempotent)
	assert.Equal(t, entity.SubscriptionStatusActive, result.Subscription.Status)
	assert.WithinDuration(t, time.Now().Add(365*24*time.Hour), result.Subscription.CurrentPeriodEnd, time.Minute)

	stored := f.row(t, row.MerchantRecognitionId)
	assert.Equal(t, entity.TransactionStatusSuccess, stored.Status)
	assert.True(t, stored.HasOrderId("ORD-123"))
	require.True(t, stored.Amount.Valid)
	assert.True(t, decimal.NewFromInt(10).Equal(stored.Amount.Decimal))
}

func TestVerifyByOrderIdIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userId := uuid.New()
	row := f.seedPending(t, userId, time.Now().Add(-10*time.Minute))
	f.provider.settle("ORD-123", row.MerchantRecognitionId, "10.00")

	first := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-123"})
	require.True(t, first.IsSuccess())
	callsAfterFirst := f.provider.calls

	second := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-123"})
	require.True(t, second.IsSuccess())
	assert.True(t, second.Idempotent)
	assert.Equal(t, first.Subscription.Id, second.Subscription.Id)
	assert.True(t, first.Subscription.CurrentPeriodEnd.Equal(second.Subscription.CurrentPeriodEnd))
	assert.Equal(t, callsAfterFirst, f.provider.calls, "short-circuits before the provider")

	subs := f.subscriptions(t, userId)
	require.Len(t, subs, 1)
	evts := f.events(t, subs[0].Id)
	require.Len(t, evts, 1)
	assert.Equal(t, entity.SubscriptionEventCreated, evts[0].EventType)
}

func TestVerifyByOrderIdRejectsOtherUsersOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	intruder := uuid.New()
	row := f.seedPending(t, owner, time.Now().Add(-10*time.Minute))
	f.provider.settle("ORD-123", row.MerchantRecognitionId, "10.00")

	result := f.engine.Verify(ctx, intruder, entity.Evidence{OrderId: "ORD-123"})
	assert.Equal(t, entity.ErrWrongUser, result.ErrorCode())
	assert.Equal(t, entity.TransactionStatusInitiated, f.row(t, row.MerchantRecognitionId).Status)
	assert.Empty(t, f.subscriptions(t, intruder))

	require.True(t, f.engine.Verify(ctx, owner, entity.Evidence{OrderId: "ORD-123"}).IsSuccess())

	// Once bound, the ledger answers without asking the provider.
	result = f.engine.Verify(ctx, intruder, entity.Evidence{OrderId: "ORD-123"})
	assert.Equal(t, entity.ErrWrongUser, result.ErrorCode())
}

func TestVerifyByOrderIdAmountFloor(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		success bool
	}{
		{name: "full price", amount: "10.00", success: true},
		{name: "within tolerance", amount: "9.50", success: true},
		{name: "below floor", amount: "9.49", success: false},
		{name: "half price", amount: "5.00", success: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userId := uuid.New()
			row := f.seedPending(t, userId, time.Now().Add(-time.Minute))
			f.provider.settle("ORD-AMT", row.MerchantRecognitionId, tt.amount)

			result := f.engine.Verify(context.Background(), userId, entity.Evidence{OrderId: "ORD-AMT"})
			if tt.success {
				assert.True(t, result.IsSuccess(), result.Message)
				return
			}
			assert.Equal(t, entity.ErrInsufficientAmount, result.ErrorCode())
			assert.Equal(t, entity.TransactionStatusInitiated, f.row(t, row.MerchantRecognitionId).Status)
			assert.Empty(t, f.subscriptions(t, userId))
		})
	}
}

func TestVerifyByOrderIdFailureCodes(t *testing.T) {
	tests := []struct {
		name    string
		orderId string
		setup   func(f *fixture, userId uuid.UUID)
		code    entity.VerificationErrorCode
	}{
		{
			name:    "missing order id",
			orderId: "  ",
			setup:   func(f *fixture, userId uuid.UUID) {},
			code:    entity.ErrMissingOrderId,
		},
		{
			name:    "undecodable recognition id",
			orderId: "ORD-BAD",
			setup: func(f *fixture, userId uuid.UUID) {
				f.provider.settle("ORD-BAD", "merchant-checkout-77", "10.00")
			},
			code: entity.ErrInvalidOrderDetails,
		},
		{
			name:    "onramp top-up",
			orderId: "ORD-ONR",
			setup: func(f *fixture, userId uuid.UUID) {
				row := f.seed(t, userId, recognition.KindOnramp, time.Now().Add(-time.Minute))
				f.provider.settle("ORD-ONR", row.MerchantRecognitionId, "10.00")
			},
			code: entity.ErrNotSubscription,
		},
		{
			name:    "payment still pending",
			orderId: "ORD-PEND",
			setup: func(f *fixture, userId uuid.UUID) {
				row := f.seedPending(t, userId, time.Now().Add(-time.Minute))
				f.provider.orders["ORD-PEND"] = &provider.OrderDetails{
					MerchantRecognitionId: row.MerchantRecognitionId,
					StatusCode:            "201",
					Status:                "pending",
					ActualAmount:          decimal.NewNullDecimal(decimal.NewFromInt(10)),
				}
			},
			code: entity.ErrPaymentNotSuccessful,
		},
		{
			name:    "settled without an amount",
			orderId: "ORD-NOAMT",
			setup: func(f *fixture, userId uuid.UUID) {
				row := f.seedPending(t, userId, time.Now().Add(-time.Minute))
				f.provider.orders["ORD-NOAMT"] = &provider.OrderDetails{
					MerchantRecognitionId: row.MerchantRecognitionId,
					StatusCode:            "200",
					Status:                "settlement",
					Successful:            true,
				}
			},
			code: entity.ErrInvalidOrderDetails,
		},
		{
			name:    "no ledger row",
			orderId: "ORD-GHOST",
			setup: func(f *fixture, userId uuid.UUID) {
				f.provider.settle("ORD-GHOST", recognition.New(recognition.KindSubscription, userId, time.Now()), "10.00")
			},
			code: entity.ErrTransactionNotFound,
		},
		{
			name:    "provider unavailable",
			orderId: "ORD-DOWN",
			setup: func(f *fixture, userId uuid.UUID) {
				f.provider.errs["ORD-DOWN"] = context.DeadlineExceeded
			},
			code: entity.ErrVerification,
		},
		{
			name:    "provider not configured",
			orderId: "ORD-CFG",
			setup: func(f *fixture, userId uuid.UUID) {
				f.provider.errs["ORD-CFG"] = provider.ErrNotConfigured
			},
			code: entity.ErrConfig,
		},
		{
			name:    "provider returns nothing",
			orderId: "ORD-NIL",
			setup: func(f *fixture, userId uuid.UUID) {
				f.provider.orders["ORD-NIL"] = nil
			},
			code: entity.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			userId := uuid.New()
			tt.setup(f, userId)

			result := f.engine.Verify(context.Background(), userId, entity.Evidence{OrderId: tt.orderId})
			assert.Equal(t, entity.OutcomeFailure, result.Outcome)
			assert.Equal(t, tt.code, result.ErrorCode())
			assert.NotEmpty(t, result.Message)
			assert.Empty(t, f.subscriptions(t, userId))
		})
	}
}

func TestVerifyByOrderIdRejectsOrderConsumedElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userId := uuid.New()
	first := f.seedPending(t, userId, time.Now().Add(-20*time.Minute))
	f.provider.settle("ORD-1", first.MerchantRecognitionId, "10.00")
	require.True(t, f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-1"}).IsSuccess())

	// A different order pointing at the row already settled by ORD-1.
	f.provider.settle("ORD-2", first.MerchantRecognitionId, "10.00")
	result := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-2"})
	assert.Equal(t, entity.ErrPaymentAlreadyUsed, result.ErrorCode())
}

func TestVerifyByOrderIdExpiredPaymentCannotBeReused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userId := uuid.New()
	row := f.seedPending(t, userId, time.Now().Add(-time.Minute))
	f.provider.settle("ORD-OLD", row.MerchantRecognitionId, "10.00")
	result := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-OLD"})
	require.True(t, result.IsSuccess())

	sub := result.Subscription
	sub.CurrentPeriodEnd = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.db.Table("subscriptions").Where("id = ?", sub.Id).
		Update("current_period_end", sub.CurrentPeriodEnd).Error)

	result = f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "ORD-OLD"})
	assert.Equal(t, entity.ErrPaymentAlreadyUsed, result.ErrorCode())
}

func TestVerifyByOrderIdUnresolvableOrderUsesRecentPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userId := uuid.New()
	f.seedPending(t, userId, time.Now().Add(-3*time.Hour))
	latest := f.seedPending(t, userId, time.Now().Add(-30*time.Minute))

	result := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "MERCHANT-CHECKOUT-9"})
	require.True(t, result.IsSuccess(), result.Message)

	stored := f.row(t, latest.MerchantRecognitionId)
	assert.Equal(t, entity.TransactionStatusSuccess, stored.Status)
	assert.True(t, stored.HasOrderId("MERCHANT-CHECKOUT-9"))
	assert.Equal(t, true, stored.Metadata["manual_trust"])

	require.Len(t, f.auditor.entries, 1)
	entry := f.auditor.entries[0]
	assert.Equal(t, userId, entry.userId)
	assert.Equal(t, "MERCHANT-CHECKOUT-9", entry.evidence.OrderId)
	assert.Equal(t, latest.Id.String(), entry.details["transaction_id"])

	// The same claim again is an idempotent success without a second audit entry.
	again := f.engine.Verify(ctx, userId, entity.Evidence{OrderId: "MERCHANT-CHECKOUT-9"})
	require.True(t, again.IsSuccess())
	assert.True(t, again.Idempotent)
	assert.Len(t, f.auditor.entries, 1)
}

func TestVerifyByOrderIdUnresolvableOrderWithoutPending(t *testing.T) {
	f := newFixture(t)
	userId := uuid.New()
	f.seedPending(t, userId, time.Now().Add(-25*time.Hour))

	result := f.engine.Verify(context.Background(), userId, entity.Evidence{OrderId: "MERCHANT-CHECKOUT-9"})
	assert.Equal(t, entity.ErrNoPendingPayment, result.ErrorCode())
	assert.Empty(t, f.auditor.entries)
}

func TestVerifyByOrderIdConcurrentCallersActivateOnce(t *testing.T) {
	f := newFixture(t)
	userId := uuid.New()
	row := f.seedPending(t, userId, time.Now().Add(-time.Minute))
	f.provider.settle("ORD-RACE", row.MerchantRecognitionId, "10.00")

	const callers = 4
	results := make([]*entity.VerificationResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.engine.Verify(context.Background(), userId, entity.Evidence{OrderId: "ORD-RACE"})
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, r := range results {
		switch {
		case r.IsSuccess() && !r.Idempotent:
			fresh++
		case r.IsSuccess():
		default:
			assert.Equal(t, entity.ErrPaymentAlreadyUsed, r.ErrorCode())
		}
	}
	assert.Equal(t, 1, fresh)

	subs := f.subscriptions(t, userId)
	require.Len(t, subs, 1)
	assert.Len(t, f.events(t, subs[0].Id), 1)
}

func TestVerifyDispatchesOnlyPublicStrategies(t *testing.T) {
	f := newFixture(t)
	hash := f.mine(1, 10_000_000, time.Now().Add(-time.Minute))

	result := f.engine.Verify(context.Background(), uuid.New(), entity.Evidence{TxHash: hash.Hex()})
	assert.Equal(t, entity.ErrMissingOrderId, result.ErrorCode())

	result = f.engine.Verify(context.Background(), uuid.New(), entity.Evidence{})
	assert.Equal(t, entity.ErrMissingOrderId, result.ErrorCode())
}

func TestVerifyReportsUnexpectedErrorsAsVerificationError(t *testing.T) {
	f := newFixture(t)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	result := f.engine.Verify(context.Background(), uuid.New(), entity.Evidence{OrderId: "ORD-1"})
	assert.Equal(t, entity.ErrVerification, result.ErrorCode())
}
