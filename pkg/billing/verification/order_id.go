package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/payment/provider"
	"course-subscription-be/pkg/payment/recognition"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// VerifyByOrderId verifies a payment by the Order ID shown on the provider
// receipt. Repeating a successful call is safe and returns the same
// subscription.
func (e *Engine) VerifyByOrderId(ctx context.Context, userId uuid.UUID, orderId string) (*entity.VerificationResult, error) {
	ctx, span := e.startSpan(ctx, "verification.VerifyByOrderId", userId)
	defer span.End()

	orderId = strings.TrimSpace(orderId)
	if orderId == "" {
		return entity.Failed(entity.ErrMissingOrderId, "Please provide the Order ID from your payment receipt."), nil
	}

	ledger := e.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository()

	bound, err := ledger.FindByOrderId(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if bound != nil {
		if bound.UserId != userId {
			return entity.Failed(entity.ErrWrongUser, "This order belongs to a different account."), nil
		}
		if bound.IsSucceeded() {
			span.SetAttributes(attribute.Bool("verification.idempotent", true))
			return e.idempotent(ctx, userId, entity.ErrPaymentAlreadyUsed)
		}
	}

	details, result := e.lookupOrder(ctx, orderId)
	if result != nil {
		return result, nil
	}
	if details == nil {
		return e.activateUnresolvable(ctx, userId, orderId)
	}

	row, amount, result, err := e.checkOrder(ctx, userId, orderId, details)
	if err != nil || result != nil {
		return result, err
	}

	return e.activate(ctx, userId, row, activation.Request{
		OrderId:  orderId,
		Amount:   decimal.NewNullDecimal(amount),
		Provider: entity.ProviderMidtrans,
		Method:   entity.MethodOrderId,
	}, entity.ErrPaymentAlreadyUsed)
}

// lookupOrder queries the provider. A nil details with a nil result means the
// provider answered 404 for an order type it cannot resolve by id.
func (e *Engine) lookupOrder(ctx context.Context, orderId string) (*provider.OrderDetails, *entity.VerificationResult) {
	if e.provider == nil {
		return nil, entity.Failed(entity.ErrConfig, "Card payments are not configured.")
	}

	started := time.Now()
	details, err := e.provider.GetOrderStatus(ctx, orderId)
	e.metrics.RecordUpstream("provider", started, err)

	switch {
	case errors.Is(err, provider.ErrOrderNotFound):
		return nil, nil
	case errors.Is(err, provider.ErrNotConfigured):
		return nil, entity.Failed(entity.ErrConfig, "Card payments are not configured.")
	case err != nil:
		e.logger.Warn(module, "Provider order lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, entity.Failed(entity.ErrVerification, "The payment provider is not responding. Please try again shortly.")
	case details == nil:
		return nil, entity.Failed(entity.ErrOrderNotFound, "We could not find that order.")
	}
	return details, nil
}

// checkOrder validates provider details against the caller and the ledger.
// It returns the ledger row and paid amount, or a failure result.
func (e *Engine) checkOrder(ctx context.Context, userId uuid.UUID, orderId string, details *provider.OrderDetails) (*entity.OnrampTransaction, decimal.Decimal, *entity.VerificationResult, error) {
	rec, err := recognition.Parse(details.MerchantRecognitionId)
	if err != nil {
		return nil, decimal.Zero, entity.Failed(entity.ErrInvalidOrderDetails, "The order details could not be read."), nil
	}
	if rec.UserId != userId {
		return nil, decimal.Zero, entity.Failed(entity.ErrWrongUser, "This order belongs to a different account."), nil
	}
	if !rec.IsSubscription() {
		return nil, decimal.Zero, entity.Failed(entity.ErrNotSubscription, "This order is not a subscription payment."), nil
	}
	if !details.Successful {
		return nil, decimal.Zero, entity.Failed(entity.ErrPaymentNotSuccessful, "The payment has not completed yet (status: "+details.Status+")."), nil
	}

	uow := e.uowFactory.NewUnitOfWork(ctx)
	row, err := uow.OnrampTransactionRepository().FindByRecognitionId(ctx, details.MerchantRecognitionId)
	if err != nil {
		return nil, decimal.Zero, nil, err
	}
	if row == nil {
		return nil, decimal.Zero, entity.Failed(entity.ErrTransactionNotFound, "We have no record of starting this payment."), nil
	}
	if row.UserId != userId {
		return nil, decimal.Zero, entity.Failed(entity.ErrWrongUser, "This order belongs to a different account."), nil
	}
	if row.IsSucceeded() && !row.HasOrderId(orderId) {
		return nil, decimal.Zero, entity.Failed(entity.ErrPaymentAlreadyUsed, "This payment has already been used."), nil
	}

	consumed, err := uow.SubscriptionRepository().FindOneSubscription(ctx, specification.ByProviderOrderId{OrderId: orderId})
	if err != nil {
		return nil, decimal.Zero, nil, err
	}
	if consumed != nil {
		return nil, decimal.Zero, entity.Failed(entity.ErrPaymentAlreadyUsed, "This payment has already been used."), nil
	}

	amount := details.Amount()
	if !amount.Valid {
		return nil, decimal.Zero, entity.Failed(entity.ErrInvalidOrderDetails, "The order does not report a payment amount."), nil
	}
	if amount.Decimal.LessThan(e.cfg.floor()) {
		return nil, decimal.Zero, entity.Failed(entity.ErrInsufficientAmount,
			"The amount paid ("+amount.Decimal.String()+") is below the subscription price ("+e.cfg.Price.String()+")."), nil
	}

	return row, amount.Decimal, nil, nil
}

// activateUnresolvable handles orders the provider cannot look up by id. The
// caller's most recent pending subscription payment is activated on trust
// and the attempt is flagged for review.
func (e *Engine) activateUnresolvable(ctx context.Context, userId uuid.UUID, orderId string) (*entity.VerificationResult, error) {
	specs := append(e.pendingSpecs(userId),
		specification.CreatedSince{Since: e.now().Add(-e.cfg.PendingLookback)},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	pending, err := e.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().FindOne(ctx, specs...)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return entity.Failed(entity.ErrNoPendingPayment, "We could not find a recent payment to match this order."), nil
	}

	return e.activateOnTrust(ctx, userId, pending, orderId)
}

func (e *Engine) activateOnTrust(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, orderId string) (*entity.VerificationResult, error) {
	result, err := e.activate(ctx, userId, row, activation.Request{
		OrderId:     orderId,
		Amount:      row.Amount,
		Provider:    entity.ProviderMidtrans,
		Method:      entity.MethodOrderId,
		ManualTrust: true,
	}, entity.ErrPaymentAlreadyUsed)
	if err != nil || !result.IsSuccess() || result.Idempotent {
		return result, err
	}

	e.logger.Warn(module, "Provider could not resolve order; activated on trust", map[string]interface{}{
		"user_id":        userId,
		"transaction_id": row.Id,
	})
	if e.auditor != nil {
		e.auditor.Important(ctx, userId, entity.Evidence{OrderId: orderId},
			"Manual-trust activation: provider could not resolve order", map[string]interface{}{
				"transaction_id":         row.Id.String(),
				"recognition_id":         row.MerchantRecognitionId,
				"transaction_created_at": row.CreatedAt,
			})
	}
	return result, nil
}
