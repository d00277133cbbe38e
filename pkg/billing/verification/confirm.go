package verification

import (
	"context"
	"strings"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/pkg/billing/activation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfirmCandidate finalises a NeedsConfirmation result: the caller names
// the candidate transaction and supplies an Order ID or tx hash for it.
func (e *Engine) ConfirmCandidate(ctx context.Context, userId, transactionId uuid.UUID, evidence entity.Evidence) *entity.VerificationResult {
	ctx, span := e.startSpan(ctx, "verification.ConfirmCandidate", userId)
	defer span.End()

	result, err := e.confirm(ctx, userId, transactionId, evidence)
	return e.finish(entity.MethodConfirm, userId, result, err)
}

func (e *Engine) confirm(ctx context.Context, userId, transactionId uuid.UUID, evidence entity.Evidence) (*entity.VerificationResult, error) {
	row, err := e.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().FindOne(ctx, specification.ByID{ID: transactionId})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return entity.Failed(entity.ErrTransactionNotFound, "We could not find that payment."), nil
	}
	if row.UserId != userId {
		return entity.Failed(entity.ErrWrongUser, "This payment belongs to a different account."), nil
	}

	orderId := strings.TrimSpace(evidence.OrderId)
	txHash := strings.ToLower(strings.TrimSpace(evidence.TxHash))

	switch row.Status {
	case entity.TransactionStatusSuccess:
		if (orderId != "" && row.HasOrderId(orderId)) || (txHash != "" && row.TxHash != nil && *row.TxHash == txHash) {
			return e.idempotent(ctx, userId, entity.ErrPaymentAlreadyUsed)
		}
		return entity.Failed(entity.ErrPaymentAlreadyUsed, "This payment has already been used."), nil
	case entity.TransactionStatusFailed:
		return entity.Failed(entity.ErrPaymentNotSuccessful, "This payment did not complete."), nil
	}

	switch {
	case txHash != "":
		return e.confirmTx(ctx, userId, row, txHash)
	case orderId != "":
		return e.confirmOrder(ctx, userId, row, orderId)
	default:
		return entity.Failed(entity.ErrMissingOrderId, "Please provide the Order ID or transaction hash for this payment."), nil
	}
}

func (e *Engine) confirmTx(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, txHash string) (*entity.VerificationResult, error) {
	payment, result, err := e.checkTxHash(ctx, txHash)
	if err != nil || result != nil {
		return result, err
	}
	return e.activateTx(ctx, userId, row, payment)
}

func (e *Engine) confirmOrder(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, orderId string) (*entity.VerificationResult, error) {
	bound, err := e.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().FindByOrderId(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if bound != nil && bound.Id != row.Id {
		if bound.UserId != userId {
			return entity.Failed(entity.ErrWrongUser, "This order belongs to a different account."), nil
		}
		return entity.Failed(entity.ErrPaymentAlreadyUsed, "This payment has already been used."), nil
	}

	details, result := e.lookupOrder(ctx, orderId)
	if result != nil {
		return result, nil
	}
	if details == nil {
		return e.activateOnTrust(ctx, userId, row, orderId)
	}

	matched, amount, result, err := e.checkOrder(ctx, userId, orderId, details)
	if err != nil || result != nil {
		return result, err
	}
	if matched.Id != row.Id {
		return entity.Failed(entity.ErrInvalidOrderDetails, "This order does not belong to the selected payment."), nil
	}

	return e.activate(ctx, userId, row, activation.Request{
		OrderId:  orderId,
		Amount:   decimal.NewNullDecimal(amount),
		Provider: entity.ProviderMidtrans,
		Method:   entity.MethodConfirm,
	}, entity.ErrPaymentAlreadyUsed)
}
