package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/chain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// VerifyByTxHash verifies an on-chain stablecoin transfer to the treasury and
// correlates it with one of the caller's pending payments by block time.
func (e *Engine) VerifyByTxHash(ctx context.Context, userId uuid.UUID, txHash string) (*entity.VerificationResult, error) {
	ctx, span := e.startSpan(ctx, "verification.VerifyByTxHash", userId)
	defer span.End()

	payment, result, err := e.checkTxHash(ctx, txHash)
	if err != nil || result != nil {
		return result, err
	}
	span.SetAttributes(attribute.Int64("chain.block", int64(payment.BlockNumber)))

	row, result, err := e.correlate(ctx, userId, payment.BlockTime)
	if err != nil || result != nil {
		return result, err
	}

	return e.activateTx(ctx, userId, row, payment)
}

// checkTxHash runs every check that does not depend on a ledger row.
func (e *Engine) checkTxHash(ctx context.Context, txHash string) (*chain.Payment, *entity.VerificationResult, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if txHash == "" {
		return nil, entity.Failed(entity.ErrTxNotFound, "Please provide a transaction hash."), nil
	}
	if e.chain == nil || !e.chain.Configured() {
		return nil, entity.Failed(entity.ErrConfig, "Crypto payments are not configured."), nil
	}

	consumed, err := e.txConsumed(ctx, txHash)
	if err != nil {
		return nil, nil, err
	}
	if consumed {
		return nil, entity.Failed(entity.ErrTxAlreadyUsed, "This transaction has already been used."), nil
	}

	started := time.Now()
	payment, err := e.chain.Inspect(ctx, txHash)
	e.metrics.RecordUpstream("chain", started, err)

	switch {
	case err == nil:
	case errors.Is(err, chain.ErrInvalidHash), errors.Is(err, chain.ErrTxNotFound):
		return nil, entity.Failed(entity.ErrTxNotFound, "We could not find that transaction on the network."), nil
	case errors.Is(err, chain.ErrTxPending):
		return nil, entity.Failed(entity.ErrTxPending, "The transaction has not been confirmed yet. Please try again in a few minutes."), nil
	case errors.Is(err, chain.ErrTxFailed):
		return nil, entity.Failed(entity.ErrTxFailed, "The transaction failed on the network."), nil
	case errors.Is(err, chain.ErrNoTransfer):
		return nil, entity.Failed(entity.ErrInvalidPayment, "The transaction did not pay the subscription address."), nil
	case errors.Is(err, chain.ErrNotConfigured):
		return nil, entity.Failed(entity.ErrConfig, "Crypto payments are not configured."), nil
	default:
		e.logger.Warn(module, "Chain lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, entity.Failed(entity.ErrBlockchain, "The network is not responding. Please try again shortly."), nil
	}

	if payment.Amount.LessThan(e.cfg.floor()) {
		return nil, entity.Failed(entity.ErrInsufficientAmount,
			"The amount paid ("+payment.Amount.String()+") is below the subscription price ("+e.cfg.Price.String()+")."), nil
	}
	return payment, nil, nil
}

// txConsumed reports whether any subscription or settled payment holds txHash.
func (e *Engine) txConsumed(ctx context.Context, txHash string) (bool, error) {
	uow := e.uowFactory.NewUnitOfWork(ctx)
	sub, err := uow.SubscriptionRepository().FindOneSubscription(ctx, specification.ByTxHash{TxHash: txHash})
	if err != nil {
		return false, err
	}
	if sub != nil {
		return true, nil
	}
	row, err := uow.OnrampTransactionRepository().FindOne(ctx,
		specification.ByTxHash{TxHash: txHash},
		specification.TransactionStatusIs{Status: entity.TransactionStatusSuccess},
	)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// correlate picks the pending payment a transfer mined at blockTime settles.
func (e *Engine) correlate(ctx context.Context, userId uuid.UUID, blockTime time.Time) (*entity.OnrampTransaction, *entity.VerificationResult, error) {
	window := e.cfg.TxMatchWindow
	candidates, err := e.pendingBetween(ctx, userId, blockTime.Add(-window), blockTime.Add(window))
	if err != nil {
		return nil, nil, err
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil, nil
	case 0:
		return e.onlyPending(ctx, userId, blockTime)
	}

	var exact []*entity.OnrampTransaction
	for _, c := range candidates {
		if absDuration(c.CreatedAt.Sub(blockTime)) <= e.cfg.ExactPairWindow {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		return exact[0], nil, nil
	}

	return nil, entity.NeedsConfirmation(closest(candidates, blockTime),
		"Several pending payments match this transaction. Please confirm which one it settles."), nil
}

// onlyPending falls back to the caller's single pending payment when none
// was created near the block time.
func (e *Engine) onlyPending(ctx context.Context, userId uuid.UUID, blockTime time.Time) (*entity.OnrampTransaction, *entity.VerificationResult, error) {
	pending, err := e.pendingBetween(ctx, userId, blockTime.Add(-e.cfg.PendingLookback), blockTime.Add(e.cfg.TxMatchWindow))
	if err != nil {
		return nil, nil, err
	}
	switch len(pending) {
	case 0:
		return nil, entity.Failed(entity.ErrNoPendingPayment, "We could not find a pending payment for your account."), nil
	case 1:
		return pending[0], nil, nil
	default:
		return nil, entity.Failed(entity.ErrNoMatchingTransaction, "No pending payment matches the time of this transaction."), nil
	}
}

func (e *Engine) activateTx(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, payment *chain.Payment) (*entity.VerificationResult, error) {
	return e.activate(ctx, userId, row, activation.Request{
		TxHash:   strings.ToLower(payment.Hash.Hex()),
		Amount:   decimal.NewNullDecimal(payment.Amount),
		Provider: entity.ProviderOnchain,
		Method:   entity.MethodTxHash,
	}, entity.ErrTxAlreadyUsed)
}
