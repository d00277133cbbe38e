// Package activation owns the only write path that moves a payment to
// SUCCESS and grants or extends the user's subscription.
package activation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/internal/pkg/metrics"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

const module = "ACTIVATION"

var (
	// ErrOrderClaimed means the order id or tx hash is bound to another ledger row.
	ErrOrderClaimed = errors.New("activation: evidence already bound to another transaction")
	// ErrAlreadyActivated means the ledger row was already SUCCESS when the update ran.
	ErrAlreadyActivated = errors.New("activation: transaction already activated")
	// ErrNoActiveSubscription is returned by Cancel when there is nothing to cancel.
	ErrNoActiveSubscription = errors.New("activation: no active subscription")
)

// errSubscriptionRaced means a concurrent activation created the user's
// subscription after this transaction looked for it.
var errSubscriptionRaced = errors.New("activation: subscription created concurrently")

var tracer = otel.Tracer("course-subscription-be/activation")

// Request carries the evidence that proved the payment.
type Request struct {
	OrderId     string
	TxHash      string
	Amount      decimal.NullDecimal
	Provider    string
	Method      entity.VerificationMethod
	ManualTrust bool
}

// Activation describes a committed activation to post-commit hooks.
type Activation struct {
	UserId       uuid.UUID
	Subscription entity.Subscription
	Transaction  entity.OnrampTransaction
	Amount       decimal.Decimal
	Renewal      bool
	ManualTrust  bool
}

// Hook runs after an activation commits. Errors are logged only.
type Hook interface {
	Name() string
	AfterActivation(ctx context.Context, activation Activation) error
}

type Options struct {
	Plan        string
	Period      time.Duration
	HookTimeout time.Duration
}

type Coordinator struct {
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
	metrics    *metrics.Recorder
	opts       Options
	hooks      []Hook
	hooksWG    sync.WaitGroup
	now        func() time.Time
}

func NewCoordinator(uowFactory unitofwork.RepositoryFactory, logger logger.ILogger, recorder *metrics.Recorder, opts Options, hooks ...Hook) *Coordinator {
	if opts.Period <= 0 {
		opts.Period = 365 * 24 * time.Hour
	}
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = 15 * time.Second
	}
	return &Coordinator{
		uowFactory: uowFactory,
		logger:     logger,
		metrics:    recorder,
		opts:       opts,
		hooks:      hooks,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Activate marks row SUCCESS and creates or renews the user's subscription in
// one database transaction, then fires hooks in the background.
func (c *Coordinator) Activate(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, req Request) (*entity.Subscription, error) {
	ctx, span := tracer.Start(ctx, "activation.Activate")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction.id", row.Id.String()),
		attribute.Bool("activation.manual_trust", req.ManualTrust),
	)

	activation, err := c.commit(ctx, userId, row, req)
	if errors.Is(err, errSubscriptionRaced) {
		// The other activation's row is visible now, so this one renews it.
		activation, err = c.commit(ctx, userId, row, req)
		if errors.Is(err, errSubscriptionRaced) {
			err = ErrOrderClaimed
		}
	}
	if err != nil {
		if !errors.Is(err, ErrAlreadyActivated) && !errors.Is(err, ErrOrderClaimed) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	kind := string(entity.SubscriptionEventCreated)
	if activation.Renewal {
		kind = string(entity.SubscriptionEventRenewed)
	}
	c.metrics.RecordActivation(kind, req.ManualTrust)
	c.logger.Info(module, "Subscription activated", map[string]interface{}{
		"user_id":         userId,
		"transaction_id":  row.Id,
		"subscription_id": activation.Subscription.Id,
		"period_end":      activation.Subscription.CurrentPeriodEnd,
		"kind":            kind,
		"manual_trust":    req.ManualTrust,
	})

	c.runHooks(ctx, *activation)

	sub := activation.Subscription
	return &sub, nil
}

func (c *Coordinator) commit(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, req Request) (*Activation, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("begin activation: %w", err)
	}
	defer uow.Rollback()

	ledger := uow.OnrampTransactionRepository()

	if req.OrderId != "" {
		bound, err := ledger.FindByOrderId(ctx, req.OrderId)
		if err != nil {
			return nil, fmt.Errorf("recheck order id: %w", err)
		}
		if bound != nil && bound.Id != row.Id {
			return nil, ErrOrderClaimed
		}
	}
	if req.TxHash != "" {
		bound, err := ledger.FindOne(ctx, specification.ByTxHash{TxHash: req.TxHash})
		if err != nil {
			return nil, fmt.Errorf("recheck tx hash: %w", err)
		}
		if bound != nil && bound.Id != row.Id {
			return nil, ErrOrderClaimed
		}
	}

	now := c.now()
	success := entity.TransactionStatusSuccess
	patch := entity.TransactionPatch{
		Status:   &success,
		Metadata: activationMetadata(row.Metadata, req, now),
	}
	if req.OrderId != "" && row.OrderId == nil {
		patch.OrderId = &req.OrderId
	}
	if req.TxHash != "" && row.TxHash == nil {
		patch.TxHash = &req.TxHash
	}
	if req.Amount.Valid && !row.Amount.Valid {
		patch.Amount = req.Amount
	}

	affected, err := ledger.UpdateByRecognitionId(ctx, row.MerchantRecognitionId, patch,
		specification.TransactionStatusNot{Status: entity.TransactionStatusSuccess},
	)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrOrderClaimed
		}
		return nil, fmt.Errorf("mark transaction success: %w", err)
	}
	if affected != 1 {
		return nil, ErrAlreadyActivated
	}

	updatedRow, err := ledger.FindByRecognitionId(ctx, row.MerchantRecognitionId)
	if err != nil {
		return nil, fmt.Errorf("reload transaction: %w", err)
	}

	subs := uow.SubscriptionRepository()
	current, err := subs.FindCurrent(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}

	amount := req.Amount
	if !amount.Valid {
		amount = updatedRow.Amount
	}

	var providerOrderId, txHash *string
	if req.OrderId != "" {
		providerOrderId = &req.OrderId
	}
	if req.TxHash != "" {
		txHash = &req.TxHash
	}

	renewal := current != nil
	eventMeta := map[string]interface{}{
		"transaction_id": row.Id.String(),
		"recognition_id": row.MerchantRecognitionId,
		"provider":       req.Provider,
		"method":         string(req.Method),
		"manual_trust":   req.ManualTrust,
		"amount":         amount.Decimal.String(),
		"period_start":   now,
		"period_end":     now.Add(c.opts.Period),
	}

	if current == nil {
		current = &entity.Subscription{
			UserId:             userId,
			Plan:               c.opts.Plan,
			Status:             entity.SubscriptionStatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.Add(c.opts.Period),
			Provider:           req.Provider,
			ProviderOrderId:    providerOrderId,
			TxHash:             txHash,
			AmountUsdc:         amount,
		}
		if err := subs.CreateSubscription(ctx, current); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, errSubscriptionRaced
			}
			return nil, fmt.Errorf("create subscription: %w", err)
		}
	} else {
		eventMeta["previous_status"] = string(current.Status)
		eventMeta["previous_period_end"] = current.CurrentPeriodEnd

		current.Status = entity.SubscriptionStatusActive
		current.CurrentPeriodStart = now
		current.CurrentPeriodEnd = now.Add(c.opts.Period)
		current.Provider = req.Provider
		current.ProviderOrderId = providerOrderId
		current.TxHash = txHash
		current.AmountUsdc = amount
		if c.opts.Plan != "" {
			current.Plan = c.opts.Plan
		}
		if err := subs.UpdateSubscription(ctx, current); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrOrderClaimed
			}
			return nil, fmt.Errorf("renew subscription: %w", err)
		}
	}

	eventType := entity.SubscriptionEventCreated
	if renewal {
		eventType = entity.SubscriptionEventRenewed
	}
	if err := subs.AppendEvent(ctx, &entity.SubscriptionEvent{
		SubscriptionId: current.Id,
		EventType:      eventType,
		Metadata:       eventMeta,
	}); err != nil {
		return nil, fmt.Errorf("append subscription event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrOrderClaimed
		}
		return nil, fmt.Errorf("commit activation: %w", err)
	}

	return &Activation{
		UserId:       userId,
		Subscription: *current,
		Transaction:  *updatedRow,
		Amount:       amount.Decimal,
		Renewal:      renewal,
		ManualTrust:  req.ManualTrust,
	}, nil
}

func activationMetadata(existing map[string]interface{}, req Request, now time.Time) map[string]interface{} {
	meta := make(map[string]interface{}, len(existing)+3)
	for k, v := range existing {
		meta[k] = v
	}
	meta["activated_at"] = now.Format(time.RFC3339)
	meta["verification_method"] = string(req.Method)
	if req.ManualTrust {
		meta["manual_trust"] = true
	}
	return meta
}

func (c *Coordinator) runHooks(ctx context.Context, activation Activation) {
	if len(c.hooks) == 0 {
		return
	}

	c.hooksWG.Add(1)
	go func() {
		defer c.hooksWG.Done()

		hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.HookTimeout)
		defer cancel()

		for _, hook := range c.hooks {
			if err := c.runHook(hookCtx, hook, activation); err != nil {
				c.metrics.RecordHookFailure(hook.Name())
				c.logger.Error(module, "Post-activation hook failed", map[string]interface{}{
					"hook":            hook.Name(),
					"user_id":         activation.UserId,
					"subscription_id": activation.Subscription.Id,
					"error":           err.Error(),
				})
			}
		}
	}()
}

func (c *Coordinator) runHook(ctx context.Context, hook Hook, activation Activation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook.AfterActivation(ctx, activation)
}

// Drain waits for in-flight hooks, up to ctx's deadline.
func (c *Coordinator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.hooksWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
