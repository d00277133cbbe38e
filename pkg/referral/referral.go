// Package referral hands successful subscription payments to the referral
// subsystem. Referral bookkeeping itself lives in another service; this
// package only emits the request.
package referral

import (
	"context"
	"fmt"
	"time"

	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/events"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	module = "REFERRAL"

	EventSubscriptionReferralRequested = "SUBSCRIPTION_REFERRAL_REQUESTED"
)

// Processor records a referral for one paid activation. transactionId is the
// ledger row that paid for it and identifies the request across retries.
type Processor interface {
	ProcessSubscriptionReferral(ctx context.Context, userId, subscriptionId, transactionId uuid.UUID, amountPaid decimal.Decimal) error
}

// EventProcessor publishes a referral request onto the event bus.
type EventProcessor struct {
	publisher events.Publisher
	logger    logger.ILogger
}

func NewEventProcessor(publisher events.Publisher, logger logger.ILogger) *EventProcessor {
	return &EventProcessor{publisher: publisher, logger: logger}
}

func (p *EventProcessor) ProcessSubscriptionReferral(ctx context.Context, userId, subscriptionId, transactionId uuid.UUID, amountPaid decimal.Decimal) error {
	if p.publisher == nil {
		return nil
	}

	now := time.Now().UTC()
	evt := events.BaseEvent{
		Type: EventSubscriptionReferralRequested,
		Data: map[string]interface{}{
			"user_id":         userId.String(),
			"subscription_id": subscriptionId.String(),
			"transaction_id":  transactionId.String(),
			"amount_paid":     amountPaid.String(),
			"occurred_at":     now,
			events.DedupKey:   "referral:" + transactionId.String(),
		},
		OccurredAt: now,
	}

	if err := p.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish %s: %w", EventSubscriptionReferralRequested, err)
	}

	p.logger.Debug(module, "Referral request published", map[string]interface{}{
		"user_id":         userId,
		"subscription_id": subscriptionId,
		"transaction_id":  transactionId,
	})
	return nil
}

// ActivationHook runs the referral processor after each activation.
type ActivationHook struct {
	processor Processor
}

var _ activation.Hook = (*ActivationHook)(nil)

func NewActivationHook(processor Processor) *ActivationHook {
	return &ActivationHook{processor: processor}
}

func (h *ActivationHook) Name() string {
	return "referral"
}

func (h *ActivationHook) AfterActivation(ctx context.Context, a activation.Activation) error {
	return h.processor.ProcessSubscriptionReferral(ctx, a.UserId, a.Subscription.Id, a.Transaction.Id, a.Amount)
}
