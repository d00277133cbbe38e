package activation

import (
	"context"
	"fmt"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"

	"github.com/google/uuid"
)

// Current returns the user's current subscription, persisting the expired
// status first when its period is over. Returns nil when the user never
// subscribed.
func (c *Coordinator) Current(ctx context.Context, userId uuid.UUID) (*entity.Subscription, error) {
	uow := c.uowFactory.NewUnitOfWork(ctx)
	sub, err := uow.SubscriptionRepository().FindCurrent(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("load current subscription: %w", err)
	}
	if sub == nil {
		return nil, nil
	}

	now := c.now()
	lapsed := sub.Status == entity.SubscriptionStatusActive || sub.Status == entity.SubscriptionStatusCanceled
	if !lapsed || now.Before(sub.CurrentPeriodEnd) {
		return sub, nil
	}

	previous := sub.Status
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("begin expiry: %w", err)
	}
	defer uow.Rollback()

	// Only a row that is still lapsed at write time is expired; a renewal
	// committed since the read moves the period end past now.
	affected, err := uow.SubscriptionRepository().UpdateStatus(ctx, sub.Id, entity.SubscriptionStatusExpired,
		specification.SubscriptionStatusIn{Statuses: []entity.SubscriptionStatus{
			entity.SubscriptionStatusActive,
			entity.SubscriptionStatusCanceled,
		}},
		specification.PeriodEndedBy{At: now},
	)
	if err != nil {
		return nil, fmt.Errorf("expire subscription: %w", err)
	}
	if affected == 0 {
		uow.Rollback()
		fresh, err := uow.SubscriptionRepository().FindCurrent(ctx, userId)
		if err != nil {
			return nil, fmt.Errorf("reload subscription: %w", err)
		}
		return fresh, nil
	}

	if err := uow.SubscriptionRepository().AppendEvent(ctx, &entity.SubscriptionEvent{
		SubscriptionId: sub.Id,
		EventType:      entity.SubscriptionEventExpired,
		Metadata: map[string]interface{}{
			"previous_status": string(previous),
			"period_end":      sub.CurrentPeriodEnd,
		},
	}); err != nil {
		return nil, fmt.Errorf("append expiry event: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("commit expiry: %w", err)
	}

	sub.Status = entity.SubscriptionStatusExpired
	c.logger.Info(module, "Subscription expired", map[string]interface{}{
		"user_id":         userId,
		"subscription_id": sub.Id,
		"period_end":      sub.CurrentPeriodEnd,
	})
	return sub, nil
}

// Cancel stops renewal of the current subscription. Access is kept until
// the period ends.
func (c *Coordinator) Cancel(ctx context.Context, userId uuid.UUID, reason string) (*entity.Subscription, error) {
	sub, err := c.Current(ctx, userId)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.Status != entity.SubscriptionStatusActive {
		return nil, ErrNoActiveSubscription
	}

	uow := c.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("begin cancel: %w", err)
	}
	defer uow.Rollback()

	subs := uow.SubscriptionRepository()
	affected, err := subs.UpdateStatus(ctx, sub.Id, entity.SubscriptionStatusCanceled,
		specification.SubscriptionStatusIn{Statuses: []entity.SubscriptionStatus{entity.SubscriptionStatusActive}},
		specification.PeriodEndsAfter{At: c.now()},
	)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	if affected == 0 {
		return nil, ErrNoActiveSubscription
	}

	// The stored period may have moved since Current read it.
	canceled, err := subs.FindOneSubscription(ctx, specification.ByID{ID: sub.Id})
	if err != nil {
		return nil, fmt.Errorf("reload subscription: %w", err)
	}
	if canceled == nil {
		return nil, ErrNoActiveSubscription
	}

	if err := subs.AppendEvent(ctx, &entity.SubscriptionEvent{
		SubscriptionId: canceled.Id,
		EventType:      entity.SubscriptionEventCanceled,
		Metadata: map[string]interface{}{
			"reason":     reason,
			"period_end": canceled.CurrentPeriodEnd,
		},
	}); err != nil {
		return nil, fmt.Errorf("append cancel event: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	c.logger.Info(module, "Subscription canceled", map[string]interface{}{
		"user_id":         userId,
		"subscription_id": canceled.Id,
		"access_until":    canceled.CurrentPeriodEnd,
	})
	return canceled, nil
}
