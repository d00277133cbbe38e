package contract

import (
	"context"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"

	"github.com/google/uuid"
)

type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, subscription *entity.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *entity.Subscription) error
	// UpdateStatus sets only the status of subscription id when every guard
	// still matches the stored row, returning the number of rows changed.
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.SubscriptionStatus, guards ...specification.Specification) (int64, error)
	FindOneSubscription(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error)
	FindAllSubscriptions(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error)
	// FindCurrent returns the user's most recently created subscription.
	FindCurrent(ctx context.Context, userId uuid.UUID) (*entity.Subscription, error)

	// Events are append-only.
	AppendEvent(ctx context.Context, event *entity.SubscriptionEvent) error
	FindEvents(ctx context.Context, specs ...specification.Specification) ([]*entity.SubscriptionEvent, error)
}
