package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubscriptionStatus string
type SubscriptionEventType string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"

	SubscriptionEventCreated  SubscriptionEventType = "created"
	SubscriptionEventRenewed  SubscriptionEventType = "renewed"
	SubscriptionEventCanceled SubscriptionEventType = "canceled"
	SubscriptionEventExpired  SubscriptionEventType = "expired"

	ProviderMidtrans = "midtrans"
	ProviderOnchain  = "onchain"
	ProviderManual   = "manual"
)

// Subscription is the user's current access period. Renewal mutates the
// latest row in place; history lives in SubscriptionEvent.
type Subscription struct {
	Id                 uuid.UUID
	UserId             uuid.UUID
	Plan               string
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Provider           string
	ProviderOrderId    *string
	TxHash             *string
	AmountUsdc         decimal.NullDecimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsActiveAt reports whether the subscription grants access at t.
// Canceled subscriptions keep access until the period ends.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusCanceled {
		return false
	}
	return t.Before(s.CurrentPeriodEnd)
}

type SubscriptionEvent struct {
	Id             uuid.UUID
	SubscriptionId uuid.UUID
	EventType      SubscriptionEventType
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}
