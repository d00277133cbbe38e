package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Subscription struct {
	Id                 uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserId             uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_subscriptions_user_id"`
	Plan               string              `gorm:"type:varchar(64);not null"`
	Status             string              `gorm:"type:varchar(20);not null"`
	CurrentPeriodStart time.Time           `gorm:"not null"`
	CurrentPeriodEnd   time.Time           `gorm:"not null"`
	Provider           string              `gorm:"type:varchar(32)"`
	ProviderOrderId    *string             `gorm:"type:varchar(128);index"`
	TxHash             *string             `gorm:"type:varchar(80);index"`
	AmountUsdc         decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	CreatedAt          time.Time           `gorm:"not null;index"`
	UpdatedAt          time.Time           `gorm:"not null"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// SubscriptionEvent rows are insert-only.
type SubscriptionEvent struct {
	Id             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	SubscriptionId uuid.UUID         `gorm:"type:uuid;not null;index"`
	EventType      string            `gorm:"type:varchar(20);not null"`
	Metadata       datatypes.JSONMap
	CreatedAt      time.Time         `gorm:"not null"`
}

func (SubscriptionEvent) TableName() string {
	return "subscription_events"
}
