package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentVerificationLog struct {
	Id        uuid.UUID         `gorm:"type:uuid;primaryKey"`
	UserId    uuid.UUID         `gorm:"type:uuid;not null;index:idx_verification_user_created,priority:1"`
	Method    string            `gorm:"type:varchar(20);not null"`
	Evidence  string            `gorm:"type:varchar(128)"`
	Outcome   string            `gorm:"type:varchar(20);not null"`
	ErrorCode string            `gorm:"type:varchar(40)"`
	Severity  string            `gorm:"type:varchar(20);not null;index"`
	Message   string            `gorm:"type:text"`
	Details   datatypes.JSONMap
	CreatedAt time.Time         `gorm:"not null;index:idx_verification_user_created,priority:2"`
}

func (PaymentVerificationLog) TableName() string {
	return "payment_verification_logs"
}

// Models lists every table owned by the payment subsystem, in migration order.
func Models() []interface{} {
	return []interface{}{
		&OnrampTransaction{},
		&Subscription{},
		&SubscriptionEvent{},
		&PaymentVerificationLog{},
	}
}
