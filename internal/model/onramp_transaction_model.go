package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OnrampTransaction struct {
	Id                    uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserId                uuid.UUID           `gorm:"type:uuid;not null;index:idx_onramp_user_status_created,priority:1"`
	MerchantRecognitionId string              `gorm:"type:varchar(64);not null;uniqueIndex"`
	OrderId               *string             `gorm:"type:varchar(128);uniqueIndex"`
	WalletAddress         string              `gorm:"type:varchar(64)"`
	Status                string              `gorm:"type:varchar(20);not null;index:idx_onramp_user_status_created,priority:2"`
	Type                  string              `gorm:"type:varchar(32);not null"`
	Plan                  string              `gorm:"type:varchar(64)"`
	Amount                decimal.NullDecimal `gorm:"type:decimal(20,6)"`
	TxHash                *string             `gorm:"type:varchar(80);uniqueIndex"`
	Metadata              datatypes.JSONMap
	CreatedAt             time.Time           `gorm:"not null;index:idx_onramp_user_status_created,priority:3"`
	UpdatedAt             time.Time           `gorm:"not null"`
}

func (OnrampTransaction) TableName() string {
	return "onramp_transactions"
}
