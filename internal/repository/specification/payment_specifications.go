package specification

import (
	"time"

	"course-subscription-be/internal/entity"

	"gorm.io/gorm"
)

type ByRecognitionId struct {
	RecognitionId string
}

func (s ByRecognitionId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("merchant_recognition_id = ?", s.RecognitionId)
}

type ByOrderId struct {
	OrderId string
}

func (s ByOrderId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("order_id = ?", s.OrderId)
}

type ByProviderOrderId struct {
	OrderId string
}

func (s ByProviderOrderId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("provider_order_id = ?", s.OrderId)
}

type ByTxHash struct {
	TxHash string
}

func (s ByTxHash) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("tx_hash = ?", s.TxHash)
}

type TransactionStatusIs struct {
	Status entity.TransactionStatus
}

func (s TransactionStatusIs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", string(s.Status))
}

// TransactionStatusNot is the guard that turns a ledger update into a compare-and-set.
type TransactionStatusNot struct {
	Status entity.TransactionStatus
}

func (s TransactionStatusNot) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status <> ?", string(s.Status))
}

type PaymentTypeIs struct {
	Type entity.PaymentType
}

func (s PaymentTypeIs) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("type = ?", string(s.Type))
}

// SubscriptionStatusIn keeps subscriptions in any of the given states.
type SubscriptionStatusIn struct {
	Statuses []entity.SubscriptionStatus
}

func (s SubscriptionStatusIn) Apply(db *gorm.DB) *gorm.DB {
	statuses := make([]string, len(s.Statuses))
	for i, status := range s.Statuses {
		statuses[i] = string(status)
	}
	return db.Where("status IN ?", statuses)
}

type PeriodEndedBy struct {
	At time.Time
}

func (s PeriodEndedBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("current_period_end <= ?", s.At)
}

type PeriodEndsAfter struct {
	At time.Time
}

func (s PeriodEndsAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("current_period_end > ?", s.At)
}
