package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string
type PaymentType string

const (
	TransactionStatusInitiated  TransactionStatus = "INITIATED"
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusSuccess    TransactionStatus = "SUCCESS"
	TransactionStatusFailed     TransactionStatus = "FAILED"

	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeOnramp       PaymentType = "onramp"
)

// OnrampTransaction is one payment attempt (a ledger row).
type OnrampTransaction struct {
	Id                    uuid.UUID
	UserId                uuid.UUID
	MerchantRecognitionId string
	OrderId               *string
	WalletAddress         string
	Status                TransactionStatus
	Type                  PaymentType
	Plan                  string
	Amount                decimal.NullDecimal
	TxHash                *string
	Metadata              map[string]interface{}
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (t *OnrampTransaction) IsSucceeded() bool {
	return t.Status == TransactionStatusSuccess
}

func (t *OnrampTransaction) HasOrderId(orderId string) bool {
	return t.OrderId != nil && *t.OrderId == orderId
}

// TransactionPatch lists the ledger columns a caller may change. Nil fields are left untouched.
type TransactionPatch struct {
	Status   *TransactionStatus
	OrderId  *string
	TxHash   *string
	Amount   decimal.NullDecimal
	Metadata map[string]interface{}
}
