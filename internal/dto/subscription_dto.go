package dto

import (
	"time"

	"github.com/google/uuid"
)

type MerchantInitRequest struct {
	FiatType string `json:"fiatType" validate:"omitempty,len=3,alpha"`
	LogoURL  string `json:"logoUrl" validate:"omitempty,url"`
	Email    string `json:"email" validate:"omitempty,email"`
	FullName string `json:"fullName" validate:"omitempty,max=100"`
}

type MerchantInitResponse struct {
	TransactionId         uuid.UUID `json:"transactionId"`
	MerchantRecognitionId string    `json:"merchantRecognitionId"`
	SnapToken             string    `json:"snapToken"`
	RedirectURL           string    `json:"redirectUrl"`
	ClientKey             string    `json:"clientKey"`
	GrossAmount           int64     `json:"grossAmount"`
	Currency              string    `json:"currency"`
	PriceUsdc             string    `json:"priceUsdc"`
}

type CryptoInitRequest struct {
	ChainId  int64  `json:"chainId" validate:"omitempty,gt=0"`
	Language string `json:"language" validate:"omitempty,max=8"`
}

type CryptoInitResponse struct {
	TransactionId         uuid.UUID `json:"transactionId"`
	MerchantRecognitionId string    `json:"merchantRecognitionId"`
	WidgetURL             string    `json:"widgetUrl"`
	TreasuryAddress       string    `json:"treasuryAddress"`
	PriceUsdc             string    `json:"priceUsdc"`
}

type SubscriptionResponse struct {
	Id                 uuid.UUID `json:"id"`
	Plan               string    `json:"plan"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
	Provider           string    `json:"provider"`
	ProviderOrderId    *string   `json:"providerOrderId,omitempty"`
	TxHash             *string   `json:"txHash,omitempty"`
	AmountUsdc         *string   `json:"amountUsdc,omitempty"`
}

type SubscriptionStatusResponse struct {
	Active       bool                  `json:"active"`
	PeriodEnd    *time.Time            `json:"periodEnd"`
	Subscription *SubscriptionResponse `json:"subscription"`
}

// VerifyPaymentRequest carries exactly one kind of evidence: orderId, txHash,
// or timestamp (optionally with referenceId).
type VerifyPaymentRequest struct {
	OrderId     string     `json:"orderId" validate:"omitempty,max=100"`
	TxHash      string     `json:"txHash" validate:"omitempty,max=80"`
	ReferenceId string     `json:"referenceId" validate:"omitempty,max=100"`
	Timestamp   *time.Time `json:"timestamp"`
}

type ConfirmVerificationRequest struct {
	TransactionId uuid.UUID `json:"transactionId" validate:"required"`
	Confirm       bool      `json:"confirm"`
	OrderId       string    `json:"orderId" validate:"omitempty,max=100"`
	TxHash        string    `json:"txHash" validate:"omitempty,max=80"`
}

type PendingPaymentResponse struct {
	Id        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Plan      string    `json:"plan"`
	Amount    *string   `json:"amount,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// VerificationResponse is the body of verify-payment and confirm-verification.
type VerificationResponse struct {
	Success           bool                    `json:"success"`
	NeedsConfirmation bool                    `json:"needsConfirmation,omitempty"`
	Message           string                  `json:"message"`
	Error             string                  `json:"error,omitempty"`
	Subscription      *SubscriptionResponse   `json:"subscription,omitempty"`
	Transaction       *PendingPaymentResponse `json:"transaction,omitempty"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type VerificationHistoryResponse struct {
	Method    string    `json:"method"`
	Evidence  string    `json:"evidence"`
	Outcome   string    `json:"outcome"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
