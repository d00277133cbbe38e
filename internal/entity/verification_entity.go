package entity

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

type VerificationErrorCode string

const (
	// Evidence errors
	ErrMissingOrderId      VerificationErrorCode = "MISSING_ORDER_ID"
	ErrOrderNotFound       VerificationErrorCode = "ORDER_NOT_FOUND"
	ErrInvalidOrderDetails VerificationErrorCode = "INVALID_ORDER_DETAILS"
	ErrTxNotFound          VerificationErrorCode = "TX_NOT_FOUND"
	ErrTxPending           VerificationErrorCode = "TX_PENDING"
	ErrTxFailed            VerificationErrorCode = "TX_FAILED"
	ErrInvalidPayment      VerificationErrorCode = "INVALID_PAYMENT"
	ErrTransactionNotFound VerificationErrorCode = "TRANSACTION_NOT_FOUND"

	// Authorization errors
	ErrWrongUser VerificationErrorCode = "WRONG_USER"

	// Business-rule errors
	ErrNotSubscription       VerificationErrorCode = "NOT_SUBSCRIPTION"
	ErrPaymentNotSuccessful  VerificationErrorCode = "PAYMENT_NOT_SUCCESSFUL"
	ErrInsufficientAmount    VerificationErrorCode = "INSUFFICIENT_AMOUNT"
	ErrPaymentAlreadyUsed    VerificationErrorCode = "PAYMENT_ALREADY_USED"
	ErrTxAlreadyUsed         VerificationErrorCode = "TX_ALREADY_USED"
	ErrNoPendingPayment      VerificationErrorCode = "NO_PENDING_PAYMENT"
	ErrNoMatchingTransaction VerificationErrorCode = "NO_MATCHING_TRANSACTION"
	ErrMultiplePending       VerificationErrorCode = "MULTIPLE_PENDING"

	// Infrastructure errors
	ErrConfig       VerificationErrorCode = "CONFIG_ERROR"
	ErrBlockchain   VerificationErrorCode = "BLOCKCHAIN_ERROR"
	ErrVerification VerificationErrorCode = "VERIFICATION_ERROR"
	ErrRateLimited  VerificationErrorCode = "RATE_LIMITED"
)

// HTTPStatus maps a failure code onto the status the API answers with.
func (c VerificationErrorCode) HTTPStatus() int {
	switch c {
	case ErrWrongUser:
		return http.StatusForbidden
	case ErrOrderNotFound, ErrTxNotFound, ErrTransactionNotFound, ErrNoPendingPayment, ErrNoMatchingTransaction:
		return http.StatusNotFound
	case ErrPaymentAlreadyUsed, ErrTxAlreadyUsed:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrConfig, ErrVerification:
		return http.StatusInternalServerError
	case ErrBlockchain:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// VerificationError is a typed, user-safe verification failure.
type VerificationError struct {
	Code    VerificationErrorCode
	Message string
}

func (e *VerificationError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewVerificationError(code VerificationErrorCode, message string) *VerificationError {
	return &VerificationError{Code: code, Message: message}
}

type VerificationOutcome string

const (
	OutcomeSuccess           VerificationOutcome = "success"
	OutcomeNeedsConfirmation VerificationOutcome = "needs_confirmation"
	OutcomeFailure           VerificationOutcome = "failure"
)

// VerificationResult is exactly one of Success{Subscription},
// NeedsConfirmation{Candidate} or Failure{Failure}.
type VerificationResult struct {
	Outcome      VerificationOutcome
	Message      string
	Subscription *Subscription
	Candidate    *OnrampTransaction
	Failure      *VerificationError
	// Idempotent is set when the evidence had already been applied and nothing changed.
	Idempotent bool
}

func Succeeded(sub *Subscription, message string) *VerificationResult {
	return &VerificationResult{Outcome: OutcomeSuccess, Subscription: sub, Message: message}
}

func NeedsConfirmation(candidate *OnrampTransaction, message string) *VerificationResult {
	return &VerificationResult{Outcome: OutcomeNeedsConfirmation, Candidate: candidate, Message: message}
}

func Failed(code VerificationErrorCode, message string) *VerificationResult {
	return &VerificationResult{
		Outcome: OutcomeFailure,
		Message: message,
		Failure: NewVerificationError(code, message),
	}
}

func (r *VerificationResult) IsSuccess() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// ErrorCode returns the failure code, or "" for non-failures.
func (r *VerificationResult) ErrorCode() VerificationErrorCode {
	if r == nil || r.Failure == nil {
		return ""
	}
	return r.Failure.Code
}

type VerificationMethod string

const (
	MethodOrderId   VerificationMethod = "order_id"
	MethodTxHash    VerificationMethod = "tx_hash"
	MethodTimestamp VerificationMethod = "timestamp"
	MethodConfirm   VerificationMethod = "confirm"
)

// Evidence is what the client offers to prove a payment. Exactly one of
// OrderId, TxHash or Timestamp is expected to be set.
type Evidence struct {
	OrderId     string
	TxHash      string
	ReferenceId string
	Timestamp   *time.Time
}

func (e Evidence) Method() VerificationMethod {
	switch {
	case e.OrderId != "":
		return MethodOrderId
	case e.TxHash != "":
		return MethodTxHash
	case e.Timestamp != nil:
		return MethodTimestamp
	default:
		return MethodOrderId
	}
}

type AuditSeverity string

const (
	SeverityInfo      AuditSeverity = "INFO"
	SeverityImportant AuditSeverity = "IMPORTANT"
)

// VerificationLog is one audited verification attempt. Evidence is stored masked.
type VerificationLog struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Method    VerificationMethod
	Evidence  string
	Outcome   VerificationOutcome
	ErrorCode string
	Severity  AuditSeverity
	Message   string
	Details   map[string]interface{}
	CreatedAt time.Time
}
