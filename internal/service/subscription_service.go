package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-subscription-be/internal/config"
	"course-subscription-be/internal/dto"
	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/internal/repository/unitofwork"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/billing/guard"
	"course-subscription-be/pkg/lock"
	"course-subscription-be/pkg/payment/provider"
	"course-subscription-be/pkg/payment/recognition"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const module = "SUBSCRIPTION"

var (
	ErrPaymentsNotConfigured = errors.New("payment method is not configured")
	ErrNoActiveSubscription  = activation.ErrNoActiveSubscription
)

type ISubscriptionService interface {
	InitMerchantPayment(ctx context.Context, userId uuid.UUID, req *dto.MerchantInitRequest) (*dto.MerchantInitResponse, error)
	InitCryptoPayment(ctx context.Context, userId uuid.UUID, req *dto.CryptoInitRequest) (*dto.CryptoInitResponse, error)
	GetStatus(ctx context.Context, userId uuid.UUID) (*dto.SubscriptionStatusResponse, error)
	VerifyPayment(ctx context.Context, userId uuid.UUID, req *dto.VerifyPaymentRequest) (*entity.VerificationResult, error)
	ConfirmVerification(ctx context.Context, userId uuid.UUID, req *dto.ConfirmVerificationRequest) (*entity.VerificationResult, error)
	GetPendingPayments(ctx context.Context, userId uuid.UUID) ([]*dto.PendingPaymentResponse, error)
	CancelSubscription(ctx context.Context, userId uuid.UUID, reason string) (*dto.SubscriptionResponse, error)
	GetVerificationHistory(ctx context.Context, userId uuid.UUID) ([]*dto.VerificationHistoryResponse, error)
}

// Verifier runs payment verification. Implemented by *verification.Engine.
type Verifier interface {
	Verify(ctx context.Context, userId uuid.UUID, evidence entity.Evidence) *entity.VerificationResult
	ConfirmCandidate(ctx context.Context, userId, transactionId uuid.UUID, evidence entity.Evidence) *entity.VerificationResult
}

// Subscriptions reads and ends subscriptions. Implemented by *activation.Coordinator.
type Subscriptions interface {
	Current(ctx context.Context, userId uuid.UUID) (*entity.Subscription, error)
	Cancel(ctx context.Context, userId uuid.UUID, reason string) (*entity.Subscription, error)
}

// AttemptGuard rate-limits and audits attempts. Implemented by *guard.Guard.
type AttemptGuard interface {
	Allow(ctx context.Context, userId uuid.UUID) (bool, error)
	Record(ctx context.Context, attempt guard.Attempt)
	History(ctx context.Context, userId uuid.UUID, limit int) ([]*entity.VerificationLog, error)
}

type subscriptionService struct {
	uowFactory    unitofwork.RepositoryFactory
	verifier      Verifier
	subscriptions Subscriptions
	guard         AttemptGuard
	locker        lock.Locker
	checkout      provider.CheckoutClient
	cfg           *config.Config
	logger        logger.ILogger
	now           func() time.Time
}

func NewSubscriptionService(
	uowFactory unitofwork.RepositoryFactory,
	verifier Verifier,
	subscriptions Subscriptions,
	attemptGuard AttemptGuard,
	locker lock.Locker,
	checkout provider.CheckoutClient,
	cfg *config.Config,
	log logger.ILogger,
) ISubscriptionService {
	return &subscriptionService{
		uowFactory:    uowFactory,
		verifier:      verifier,
		subscriptions: subscriptions,
		guard:         attemptGuard,
		locker:        locker,
		checkout:      checkout,
		cfg:           cfg,
		logger:        log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *subscriptionService) InitMerchantPayment(ctx context.Context, userId uuid.UUID, req *dto.MerchantInitRequest) (*dto.MerchantInitResponse, error) {
	if s.checkout == nil {
		return nil, ErrPaymentsNotConfigured
	}

	row, err := s.createPending(ctx, userId, map[string]interface{}{
		"channel":   "merchant",
		"fiat_type": req.FiatType,
	})
	if err != nil {
		return nil, err
	}

	session, err := s.checkout.CreateCheckout(ctx, provider.CheckoutRequest{
		MerchantRecognitionId: row.MerchantRecognitionId,
		Email:                 req.Email,
		FullName:              req.FullName,
		FiatType:              req.FiatType,
		LogoURL:               req.LogoURL,
	})
	if err != nil {
		s.markFailed(ctx, row, err)
		if errors.Is(err, provider.ErrNotConfigured) {
			return nil, ErrPaymentsNotConfigured
		}
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	s.logger.Info(module, "Merchant checkout started", map[string]interface{}{
		"user_id":        userId,
		"transaction_id": row.Id,
	})

	return &dto.MerchantInitResponse{
		TransactionId:         row.Id,
		MerchantRecognitionId: row.MerchantRecognitionId,
		SnapToken:             session.Token,
		RedirectURL:           session.RedirectURL,
		ClientKey:             session.ClientKey,
		GrossAmount:           session.GrossAmount,
		Currency:              session.Currency,
		PriceUsdc:             s.cfg.Billing.PriceUsdc.StringFixed(2),
	}, nil
}

func (s *subscriptionService) InitCryptoPayment(ctx context.Context, userId uuid.UUID, req *dto.CryptoInitRequest) (*dto.CryptoInitResponse, error) {
	chainCfg := s.cfg.Chain
	if chainCfg.TreasuryAddr == "" || chainCfg.WidgetBaseURL == "" {
		return nil, ErrPaymentsNotConfigured
	}

	chainId := req.ChainId
	if chainId == 0 {
		chainId = chainCfg.ChainID
	}

	row, err := s.createPending(ctx, userId, map[string]interface{}{
		"channel":  "crypto",
		"chain_id": chainId,
	})
	if err != nil {
		return nil, err
	}

	widgetURL, err := buildWidgetURL(chainCfg, s.cfg.Billing.PriceUsdc, row.MerchantRecognitionId, chainId, req.Language)
	if err != nil {
		s.markFailed(ctx, row, err)
		return nil, err
	}

	s.logger.Info(module, "Crypto payment intent created", map[string]interface{}{
		"user_id":        userId,
		"transaction_id": row.Id,
		"chain_id":       chainId,
	})

	return &dto.CryptoInitResponse{
		TransactionId:         row.Id,
		MerchantRecognitionId: row.MerchantRecognitionId,
		WidgetURL:             widgetURL,
		TreasuryAddress:       chainCfg.TreasuryAddr,
		PriceUsdc:             s.cfg.Billing.PriceUsdc.StringFixed(2),
	}, nil
}

func buildWidgetURL(chainCfg config.ChainConfig, price decimal.Decimal, recognitionId string, chainId int64, language string) (string, error) {
	u, err := url.Parse(chainCfg.WidgetBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse widget url: %w", err)
	}

	q := u.Query()
	if chainCfg.WidgetAppID != "" {
		q.Set("appId", chainCfg.WidgetAppID)
	}
	q.Set("coinCode", chainCfg.WidgetCoinCode)
	q.Set("network", strconv.FormatInt(chainId, 10))
	q.Set("walletAddress", chainCfg.TreasuryAddr)
	q.Set("merchantRecognitionId", recognitionId)
	q.Set("coinAmount", price.String())
	if chainCfg.WidgetFiatAmount != "" {
		q.Set("fiatAmount", chainCfg.WidgetFiatAmount)
	}
	if language != "" {
		q.Set("lang", language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *subscriptionService) createPending(ctx context.Context, userId uuid.UUID, metadata map[string]interface{}) (*entity.OnrampTransaction, error) {
	now := s.now()
	metadata["type"] = string(entity.PaymentTypeSubscription)
	// The amount column is left for activation to fill with what was paid.
	metadata[expectedAmountKey] = s.cfg.Billing.PriceUsdc.String()

	row := &entity.OnrampTransaction{
		UserId:                userId,
		MerchantRecognitionId: recognition.New(recognition.KindSubscription, userId, now),
		WalletAddress:         s.cfg.Chain.TreasuryAddr,
		Status:                entity.TransactionStatusInitiated,
		Type:                  entity.PaymentTypeSubscription,
		Plan:                  s.cfg.Billing.PlanSlug,
		Metadata:              metadata,
		CreatedAt:             now,
	}
	if err := s.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().Create(ctx, row); err != nil {
		return nil, fmt.Errorf("create ledger row: %w", err)
	}
	return row, nil
}

func (s *subscriptionService) markFailed(ctx context.Context, row *entity.OnrampTransaction, cause error) {
	failed := entity.TransactionStatusFailed
	_, err := s.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().UpdateByRecognitionId(ctx, row.MerchantRecognitionId,
		entity.TransactionPatch{Status: &failed},
		specification.TransactionStatusIs{Status: entity.TransactionStatusInitiated},
	)
	if err != nil {
		s.logger.Error(module, "Failed to mark ledger row failed", map[string]interface{}{
			"transaction_id": row.Id,
			"error":          err.Error(),
		})
	}
	s.logger.Warn(module, "Payment initialisation failed", map[string]interface{}{
		"transaction_id": row.Id,
		"error":          cause.Error(),
	})
}

func (s *subscriptionService) GetStatus(ctx context.Context, userId uuid.UUID) (*dto.SubscriptionStatusResponse, error) {
	sub, err := s.subscriptions.Current(ctx, userId)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &dto.SubscriptionStatusResponse{Active: false}, nil
	}

	periodEnd := sub.CurrentPeriodEnd
	return &dto.SubscriptionStatusResponse{
		Active:       sub.IsActiveAt(s.now()),
		PeriodEnd:    &periodEnd,
		Subscription: toSubscriptionResponse(sub),
	}, nil
}

func (s *subscriptionService) VerifyPayment(ctx context.Context, userId uuid.UUID, req *dto.VerifyPaymentRequest) (*entity.VerificationResult, error) {
	evidence := entity.Evidence{
		OrderId:     strings.TrimSpace(req.OrderId),
		TxHash:      strings.TrimSpace(req.TxHash),
		ReferenceId: strings.TrimSpace(req.ReferenceId),
		Timestamp:   req.Timestamp,
	}
	method := evidence.Method()

	if result, err := s.checkRate(ctx, userId, method, evidence); result != nil || err != nil {
		return result, err
	}

	unlock := s.lockEvidence(ctx, evidence)
	defer unlock()

	result := s.verifier.Verify(ctx, userId, evidence)
	s.guard.Record(ctx, guard.Attempt{
		UserId:   userId,
		Method:   method,
		Evidence: evidence,
		Result:   result,
	})
	return result, nil
}

func (s *subscriptionService) ConfirmVerification(ctx context.Context, userId uuid.UUID, req *dto.ConfirmVerificationRequest) (*entity.VerificationResult, error) {
	evidence := entity.Evidence{
		OrderId:     strings.TrimSpace(req.OrderId),
		TxHash:      strings.TrimSpace(req.TxHash),
		ReferenceId: req.TransactionId.String(),
	}

	if result, err := s.checkRate(ctx, userId, entity.MethodConfirm, evidence); result != nil || err != nil {
		return result, err
	}

	if !req.Confirm {
		result := &entity.VerificationResult{
			Outcome: entity.OutcomeFailure,
			Message: "Okay, that payment was not applied. You can try again with your Order ID.",
		}
		s.guard.Record(ctx, guard.Attempt{
			UserId:   userId,
			Method:   entity.MethodConfirm,
			Evidence: evidence,
			Result:   result,
			Message:  "User rejected suggested payment",
			Details:  map[string]interface{}{"transaction_id": req.TransactionId.String()},
		})
		return result, nil
	}

	unlock := s.lockEvidence(ctx, evidence)
	defer unlock()

	result := s.verifier.ConfirmCandidate(ctx, userId, req.TransactionId, evidence)
	s.guard.Record(ctx, guard.Attempt{
		UserId:   userId,
		Method:   entity.MethodConfirm,
		Evidence: evidence,
		Result:   result,
		Details:  map[string]interface{}{"transaction_id": req.TransactionId.String()},
	})
	return result, nil
}

// checkRate returns a RATE_LIMITED result when the user has used up the window.
func (s *subscriptionService) checkRate(ctx context.Context, userId uuid.UUID, method entity.VerificationMethod, evidence entity.Evidence) (*entity.VerificationResult, error) {
	allowed, err := s.guard.Allow(ctx, userId)
	if err != nil {
		return nil, err
	}
	if allowed {
		return nil, nil
	}

	result := entity.Failed(entity.ErrRateLimited, "Too many verification attempts. Please wait a few minutes and try again.")
	s.guard.Record(ctx, guard.Attempt{
		UserId:   userId,
		Method:   method,
		Evidence: evidence,
		Result:   result,
	})
	s.logger.Warn(module, "Verification rate limited", map[string]interface{}{
		"user_id": userId,
		"method":  string(method),
	})
	return result, nil
}

// lockEvidence serialises work on the same evidence. Failing to lock is
// logged and the call proceeds unlocked.
func (s *subscriptionService) lockEvidence(ctx context.Context, evidence entity.Evidence) func() {
	var key string
	switch {
	case evidence.OrderId != "":
		key = "verify:order:" + evidence.OrderId
	case evidence.TxHash != "":
		key = "verify:tx:" + strings.ToLower(evidence.TxHash)
	}
	if key == "" || s.locker == nil {
		return func() {}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Verification.LockTTL)
	defer cancel()

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		s.logger.Warn(module, "Proceeding without evidence lock", map[string]interface{}{
			"error": err.Error(),
		})
		return func() {}
	}
	return unlock
}

func (s *subscriptionService) GetPendingPayments(ctx context.Context, userId uuid.UUID) ([]*dto.PendingPaymentResponse, error) {
	rows, err := s.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.TransactionStatusIs{Status: entity.TransactionStatusInitiated},
		specification.CreatedSince{Since: s.now().Add(-s.cfg.Verification.PendingListWindow)},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.PendingPaymentResponse, 0, len(rows))
	for _, row := range rows {
		res = append(res, toPendingPaymentResponse(row))
	}
	return res, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, userId uuid.UUID, reason string) (*dto.SubscriptionResponse, error) {
	sub, err := s.subscriptions.Cancel(ctx, userId, reason)
	if err != nil {
		return nil, err
	}
	return toSubscriptionResponse(sub), nil
}

func (s *subscriptionService) GetVerificationHistory(ctx context.Context, userId uuid.UUID) ([]*dto.VerificationHistoryResponse, error) {
	entries, err := s.guard.History(ctx, userId, 50)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.VerificationHistoryResponse, 0, len(entries))
	for _, e := range entries {
		res = append(res, &dto.VerificationHistoryResponse{
			Method:    string(e.Method),
			Evidence:  e.Evidence,
			Outcome:   string(e.Outcome),
			ErrorCode: e.ErrorCode,
			Severity:  string(e.Severity),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	return res, nil
}

func toSubscriptionResponse(sub *entity.Subscription) *dto.SubscriptionResponse {
	if sub == nil {
		return nil
	}
	res := &dto.SubscriptionResponse{
		Id:                 sub.Id,
		Plan:               sub.Plan,
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		Provider:           sub.Provider,
		ProviderOrderId:    sub.ProviderOrderId,
		TxHash:             sub.TxHash,
	}
	if sub.AmountUsdc.Valid {
		amount := sub.AmountUsdc.Decimal.StringFixed(2)
		res.AmountUsdc = &amount
	}
	return res
}

func toPendingPaymentResponse(row *entity.OnrampTransaction) *dto.PendingPaymentResponse {
	if row == nil {
		return nil
	}
	res := &dto.PendingPaymentResponse{
		Id:        row.Id,
		Type:      string(row.Type),
		Plan:      row.Plan,
		CreatedAt: row.CreatedAt,
	}
	if amount := pendingAmount(row); amount.Valid {
		formatted := amount.Decimal.StringFixed(2)
		res.Amount = &formatted
	}
	return res
}

const expectedAmountKey = "expected_amount"

// pendingAmount is the paid amount once known, otherwise the price quoted
// when the payment was started.
func pendingAmount(row *entity.OnrampTransaction) decimal.NullDecimal {
	if row.Amount.Valid {
		return row.Amount
	}
	raw, ok := row.Metadata[expectedAmountKey].(string)
	if !ok {
		return decimal.NullDecimal{}
	}
	expected, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(expected)
}

// ToVerificationResponse shapes a verification result for the API.
func ToVerificationResponse(result *entity.VerificationResult) *dto.VerificationResponse {
	res := &dto.VerificationResponse{
		Success: result.IsSuccess(),
		Message: result.Message,
	}
	switch result.Outcome {
	case entity.OutcomeSuccess:
		res.Subscription = toSubscriptionResponse(result.Subscription)
	case entity.OutcomeNeedsConfirmation:
		res.NeedsConfirmation = true
		res.Transaction = toPendingPaymentResponse(result.Candidate)
	default:
		res.Error = string(result.ErrorCode())
	}
	return res
}
