// Package verification resolves client-supplied payment evidence to a ledger
// row, checks ownership and sufficiency, and hands it to the activation
// coordinator.
//
// Three strategies exist: Order ID (provider lookup), transaction hash
// (on-chain receipt) and timestamp (heuristic, never auto-activates). Verify
// dispatches only to the strategies enabled in Config; every strategy stays
// callable on its own.
package verification

import (
	"context"
	"errors"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/internal/pkg/metrics"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/internal/repository/unitofwork"
	"course-subscription-be/pkg/billing/activation"
	"course-subscription-be/pkg/chain"
	"course-subscription-be/pkg/payment/provider"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const module = "VERIFY"

var tracer = otel.Tracer("course-subscription-be/verification")

// Activator is the write side the engine delegates to.
type Activator interface {
	Activate(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, req activation.Request) (*entity.Subscription, error)
	Current(ctx context.Context, userId uuid.UUID) (*entity.Subscription, error)
}

// PaymentInspector reads on-chain payments. Implemented by *chain.Inspector.
type PaymentInspector interface {
	Configured() bool
	Inspect(ctx context.Context, txHash string) (*chain.Payment, error)
}

// Auditor records attempts that bypass independent corroboration.
type Auditor interface {
	Important(ctx context.Context, userId uuid.UUID, evidence entity.Evidence, message string, details map[string]interface{})
}

type Config struct {
	Price     decimal.Decimal
	Tolerance decimal.Decimal
	// PublicStrategies lists the methods Verify dispatches to.
	PublicStrategies []entity.VerificationMethod
	PendingLookback  time.Duration
	TxMatchWindow    time.Duration
	ExactPairWindow  time.Duration
	TimestampWindow  time.Duration
}

func (c Config) floor() decimal.Decimal {
	return c.Price.Sub(c.Tolerance)
}

type Engine struct {
	uowFactory unitofwork.RepositoryFactory
	provider   provider.OrderStatusClient
	chain      PaymentInspector
	activator  Activator
	auditor    Auditor
	logger     logger.ILogger
	metrics    *metrics.Recorder
	cfg        Config
	now        func() time.Time
}

type Dependencies struct {
	UnitOfWork unitofwork.RepositoryFactory
	Provider   provider.OrderStatusClient
	Chain      PaymentInspector
	Activator  Activator
	Auditor    Auditor
	Logger     logger.ILogger
	Metrics    *metrics.Recorder
}

func NewEngine(deps Dependencies, cfg Config) *Engine {
	if len(cfg.PublicStrategies) == 0 {
		cfg.PublicStrategies = []entity.VerificationMethod{entity.MethodOrderId}
	}
	if cfg.PendingLookback <= 0 {
		cfg.PendingLookback = 24 * time.Hour
	}
	if cfg.TxMatchWindow <= 0 {
		cfg.TxMatchWindow = 10 * time.Minute
	}
	if cfg.ExactPairWindow <= 0 {
		cfg.ExactPairWindow = time.Minute
	}
	if cfg.TimestampWindow <= 0 {
		cfg.TimestampWindow = 5 * time.Minute
	}
	return &Engine{
		uowFactory: deps.UnitOfWork,
		provider:   deps.Provider,
		chain:      deps.Chain,
		activator:  deps.Activator,
		auditor:    deps.Auditor,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Verify runs the strategy matching evidence. Unexpected errors are logged
// and reported as VERIFICATION_ERROR; the returned result is never nil.
func (e *Engine) Verify(ctx context.Context, userId uuid.UUID, evidence entity.Evidence) *entity.VerificationResult {
	method := evidence.Method()

	var (
		result *entity.VerificationResult
		err    error
	)
	switch {
	case !e.isPublic(method):
		result = entity.Failed(entity.ErrMissingOrderId, "Please provide the Order ID from your payment receipt.")
	case method == entity.MethodOrderId:
		result, err = e.VerifyByOrderId(ctx, userId, evidence.OrderId)
	case method == entity.MethodTxHash:
		result, err = e.VerifyByTxHash(ctx, userId, evidence.TxHash)
	case method == entity.MethodTimestamp:
		result, err = e.VerifyByTimestamp(ctx, userId, *evidence.Timestamp, evidence.ReferenceId)
	}

	return e.finish(method, userId, result, err)
}

func (e *Engine) finish(method entity.VerificationMethod, userId uuid.UUID, result *entity.VerificationResult, err error) *entity.VerificationResult {
	if err != nil {
		e.logger.Error(module, "Verification failed unexpectedly", map[string]interface{}{
			"user_id": userId,
			"method":  string(method),
			"error":   err.Error(),
		})
		result = entity.Failed(entity.ErrVerification, "We could not verify your payment right now. Please try again shortly.")
	}
	e.metrics.RecordVerification(string(method), string(result.Outcome), string(result.ErrorCode()))
	return result
}

func (e *Engine) isPublic(method entity.VerificationMethod) bool {
	for _, m := range e.cfg.PublicStrategies {
		if m == method {
			return true
		}
	}
	return false
}

func (e *Engine) startSpan(ctx context.Context, name string, userId uuid.UUID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("user.id", userId.String())))
}

// activate commits row and maps coordinator races onto the taxonomy.
// alreadyUsed is the code reported when another caller won the race.
func (e *Engine) activate(ctx context.Context, userId uuid.UUID, row *entity.OnrampTransaction, req activation.Request, alreadyUsed entity.VerificationErrorCode) (*entity.VerificationResult, error) {
	sub, err := e.activator.Activate(ctx, userId, row, req)
	switch {
	case err == nil:
		return entity.Succeeded(sub, "Payment verified. Your subscription is active."), nil
	case errors.Is(err, activation.ErrAlreadyActivated):
		return e.alreadyActivated(ctx, userId, row.MerchantRecognitionId, req, alreadyUsed)
	case errors.Is(err, activation.ErrOrderClaimed):
		return entity.Failed(alreadyUsed, "This payment has already been used."), nil
	default:
		return nil, err
	}
}

// alreadyActivated resolves a lost activation race: if the winner applied
// this same evidence for this user, the caller sees an idempotent success.
func (e *Engine) alreadyActivated(ctx context.Context, userId uuid.UUID, recognitionId string, req activation.Request, alreadyUsed entity.VerificationErrorCode) (*entity.VerificationResult, error) {
	row, err := e.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().FindByRecognitionId(ctx, recognitionId)
	if err != nil {
		return nil, err
	}
	sameEvidence := row != nil && row.UserId == userId &&
		((req.OrderId != "" && row.HasOrderId(req.OrderId)) || (req.TxHash != "" && row.TxHash != nil && *row.TxHash == req.TxHash))
	if !sameEvidence {
		return entity.Failed(alreadyUsed, "This payment has already been used."), nil
	}
	return e.idempotent(ctx, userId, alreadyUsed)
}

// idempotent reports success when the user's subscription is still active,
// otherwise the payment counts as spent.
func (e *Engine) idempotent(ctx context.Context, userId uuid.UUID, alreadyUsed entity.VerificationErrorCode) (*entity.VerificationResult, error) {
	sub, err := e.activator.Current(ctx, userId)
	if err != nil {
		return nil, err
	}
	if sub.IsActiveAt(e.now()) {
		result := entity.Succeeded(sub, "Payment already verified. Your subscription is active.")
		result.Idempotent = true
		return result, nil
	}
	return entity.Failed(alreadyUsed, "This payment was already applied to a subscription period that has ended."), nil
}

func (e *Engine) pendingSpecs(userId uuid.UUID) []specification.Specification {
	return []specification.Specification{
		specification.UserOwnedBy{UserID: userId},
		specification.TransactionStatusIs{Status: entity.TransactionStatusInitiated},
		specification.PaymentTypeIs{Type: entity.PaymentTypeSubscription},
	}
}

// pendingBetween lists the user's unresolved subscription payments created in [from, to].
func (e *Engine) pendingBetween(ctx context.Context, userId uuid.UUID, from, to time.Time) ([]*entity.OnrampTransaction, error) {
	specs := append(e.pendingSpecs(userId),
		specification.CreatedBetween{From: from.UTC(), To: to.UTC()},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	return e.uowFactory.NewUnitOfWork(ctx).OnrampTransactionRepository().FindAll(ctx, specs...)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// closest returns the row created nearest to t.
func closest(rows []*entity.OnrampTransaction, t time.Time) *entity.OnrampTransaction {
	var best *entity.OnrampTransaction
	for _, row := range rows {
		if best == nil || absDuration(row.CreatedAt.Sub(t)) < absDuration(best.CreatedAt.Sub(t)) {
			best = row
		}
	}
	return best
}
