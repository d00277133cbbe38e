// Package guard rate-limits verification attempts and keeps their audit
// trail. The limiter reads the persisted trail, so it holds no process state.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/logger"
	"course-subscription-be/internal/repository/specification"
	"course-subscription-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

const module = "AUDIT"

// Alerter notifies operators about attempts that need human review.
type Alerter interface {
	SendOpsAlert(subject string, details map[string]interface{}) error
}

// Attempt is one verification attempt to be audited.
type Attempt struct {
	UserId   uuid.UUID
	Method   entity.VerificationMethod
	Evidence entity.Evidence
	Result   *entity.VerificationResult
	Severity entity.AuditSeverity
	Message  string
	Details  map[string]interface{}
}

type Guard struct {
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
	audit      logger.ILogger
	alerter    Alerter
	window     time.Duration
	max        int
	alerts     sync.WaitGroup
	now        func() time.Time
}

// New builds a Guard allowing max attempts per window. audit receives a copy
// of every entry; alerter may be nil.
func New(uowFactory unitofwork.RepositoryFactory, log logger.ILogger, audit logger.ILogger, alerter Alerter, window time.Duration, max int) *Guard {
	if audit == nil {
		audit = log
	}
	return &Guard{
		uowFactory: uowFactory,
		logger:     log,
		audit:      audit,
		alerter:    alerter,
		window:     window,
		max:        max,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Allow reports whether the user may attempt another verification. More
// than max attempts inside the window blocks the next one. IMPORTANT entries
// annotate an attempt already counted, so they are skipped.
func (g *Guard) Allow(ctx context.Context, userId uuid.UUID) (bool, error) {
	count, err := g.uowFactory.NewUnitOfWork(ctx).VerificationLogRepository().Count(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.Filter("severity", string(entity.SeverityInfo)),
		specification.CreatedSince{Since: g.now().Add(-g.window)},
	)
	if err != nil {
		return false, fmt.Errorf("count verification attempts: %w", err)
	}
	return count <= int64(g.max), nil
}

// Record persists attempt with its evidence masked. Failures are logged and
// swallowed; auditing never changes a verification outcome.
func (g *Guard) Record(ctx context.Context, attempt Attempt) {
	entry := &entity.VerificationLog{
		UserId:   attempt.UserId,
		Method:   attempt.Method,
		Evidence: MaskEvidence(attempt.Evidence),
		Outcome:  entity.OutcomeFailure,
		Severity: attempt.Severity,
		Message:  attempt.Message,
		Details:  attempt.Details,
	}
	if entry.Method == "" {
		entry.Method = attempt.Evidence.Method()
	}
	if entry.Severity == "" {
		entry.Severity = entity.SeverityInfo
	}
	if r := attempt.Result; r != nil {
		entry.Outcome = r.Outcome
		entry.ErrorCode = string(r.ErrorCode())
		if entry.Message == "" {
			entry.Message = r.Message
		}
	}

	if err := g.uowFactory.NewUnitOfWork(ctx).VerificationLogRepository().Create(ctx, entry); err != nil {
		g.logger.Error(module, "Failed to persist verification audit entry", map[string]interface{}{
			"user_id": attempt.UserId,
			"error":   err.Error(),
		})
	}

	fields := map[string]interface{}{
		"user_id":    entry.UserId,
		"method":     string(entry.Method),
		"evidence":   entry.Evidence,
		"outcome":    string(entry.Outcome),
		"error_code": entry.ErrorCode,
		"severity":   string(entry.Severity),
		"details":    entry.Details,
	}
	if entry.Severity == entity.SeverityImportant {
		g.audit.Warn(module, entry.Message, fields)
		g.alert(entry, fields)
		return
	}
	g.audit.Info(module, entry.Message, fields)
}

// Important records an attempt that could not be independently corroborated.
func (g *Guard) Important(ctx context.Context, userId uuid.UUID, evidence entity.Evidence, message string, details map[string]interface{}) {
	g.Record(ctx, Attempt{
		UserId:   userId,
		Evidence: evidence,
		Result:   &entity.VerificationResult{Outcome: entity.OutcomeSuccess, Message: message},
		Severity: entity.SeverityImportant,
		Message:  message,
		Details:  details,
	})
}

func (g *Guard) alert(entry *entity.VerificationLog, fields map[string]interface{}) {
	if g.alerter == nil {
		return
	}
	g.alerts.Add(1)
	go func() {
		defer g.alerts.Done()
		if err := g.alerter.SendOpsAlert("Payment verification needs review: "+entry.Message, fields); err != nil {
			g.logger.Warn(module, "Failed to send ops alert", map[string]interface{}{
				"user_id": entry.UserId,
				"error":   err.Error(),
			})
		}
	}()
}

// Wait blocks until pending alerts are sent or ctx is done.
func (g *Guard) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.alerts.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// History returns the user's audit entries, newest first.
func (g *Guard) History(ctx context.Context, userId uuid.UUID, limit int) ([]*entity.VerificationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return g.uowFactory.NewUnitOfWork(ctx).VerificationLogRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	)
}
