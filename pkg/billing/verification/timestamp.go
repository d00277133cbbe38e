package verification

import (
	"context"
	"strings"
	"time"

	"course-subscription-be/internal/entity"

	"github.com/google/uuid"
)

// VerifyByTimestamp looks for a pending payment started near ts. It never
// activates: a match is returned for confirmation with stronger evidence.
// referenceId, when given, narrows the match to a transaction id or
// recognition id.
func (e *Engine) VerifyByTimestamp(ctx context.Context, userId uuid.UUID, ts time.Time, referenceId string) (*entity.VerificationResult, error) {
	ctx, span := e.startSpan(ctx, "verification.VerifyByTimestamp", userId)
	defer span.End()

	if ts.IsZero() {
		return entity.Failed(entity.ErrMissingOrderId, "Please provide the time of your payment."), nil
	}

	window := e.cfg.TimestampWindow
	candidates, err := e.pendingBetween(ctx, userId, ts.Add(-window), ts.Add(window))
	if err != nil {
		return nil, err
	}

	if ref := strings.TrimSpace(referenceId); ref != "" {
		var narrowed []*entity.OnrampTransaction
		for _, c := range candidates {
			if c.Id.String() == ref || c.MerchantRecognitionId == ref {
				narrowed = append(narrowed, c)
			}
		}
		candidates = narrowed
	}

	switch len(candidates) {
	case 0:
		return entity.Failed(entity.ErrNoMatchingTransaction, "No pending payment was started around that time."), nil
	case 1:
		return entity.NeedsConfirmation(candidates[0],
			"We found a pending payment from around that time. Confirm it with your Order ID or transaction hash."), nil
	default:
		return entity.Failed(entity.ErrMultiplePending, "Several pending payments were started around that time. Please use your Order ID instead."), nil
	}
}
