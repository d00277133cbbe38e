package contract

import (
	"context"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"
)

// OnrampTransactionRepository is the payment ledger. Finders return nil, nil
// when no row matches so callers can tell absence from failure.
type OnrampTransactionRepository interface {
	Create(ctx context.Context, transaction *entity.OnrampTransaction) error
	// UpdateByRecognitionId applies patch (always stamping updated_at) to the
	// row, restricted further by guards, and reports how many rows changed.
	UpdateByRecognitionId(ctx context.Context, recognitionId string, patch entity.TransactionPatch, guards ...specification.Specification) (int64, error)
	FindByRecognitionId(ctx context.Context, recognitionId string) (*entity.OnrampTransaction, error)
	FindByOrderId(ctx context.Context, orderId string) (*entity.OnrampTransaction, error)
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.OnrampTransaction, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.OnrampTransaction, error)
}
