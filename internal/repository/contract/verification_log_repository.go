package contract

import (
	"context"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/repository/specification"
)

type VerificationLogRepository interface {
	Create(ctx context.Context, entry *entity.VerificationLog) error
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.VerificationLog, error)
}
