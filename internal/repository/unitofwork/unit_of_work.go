package unitofwork

import (
	"context"

	"course-subscription-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	OnrampTransactionRepository() contract.OnrampTransactionRepository
	SubscriptionRepository() contract.SubscriptionRepository
	VerificationLogRepository() contract.VerificationLogRepository
}
