package implementation

import (
	"context"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/mapper"
	"course-subscription-be/internal/model"
	"course-subscription-be/internal/repository/contract"
	"course-subscription-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationLogRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.VerificationLogMapper
}

func NewVerificationLogRepository(db *gorm.DB) contract.VerificationLogRepository {
	return &VerificationLogRepositoryImpl{
		db:     db,
		mapper: mapper.NewVerificationLogMapper(),
	}
}

func (r *VerificationLogRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *VerificationLogRepositoryImpl) Create(ctx context.Context, entry *entity.VerificationLog) error {
	if entry.Id == uuid.Nil {
		entry.Id = uuid.New()
	}
	m := r.mapper.ToModel(entry)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*entry = *r.mapper.ToEntity(m)
	return nil
}

func (r *VerificationLogRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.PaymentVerificationLog{}), specs...)
	err := query.Count(&count).Error
	return count, err
}

func (r *VerificationLogRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.VerificationLog, error) {
	var models []*model.PaymentVerificationLog
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.VerificationLog, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}
