package implementation

import (
	"context"
	"errors"

	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/mapper"
	"course-subscription-be/internal/model"
	"course-subscription-be/internal/repository/contract"
	"course-subscription-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OnrampTransactionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.OnrampTransactionMapper
}

func NewOnrampTransactionRepository(db *gorm.DB) contract.OnrampTransactionRepository {
	return &OnrampTransactionRepositoryImpl{
		db:     db,
		mapper: mapper.NewOnrampTransactionMapper(),
	}
}

func (r *OnrampTransactionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *OnrampTransactionRepositoryImpl) Create(ctx context.Context, transaction *entity.OnrampTransaction) error {
	if transaction.Id == uuid.Nil {
		transaction.Id = uuid.New()
	}
	m := r.mapper.ToModel(transaction)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*transaction = *r.mapper.ToEntity(m)
	return nil
}

func (r *OnrampTransactionRepositoryImpl) UpdateByRecognitionId(ctx context.Context, recognitionId string, patch entity.TransactionPatch, guards ...specification.Specification) (int64, error) {
	updates := map[string]interface{}{
		"updated_at": r.db.NowFunc(),
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.OrderId != nil {
		updates["order_id"] = *patch.OrderId
	}
	if patch.TxHash != nil {
		updates["tx_hash"] = *patch.TxHash
	}
	if patch.Amount.Valid {
		updates["amount"] = patch.Amount
	}
	if patch.Metadata != nil {
		updates["metadata"] = datatypes.JSONMap(patch.Metadata)
	}

	query := r.db.WithContext(ctx).Model(&model.OnrampTransaction{}).
		Where("merchant_recognition_id = ?", recognitionId)
	query = r.applySpecifications(query, guards...)

	result := query.Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *OnrampTransactionRepositoryImpl) FindByRecognitionId(ctx context.Context, recognitionId string) (*entity.OnrampTransaction, error) {
	return r.FindOne(ctx, specification.ByRecognitionId{RecognitionId: recognitionId})
}

func (r *OnrampTransactionRepositoryImpl) FindByOrderId(ctx context.Context, orderId string) (*entity.OnrampTransaction, error) {
	return r.FindOne(ctx, specification.ByOrderId{OrderId: orderId})
}

func (r *OnrampTransactionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.OnrampTransaction, error) {
	var m model.OnrampTransaction
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *OnrampTransactionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.OnrampTransaction, error) {
	var models []*model.OnrampTransaction
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.OnrampTransaction, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}
