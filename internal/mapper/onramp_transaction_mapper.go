package mapper

import (
	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/model"

	"gorm.io/datatypes"
)

type OnrampTransactionMapper struct{}

func NewOnrampTransactionMapper() *OnrampTransactionMapper {
	return &OnrampTransactionMapper{}
}

func (m *OnrampTransactionMapper) ToEntity(t *model.OnrampTransaction) *entity.OnrampTransaction {
	if t == nil {
		return nil
	}
	return &entity.OnrampTransaction{
		Id:                    t.Id,
		UserId:                t.UserId,
		MerchantRecognitionId: t.MerchantRecognitionId,
		OrderId:               t.OrderId,
		WalletAddress:         t.WalletAddress,
		Status:                entity.TransactionStatus(t.Status),
		Type:                  entity.PaymentType(t.Type),
		Plan:                  t.Plan,
		Amount:                t.Amount,
		TxHash:                t.TxHash,
		Metadata:              map[string]interface{}(t.Metadata),
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func (m *OnrampTransactionMapper) ToModel(t *entity.OnrampTransaction) *model.OnrampTransaction {
	if t == nil {
		return nil
	}
	return &model.OnrampTransaction{
		Id:                    t.Id,
		UserId:                t.UserId,
		MerchantRecognitionId: t.MerchantRecognitionId,
		OrderId:               t.OrderId,
		WalletAddress:         t.WalletAddress,
		Status:                string(t.Status),
		Type:                  string(t.Type),
		Plan:                  t.Plan,
		Amount:                t.Amount,
		TxHash:                t.TxHash,
		Metadata:              datatypes.JSONMap(t.Metadata),
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}
