package mapper

import (
	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/model"

	"gorm.io/datatypes"
)

type SubscriptionMapper struct{}

func NewSubscriptionMapper() *SubscriptionMapper {
	return &SubscriptionMapper{}
}

func (m *SubscriptionMapper) ToEntity(s *model.Subscription) *entity.Subscription {
	if s == nil {
		return nil
	}
	return &entity.Subscription{
		Id:                 s.Id,
		UserId:             s.UserId,
		Plan:               s.Plan,
		Status:             entity.SubscriptionStatus(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		Provider:           s.Provider,
		ProviderOrderId:    s.ProviderOrderId,
		TxHash:             s.TxHash,
		AmountUsdc:         s.AmountUsdc,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) ToModel(s *entity.Subscription) *model.Subscription {
	if s == nil {
		return nil
	}
	return &model.Subscription{
		Id:                 s.Id,
		UserId:             s.UserId,
		Plan:               s.Plan,
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		Provider:           s.Provider,
		ProviderOrderId:    s.ProviderOrderId,
		TxHash:             s.TxHash,
		AmountUsdc:         s.AmountUsdc,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) EventToEntity(e *model.SubscriptionEvent) *entity.SubscriptionEvent {
	if e == nil {
		return nil
	}
	return &entity.SubscriptionEvent{
		Id:             e.Id,
		SubscriptionId: e.SubscriptionId,
		EventType:      entity.SubscriptionEventType(e.EventType),
		Metadata:       map[string]interface{}(e.Metadata),
		CreatedAt:      e.CreatedAt,
	}
}

func (m *SubscriptionMapper) EventToModel(e *entity.SubscriptionEvent) *model.SubscriptionEvent {
	if e == nil {
		return nil
	}
	return &model.SubscriptionEvent{
		Id:             e.Id,
		SubscriptionId: e.SubscriptionId,
		EventType:      string(e.EventType),
		Metadata:       datatypes.JSONMap(e.Metadata),
		CreatedAt:      e.CreatedAt,
	}
}
