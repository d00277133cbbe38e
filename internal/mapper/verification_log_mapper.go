package mapper

import (
	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/model"

	"gorm.io/datatypes"
)

type VerificationLogMapper struct{}

func NewVerificationLogMapper() *VerificationLogMapper {
	return &VerificationLogMapper{}
}

func (m *VerificationLogMapper) ToEntity(l *model.PaymentVerificationLog) *entity.VerificationLog {
	if l == nil {
		return nil
	}
	return &entity.VerificationLog{
		Id:        l.Id,
		UserId:    l.UserId,
		Method:    entity.VerificationMethod(l.Method),
		Evidence:  l.Evidence,
		Outcome:   entity.VerificationOutcome(l.Outcome),
		ErrorCode: l.ErrorCode,
		Severity:  entity.AuditSeverity(l.Severity),
		Message:   l.Message,
		Details:   map[string]interface{}(l.Details),
		CreatedAt: l.CreatedAt,
	}
}

func (m *VerificationLogMapper) ToModel(l *entity.VerificationLog) *model.PaymentVerificationLog {
	if l == nil {
		return nil
	}
	return &model.PaymentVerificationLog{
		Id:        l.Id,
		UserId:    l.UserId,
		Method:    string(l.Method),
		Evidence:  l.Evidence,
		Outcome:   string(l.Outcome),
		ErrorCode: l.ErrorCode,
		Severity:  string(l.Severity),
		Message:   l.Message,
		Details:   datatypes.JSONMap(l.Details),
		CreatedAt: l.CreatedAt,
	}
}
