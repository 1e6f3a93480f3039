package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
)

// AuditService handles logging admin actions
type AuditService struct {
	repo repository.AuditLogRepository
}

// NewAuditService creates a new audit service
func NewAuditService(repo repository.AuditLogRepository) *AuditService {
	return &AuditService{
		repo: repo,
	}
}

// LogAction logs an admin action to the audit log
func (s *AuditService) LogAction(ctx context.Context, actorID, action, targetType, targetID string, details map[string]interface{}) error {
	return s.repo.Insert(ctx, &entity.AuditEntry{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	})
}
