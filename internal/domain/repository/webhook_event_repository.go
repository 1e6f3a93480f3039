package repository

import (
	"context"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// WebhookEventRepository journals verified provider deliveries
type WebhookEventRepository interface {
	// Record stores the delivery; a redelivery of the same (provider, event ID)
	// is not an error and reports inserted=false.
	Record(ctx context.Context, event *entity.WebhookEvent) (inserted bool, err error)
	MarkProcessed(ctx context.Context, provider entity.Provider, eventID string, processingErr string) error
}

// AuditLogRepository persists admin actions
type AuditLogRepository interface {
	Insert(ctx context.Context, entry *entity.AuditEntry) error
}
