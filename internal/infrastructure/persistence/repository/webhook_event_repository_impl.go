package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// WebhookEventRepositoryImpl implements WebhookEventRepository using pgxpool
type WebhookEventRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepositoryImpl {
	return &WebhookEventRepositoryImpl{
		pool: pool,
	}
}

// Record journals a delivery; redeliveries are ignored
func (r *WebhookEventRepositoryImpl) Record(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (provider, event_id, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, event_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, event.Provider, event.EventID, event.EventType, event.Payload, event.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkProcessed stamps the outcome of the latest processing attempt
func (r *WebhookEventRepositoryImpl) MarkProcessed(ctx context.Context, provider entity.Provider, eventID string, processingErr string) error {
	query := `
		UPDATE webhook_events
		SET processed_at = now(), processing_error = NULLIF($3, '')
		WHERE provider = $1 AND event_id = $2
	`
	_, err := r.pool.Exec(ctx, query, provider, eventID, processingErr)
	return err
}

// AuditLogRepositoryImpl implements AuditLogRepository using pgxpool
type AuditLogRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(pool *pgxpool.Pool) *AuditLogRepositoryImpl {
	return &AuditLogRepositoryImpl{
		pool: pool,
	}
}

// Insert logs an admin action
func (r *AuditLogRepositoryImpl) Insert(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO admin_audit_log (
			id, actor_id, action, target_type, target_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID, entry.Details, entry.CreatedAt,
	)
	return err
}
