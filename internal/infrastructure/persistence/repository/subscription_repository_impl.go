package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

const subscriptionColumns = `
	id, user_id, plan_id, provider, external_id, status,
	current_period_start, current_period_end, last_event_at, created_at, updated_at`

// entitledClause renders the entitlement predicate. The status list is bound
// from valueobject.EntitledStatuses so SQL and Go share one definition.
func entitledClause(statusesArg, asOfArg int) string {
	return fmt.Sprintf("lower(btrim(status)) = ANY($%d::text[]) AND current_period_end >= $%d", statusesArg, asOfArg)
}

// SubscriptionRepositoryImpl implements SubscriptionRepository using pgxpool
type SubscriptionRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepositoryImpl {
	return &SubscriptionRepositoryImpl{
		pool: pool,
	}
}

func scanSubscription(row pgx.Row) (*entity.Subscription, error) {
	s := &entity.Subscription{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.Provider, &s.ExternalID, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.CurrentPeriodStart = s.CurrentPeriodStart.UTC()
	s.CurrentPeriodEnd = s.CurrentPeriodEnd.UTC()
	return s, nil
}

func (r *SubscriptionRepositoryImpl) collect(rows pgx.Rows, err error) ([]*entity.Subscription, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []*entity.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// UpsertByExternalID writes the full row in a single INSERT ... ON CONFLICT.
// Concurrent deliveries for the same external ID serialize on the unique
// index; the WHERE clause drops events older than the stored one.
func (r *SubscriptionRepositoryImpl) UpsertByExternalID(ctx context.Context, sub *entity.Subscription) (*entity.Subscription, error) {
	query := `
		INSERT INTO subscriptions (
			id, user_id, plan_id, provider, external_id, status,
			current_period_start, current_period_end, last_event_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (external_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			last_event_at = COALESCE(EXCLUDED.last_event_at, subscriptions.last_event_at),
			updated_at = now()
		WHERE subscriptions.last_event_at IS NULL
			OR EXCLUDED.last_event_at IS NULL
			OR subscriptions.last_event_at <= EXCLUDED.last_event_at
		RETURNING` + subscriptionColumns

	stored, err := scanSubscription(r.pool.QueryRow(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, sub.Provider, sub.ExternalID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.LastEventAt,
	))
	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, domainErrors.ErrStaleEvent
	case isForeignKeyViolation(err):
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrReferentialIntegrity, err)
	default:
		return nil, fmt.Errorf("failed to upsert subscription: %w", err)
	}
}

// UpdateStatusByExternalID changes only the status of the matching row
func (r *SubscriptionRepositoryImpl) UpdateStatusByExternalID(ctx context.Context, externalID string, status valueobject.SubscriptionStatus, occurredAt *time.Time) (*entity.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET status = $2, last_event_at = COALESCE($3, last_event_at), updated_at = now()
		WHERE external_id = $1
			AND (last_event_at IS NULL OR $3::timestamptz IS NULL OR last_event_at <= $3)
		RETURNING` + subscriptionColumns

	stored, err := scanSubscription(r.pool.QueryRow(ctx, query, externalID, status, occurredAt))
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}

	// Nothing updated: either the row is missing or the event is stale.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE external_id = $1)`, externalID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check subscription: %w", err)
	}
	if exists {
		return nil, domainErrors.ErrStaleEvent
	}
	return nil, domainErrors.ErrSubscriptionNotFound
}

// GetByID retrieves a subscription by ID
func (r *SubscriptionRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entity.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domainErrors.NotFoundError{Entity: "subscription", ID: id.String(), Err: domainErrors.ErrSubscriptionNotFound}
	}
	return s, err
}

// GetByExternalID retrieves a subscription by provider subscription ID
func (r *SubscriptionRepositoryImpl) GetByExternalID(ctx context.Context, externalID string) (*entity.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE external_id = $1`
	s, err := scanSubscription(r.pool.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domainErrors.NotFoundError{Entity: "subscription", ID: externalID, Err: domainErrors.ErrSubscriptionNotFound}
	}
	return s, err
}

// ListByUserID returns the user's full history, newest period first
func (r *SubscriptionRepositoryImpl) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY current_period_start DESC
	`
	return r.collect(r.pool.Query(ctx, query, userID))
}

// ListEntitledByUserID returns the user's rows granting entitlement at asOf
func (r *SubscriptionRepositoryImpl) ListEntitledByUserID(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*entity.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND ` + entitledClause(2, 3) + `
		ORDER BY current_period_end DESC
	`
	return r.collect(r.pool.Query(ctx, query, userID, valueobject.EntitledStatuses(), asOf))
}

// CountEntitledUsers counts distinct users, not rows
func (r *SubscriptionRepositoryImpl) CountEntitledUsers(ctx context.Context, asOf time.Time) (int64, error) {
	query := `SELECT COUNT(DISTINCT user_id) FROM subscriptions WHERE ` + entitledClause(1, 2)
	var n int64
	err := r.pool.QueryRow(ctx, query, valueobject.EntitledStatuses(), asOf).Scan(&n)
	return n, err
}

// CountEntitledSubscriptions counts entitled rows
func (r *SubscriptionRepositoryImpl) CountEntitledSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM subscriptions WHERE ` + entitledClause(1, 2)
	var n int64
	err := r.pool.QueryRow(ctx, query, valueobject.EntitledStatuses(), asOf).Scan(&n)
	return n, err
}

// ListUsersWithMultipleEntitled lists users holding more than one entitled row
func (r *SubscriptionRepositoryImpl) ListUsersWithMultipleEntitled(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM subscriptions
		WHERE ` + entitledClause(1, 2) + `
		GROUP BY user_id
		HAVING COUNT(*) > 1
		ORDER BY user_id
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, valueobject.EntitledStatuses(), asOf, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// UpdatePeriodEnd sets the period end if the period start is unchanged
func (r *SubscriptionRepositoryImpl) UpdatePeriodEnd(ctx context.Context, id uuid.UUID, expectedStart, periodEnd time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET current_period_end = $3, updated_at = now()
		WHERE id = $1 AND current_period_start = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, expectedStart, periodEnd)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListIDsAfter pages subscription IDs in ID order
func (r *SubscriptionRepositoryImpl) ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM subscriptions WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Delete hard-deletes a subscription
func (r *SubscriptionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domainErrors.NotFoundError{Entity: "subscription", ID: id.String(), Err: domainErrors.ErrSubscriptionNotFound}
	}
	return nil
}
