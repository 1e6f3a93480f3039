package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// SubscriptionRepository defines the interface for the subscription ledger store
type SubscriptionRepository interface {
	// UpsertByExternalID writes every mutable field in one atomic statement
	// keyed by the external ID. When the stored LastEventAt is newer than the
	// incoming one nothing is written and ErrStaleEvent is returned.
	UpsertByExternalID(ctx context.Context, sub *entity.Subscription) (*entity.Subscription, error)

	// UpdateStatusByExternalID changes only the status (and event time).
	// Returns ErrSubscriptionNotFound or ErrStaleEvent.
	UpdateStatusByExternalID(ctx context.Context, externalID string, status valueobject.SubscriptionStatus, occurredAt *time.Time) (*entity.Subscription, error)

	GetByID(ctx context.Context, id uuid.UUID) (*entity.Subscription, error)
	GetByExternalID(ctx context.Context, externalID string) (*entity.Subscription, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Subscription, error)

	// ListEntitledByUserID returns the user's rows satisfying the entitlement
	// predicate at asOf.
	ListEntitledByUserID(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*entity.Subscription, error)

	// CountEntitledUsers counts distinct users with at least one entitled row.
	CountEntitledUsers(ctx context.Context, asOf time.Time) (int64, error)
	CountEntitledSubscriptions(ctx context.Context, asOf time.Time) (int64, error)
	ListUsersWithMultipleEntitled(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error)

	// UpdatePeriodEnd sets the period end only if the period start still
	// equals expectedStart. Returns false when the row changed underneath.
	UpdatePeriodEnd(ctx context.Context, id uuid.UUID, expectedStart, periodEnd time.Time) (bool, error)

	// ListIDsAfter pages through all subscription IDs in ID order.
	ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)

	Delete(ctx context.Context, id uuid.UUID) error
}
