package query

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/application/dto"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
)

// EntitlementQuery answers "is this user premium" for other backends
type EntitlementQuery struct {
	ledger *service.SubscriptionLedger
}

// NewEntitlementQuery creates a new entitlement query
func NewEntitlementQuery(ledger *service.SubscriptionLedger) *EntitlementQuery {
	return &EntitlementQuery{ledger: ledger}
}

// Execute resolves entitlement at asOf (now when zero). The entitled rows
// come back with the answer so callers can show the plan.
func (q *EntitlementQuery) Execute(ctx context.Context, userID string, asOf time.Time) (*dto.EntitlementResponse, error) {
	uid, err := parseID("user_id", userID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	subs, err := q.ledger.ListActiveSubscriptionsForUser(ctx, uid, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entitlement: %w", err)
	}

	return &dto.EntitlementResponse{
		UserID:        uid.String(),
		Premium:       len(subs) > 0,
		AsOf:          asOf.Format(time.RFC3339),
		Subscriptions: dto.NewSubscriptionResponses(subs),
	}, nil
}

// SubscriptionQuery lists a user's subscriptions
type SubscriptionQuery struct {
	ledger *service.SubscriptionLedger
}

// NewSubscriptionQuery creates a new subscription query
func NewSubscriptionQuery(ledger *service.SubscriptionLedger) *SubscriptionQuery {
	return &SubscriptionQuery{ledger: ledger}
}

// History returns every subscription the user has held
func (q *SubscriptionQuery) History(ctx context.Context, userID string) ([]*dto.SubscriptionResponse, error) {
	uid, err := parseID("user_id", userID)
	if err != nil {
		return nil, err
	}
	subs, err := q.ledger.ListUserSubscriptions(ctx, uid)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponses(subs), nil
}

// Active returns the user's entitled subscriptions at asOf
func (q *SubscriptionQuery) Active(ctx context.Context, userID string, asOf time.Time) ([]*dto.SubscriptionResponse, error) {
	uid, err := parseID("user_id", userID)
	if err != nil {
		return nil, err
	}
	subs, err := q.ledger.ListActiveSubscriptionsForUser(ctx, uid, asOf)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponses(subs), nil
}

// PlanQuery lists the catalog
type PlanQuery struct {
	catalog *service.PlanCatalog
}

// NewPlanQuery creates a new plan query
func NewPlanQuery(catalog *service.PlanCatalog) *PlanQuery {
	return &PlanQuery{catalog: catalog}
}

// List returns catalog entries
func (q *PlanQuery) List(ctx context.Context, activeOnly bool) ([]*dto.PlanResponse, error) {
	plans, err := q.catalog.ListPlans(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	return dto.NewPlanResponses(plans), nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domainErrors.ErrInvalidInput, field)
	}
	return id, nil
}
