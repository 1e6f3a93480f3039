package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxAnomalies caps the user list in a consistency report.
const maxAnomalies = 100

// ConsistencyReport compares the distinct premium count with the raw
// entitled row count and lists the users that explain the difference.
type ConsistencyReport struct {
	AsOf                      time.Time   `json:"as_of"`
	PremiumUsers              int64       `json:"premium_users"`
	EntitledSubscriptions     int64       `json:"entitled_subscriptions"`
	UsersWithMultipleActive   []uuid.UUID `json:"users_with_multiple_active"`
	MultipleActiveListLimited bool        `json:"multiple_active_list_limited"`
}

// EntitlementResolver answers "is this user premium". Every caller goes
// through it; nobody re-derives the predicate.
type EntitlementResolver struct {
	ledger *SubscriptionLedger
}

// NewEntitlementResolver creates a new entitlement resolver
func NewEntitlementResolver(ledger *SubscriptionLedger) *EntitlementResolver {
	return &EntitlementResolver{ledger: ledger}
}

// IsPremium reports whether the user has any entitled subscription at asOf
// (now when zero).
func (e *EntitlementResolver) IsPremium(ctx context.Context, userID uuid.UUID, asOf time.Time) (bool, error) {
	subs, err := e.ledger.ListActiveSubscriptionsForUser(ctx, userID, asOf)
	if err != nil {
		return false, err
	}
	return len(subs) > 0, nil
}

// CountPremiumUsers counts distinct premium users at asOf (now when zero).
func (e *EntitlementResolver) CountPremiumUsers(ctx context.Context, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	n, err := e.ledger.CountEntitledUsers(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to count premium users: %w", err)
	}
	return n, nil
}

// ConsistencyReport runs the validation queries behind the admin stats page.
func (e *EntitlementResolver) ConsistencyReport(ctx context.Context, asOf time.Time) (*ConsistencyReport, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	users, err := e.CountPremiumUsers(ctx, asOf)
	if err != nil {
		return nil, err
	}

	rows, err := e.ledger.CountEntitledSubscriptions(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to count entitled subscriptions: %w", err)
	}

	multi, err := e.ledger.UsersWithMultipleActive(ctx, asOf, maxAnomalies+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list users with multiple subscriptions: %w", err)
	}

	report := &ConsistencyReport{
		AsOf:                    asOf.UTC(),
		PremiumUsers:            users,
		EntitledSubscriptions:   rows,
		UsersWithMultipleActive: multi,
	}
	if len(multi) > maxAnomalies {
		report.UsersWithMultipleActive = multi[:maxAnomalies]
		report.MultipleActiveListLimited = true
	}
	return report, nil
}
