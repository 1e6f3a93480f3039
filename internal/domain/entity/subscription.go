package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// AdminExternalIDPrefix marks external IDs minted for back-office grants.
const AdminExternalIDPrefix = "admin_"

type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	PlanID             uuid.UUID
	Provider           Provider
	ExternalID         string
	Status             valueobject.SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	// LastEventAt is the provider time of the last applied event; nil for
	// rows written without one (admin grants, legacy imports).
	LastEventAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSubscription creates a new subscription entity
func NewSubscription(userID, planID uuid.UUID, provider Provider, externalID string, status valueobject.SubscriptionStatus, periodStart, periodEnd time.Time) *Subscription {
	now := time.Now().UTC()
	return &Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanID:             planID,
		Provider:           provider,
		ExternalID:         externalID,
		Status:             status,
		CurrentPeriodStart: periodStart.UTC(),
		CurrentPeriodEnd:   periodEnd.UTC(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NewAdminExternalID returns a synthetic external ID for a manual grant.
func NewAdminExternalID() string {
	return AdminExternalIDPrefix + uuid.NewString()
}

// IsAdminGranted returns true if the row was created from the back-office
func (s *Subscription) IsAdminGranted() bool {
	return strings.HasPrefix(s.ExternalID, AdminExternalIDPrefix)
}

// GrantsEntitlementAt is the premium predicate: an entitled status and a
// period that has not ended at asOf.
func (s *Subscription) GrantsEntitlementAt(asOf time.Time) bool {
	return s.Status.IsEntitled() && !s.CurrentPeriodEnd.Before(asOf)
}

// ExpectedPeriodEnd recomputes the period end from the start and plan rules.
// A trialing row ends with the plan's trial; when the plan has no trial
// length the provider's end cannot be derived and ok is false.
func (s *Subscription) ExpectedPeriodEnd(plan *Plan) (end time.Time, ok bool) {
	if valueobject.NormalizeSubscriptionStatus(string(s.Status)) == valueobject.StatusTrialing {
		return plan.TrialEnd(s.CurrentPeriodStart)
	}
	return plan.PeriodEnd(s.CurrentPeriodStart), true
}

// HasPeriodDrift reports whether the stored period end disagrees with the
// plan rules at day granularity. Rows without a derivable end never drift.
func (s *Subscription) HasPeriodDrift(plan *Plan) bool {
	expected, ok := s.ExpectedPeriodEnd(plan)
	return ok && !SameDay(s.CurrentPeriodEnd, expected)
}

// SameDay compares two instants by UTC calendar date, ignoring time-of-day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
