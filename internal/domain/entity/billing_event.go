package entity

import (
	"time"
)

// SubscriptionEvent is a provider subscription created/updated notification
// after the adapter has verified and normalized it.
type SubscriptionEvent struct {
	Provider               Provider
	EventID                string
	ExternalSubscriptionID string
	ExternalPlanID         string
	// CustomerRef is the provider's customer identifier (Stripe customer ID,
	// Hotmart buyer email).
	CustomerRef             string
	RawStatus               string
	PeriodStartEpochSeconds int64
	// PeriodEndEpochSeconds may be 0 when the provider omits it; the end is
	// then derived from the plan.
	PeriodEndEpochSeconds int64
	CancelAtPeriodEnd     bool
	// OccurredAt is when the provider generated the event. Zero disables the
	// stale-event guard.
	OccurredAt time.Time
}

// PlanRef returns the catalog key the event refers to.
func (e SubscriptionEvent) PlanRef() PlanRef {
	return PlanRef{Provider: e.Provider, ExternalID: e.ExternalPlanID}
}

// PeriodStart converts the provider epoch seconds to UTC.
func (e SubscriptionEvent) PeriodStart() time.Time {
	return time.Unix(e.PeriodStartEpochSeconds, 0).UTC()
}

// PeriodEnd converts the provider epoch seconds to UTC; ok is false when the
// provider sent no end.
func (e SubscriptionEvent) PeriodEnd() (end time.Time, ok bool) {
	if e.PeriodEndEpochSeconds == 0 {
		return time.Time{}, false
	}
	return time.Unix(e.PeriodEndEpochSeconds, 0).UTC(), true
}

// CancellationEvent ends (or schedules the end of) a subscription. Only the
// status is touched.
type CancellationEvent struct {
	Provider               Provider
	EventID                string
	ExternalSubscriptionID string
	RawStatus              string
	OccurredAt             time.Time
}

// WebhookEvent is one verified provider delivery kept in the journal.
type WebhookEvent struct {
	Provider        Provider
	EventID         string
	EventType       string
	Payload         []byte
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ProcessingError string
}
