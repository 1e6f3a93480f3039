package valueobject

import (
	"strings"
)

// SubscriptionStatus is the normalized, lower-case subscription state.
// Unknown provider states (e.g. "incomplete", "unpaid") are kept verbatim
// after normalization; they simply never grant entitlement.
type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCancelAtPeriodEnd SubscriptionStatus = "cancel_at_period_end"
	StatusCanceled          SubscriptionStatus = "canceled"
)

// entitledStatuses is the one list of states that keep a user premium
// while the period has not ended.
var entitledStatuses = []SubscriptionStatus{
	StatusActive,
	StatusTrialing,
	StatusCancelAtPeriodEnd,
}

// NormalizeSubscriptionStatus trims and lower-cases a provider status and
// folds the British spelling of canceled.
func NormalizeSubscriptionStatus(raw string) SubscriptionStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "cancelled" {
		s = string(StatusCanceled)
	}
	return SubscriptionStatus(s)
}

// String returns the string representation of the status
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsEntitled reports whether the status belongs to the entitled set.
// Comparison is case-insensitive so rows written before normalization
// still resolve the same way.
func (s SubscriptionStatus) IsEntitled() bool {
	n := NormalizeSubscriptionStatus(string(s))
	for _, e := range entitledStatuses {
		if n == e {
			return true
		}
	}
	return false
}

// IsTerminated returns true if the subscription ended immediately
func (s SubscriptionStatus) IsTerminated() bool {
	return NormalizeSubscriptionStatus(string(s)) == StatusCanceled
}

// EntitledStatuses returns the entitled set as plain strings, for binding
// into storage queries.
func EntitledStatuses() []string {
	out := make([]string, len(entitledStatuses))
	for i, s := range entitledStatuses {
		out[i] = string(s)
	}
	return out
}

// IsKnown reports whether the status is one the ledger writes itself.
func (s SubscriptionStatus) IsKnown() bool {
	switch NormalizeSubscriptionStatus(string(s)) {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCancelAtPeriodEnd, StatusCanceled:
		return true
	}
	return false
}
