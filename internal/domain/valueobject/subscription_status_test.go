package valueobject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

func TestNormalizeSubscriptionStatus(t *testing.T) {
	assert.Equal(t, valueobject.StatusActive, valueobject.NormalizeSubscriptionStatus("ACTIVE"))
	assert.Equal(t, valueobject.StatusTrialing, valueobject.NormalizeSubscriptionStatus(" Trialing "))
	assert.Equal(t, valueobject.StatusCanceled, valueobject.NormalizeSubscriptionStatus("Cancelled"))
	assert.Equal(t, valueobject.SubscriptionStatus("incomplete"), valueobject.NormalizeSubscriptionStatus("incomplete"))
}

func TestSubscriptionStatusIsEntitled(t *testing.T) {
	tests := []struct {
		status valueobject.SubscriptionStatus
		want   bool
	}{
		{"active", true},
		{"TRIALING", true},
		{"cancel_at_period_end", true},
		{"Cancel_At_Period_End", true},
		{" active ", true},
		{"past_due", false},
		{"canceled", false},
		{"incomplete", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsEntitled(), "status %q", tt.status)
	}
}

func TestEntitledStatuses(t *testing.T) {
	assert.ElementsMatch(t, []string{"active", "trialing", "cancel_at_period_end"}, valueobject.EntitledStatuses())
}

func TestSubscriptionStatus_IsKnown(t *testing.T) {
	assert.True(t, valueobject.SubscriptionStatus("Past_Due").IsKnown())
	assert.True(t, valueobject.SubscriptionStatus("cancelled").IsKnown())
	assert.False(t, valueobject.SubscriptionStatus("incomplete").IsKnown())
	assert.False(t, valueobject.SubscriptionStatus("").IsKnown())
}
