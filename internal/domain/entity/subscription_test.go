package entity_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

func monthlyPlan() *entity.Plan {
	return &entity.Plan{
		ID:            uuid.New(),
		Provider:      entity.ProviderStripe,
		ExternalID:    "price_monthly_brl",
		Currency:      "BRL",
		Interval:      valueobject.IntervalMonth,
		IntervalCount: 1,
		Amount:        2990,
		Active:        true,
	}
}

func TestSubscriptionEntity(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("NewSubscription stores UTC period", func(t *testing.T) {
		start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
		sub := entity.NewSubscription(uuid.New(), uuid.New(), entity.ProviderStripe, "sub_1",
			valueobject.StatusActive, start, start.AddDate(0, 1, 0))

		assert.NotEqual(t, uuid.Nil, sub.ID)
		assert.Equal(t, time.UTC, sub.CurrentPeriodStart.Location())
		assert.Nil(t, sub.LastEventAt)
	})

	t.Run("GrantsEntitlementAt for entitled statuses", func(t *testing.T) {
		for _, status := range []valueobject.SubscriptionStatus{"active", "trialing", "cancel_at_period_end", "ACTIVE"} {
			sub := &entity.Subscription{Status: status, CurrentPeriodEnd: now.Add(time.Hour)}
			assert.True(t, sub.GrantsEntitlementAt(now), "status %s", status)
		}
	})

	t.Run("GrantsEntitlementAt includes the exact period end", func(t *testing.T) {
		sub := &entity.Subscription{Status: valueobject.StatusActive, CurrentPeriodEnd: now}
		assert.True(t, sub.GrantsEntitlementAt(now))
		assert.False(t, sub.GrantsEntitlementAt(now.Add(time.Second)))
	})

	t.Run("GrantsEntitlementAt false for canceled and past_due", func(t *testing.T) {
		for _, status := range []valueobject.SubscriptionStatus{"canceled", "past_due", "incomplete"} {
			sub := &entity.Subscription{Status: status, CurrentPeriodEnd: now.AddDate(0, 1, 0)}
			assert.False(t, sub.GrantsEntitlementAt(now), "status %s", status)
		}
	})

	t.Run("HasPeriodDrift detects wrong end", func(t *testing.T) {
		sub := &entity.Subscription{
			CurrentPeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			CurrentPeriodEnd:   time.Date(2024, 5, 25, 0, 0, 0, 0, time.UTC),
		}
		assert.True(t, sub.HasPeriodDrift(monthlyPlan()))
		expected, ok := sub.ExpectedPeriodEnd(monthlyPlan())
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), expected)
	})

	t.Run("HasPeriodDrift ignores time of day", func(t *testing.T) {
		sub := &entity.Subscription{
			CurrentPeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			CurrentPeriodEnd:   time.Date(2024, 6, 1, 23, 59, 59, 0, time.UTC),
		}
		assert.False(t, sub.HasPeriodDrift(monthlyPlan()))
	})

	t.Run("Trialing period ends with the plan trial", func(t *testing.T) {
		plan := monthlyPlan()
		days := 7
		plan.TrialPeriodDays = &days
		sub := &entity.Subscription{
			Status:             valueobject.StatusTrialing,
			CurrentPeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			CurrentPeriodEnd:   time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
		}
		assert.False(t, sub.HasPeriodDrift(plan))

		sub.CurrentPeriodEnd = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		assert.True(t, sub.HasPeriodDrift(plan))
		expected, ok := sub.ExpectedPeriodEnd(plan)
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC), expected)
	})

	t.Run("Trialing without plan trial length never drifts", func(t *testing.T) {
		sub := &entity.Subscription{
			Status:             valueobject.StatusTrialing,
			CurrentPeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			CurrentPeriodEnd:   time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC),
		}
		_, ok := sub.ExpectedPeriodEnd(monthlyPlan())
		assert.False(t, ok)
		assert.False(t, sub.HasPeriodDrift(monthlyPlan()))
	})

	t.Run("admin external IDs are recognized", func(t *testing.T) {
		sub := &entity.Subscription{ExternalID: entity.NewAdminExternalID()}
		assert.True(t, sub.IsAdminGranted())

		sub.ExternalID = "sub_1Pxyz"
		assert.False(t, sub.IsAdminGranted())
	})
}

func TestSubscriptionEventPeriods(t *testing.T) {
	evt := entity.SubscriptionEvent{PeriodStartEpochSeconds: 1706659200} // 2024-01-31T00:00:00Z

	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), evt.PeriodStart())
	_, ok := evt.PeriodEnd()
	assert.False(t, ok)

	evt.PeriodEndEpochSeconds = 1709164800 // 2024-02-29T00:00:00Z
	end, ok := evt.PeriodEnd()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), end)
}
