package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
	"github.com/mediz-app/mediz-billing/tests/testutil"
)

func TestEntitlementResolver(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewMemoryServices()
	plan := s.MustUpsertPlan(t, entity.ProviderStripe, "price_m", "BRL", valueobject.IntervalMonth, 1)
	asOf := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	put := func(email string, status valueobject.SubscriptionStatus, start, end time.Time) uuid.UUID {
		userID := s.Store.AddUser(email)
		s.Store.PutSubscription(testutil.NewSubscriptionRow(userID, plan, status, start, end))
		return userID
	}

	scheduled := put("scheduled@example.com", valueobject.StatusCancelAtPeriodEnd, day(2024, 6, 1), day(2024, 7, 1))
	double := put("double@example.com", valueobject.StatusActive, day(2024, 6, 1), day(2024, 7, 1))
	s.Store.PutSubscription(testutil.NewSubscriptionRow(double, plan, valueobject.StatusTrialing, day(2024, 6, 10), day(2024, 6, 24)))
	legacy := put("legacy@example.com", valueobject.SubscriptionStatus("ACTIVE"), day(2024, 6, 1), day(2024, 7, 1))
	pastDue := put("pastdue@example.com", valueobject.StatusPastDue, day(2024, 6, 1), day(2024, 7, 1))
	canceled := put("canceled@example.com", valueobject.StatusCanceled, day(2024, 6, 1), day(2024, 7, 1))
	expired := put("expired@example.com", valueobject.StatusActive, day(2024, 5, 1), day(2024, 6, 1))
	boundary := put("boundary@example.com", valueobject.StatusActive, day(2024, 5, 15), asOf)

	t.Run("IsPremium", func(t *testing.T) {
		cases := []struct {
			name string
			user uuid.UUID
			want bool
		}{
			{"scheduled cancellation keeps access", scheduled, true},
			{"two entitled rows", double, true},
			{"upper case status from legacy rows", legacy, true},
			{"past due is not entitled", pastDue, false},
			{"canceled is not entitled", canceled, false},
			{"period already ended", expired, false},
			{"period ending exactly now", boundary, true},
			{"user without rows", uuid.New(), false},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				premium, err := s.Resolver.IsPremium(ctx, tc.user, asOf)
				require.NoError(t, err)
				assert.Equal(t, tc.want, premium)
			})
		}
	})

	t.Run("CountPremiumUsers counts each user once", func(t *testing.T) {
		n, err := s.Resolver.CountPremiumUsers(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("ConsistencyReport explains the difference", func(t *testing.T) {
		report, err := s.Resolver.ConsistencyReport(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, int64(4), report.PremiumUsers)
		assert.Equal(t, int64(5), report.EntitledSubscriptions)
		assert.Equal(t, []uuid.UUID{double}, report.UsersWithMultipleActive)
		assert.False(t, report.MultipleActiveListLimited)
	})

	t.Run("Later instant drops expired rows", func(t *testing.T) {
		n, err := s.Resolver.CountPremiumUsers(ctx, day(2024, 6, 25))
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		report, err := s.Resolver.ConsistencyReport(ctx, day(2024, 6, 25))
		require.NoError(t, err)
		assert.Empty(t, report.UsersWithMultipleActive)
	})
}
