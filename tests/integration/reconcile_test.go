//go:build integration

package integration

import (
	"time"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
	"github.com/mediz-app/mediz-billing/tests/testutil"
)

func (s *PostgresSuite) TestReconcileEventIsIdempotent() {
	s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")
	testutil.SeedCustomer(s.T(), s.ctx, s.pool, userID, entity.ProviderStripe, "cus_1")

	event := testutil.NewStripeEvent("sub_1", "price_monthly", "cus_1", "active", day(2024, 1, 31), day(2024, 2, 29))
	event.OccurredAt = day(2024, 1, 31)

	for i := 0; i < 3; i++ {
		_, err := s.core.Reconciler.ApplySubscriptionEvent(s.ctx, event)
		s.Require().NoError(err)
	}
	testutil.AssertDBCount(s.T(), s.ctx, s.pool, "subscriptions", 1)

	premium, err := s.core.Resolver.IsPremium(s.ctx, userID, day(2024, 2, 29))
	s.Require().NoError(err)
	s.True(premium)

	premium, err = s.core.Resolver.IsPremium(s.ctx, userID, day(2024, 3, 1))
	s.Require().NoError(err)
	s.False(premium)
}

func (s *PostgresSuite) TestReconcileSkipsUnknownReferences() {
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")
	testutil.SeedCustomer(s.T(), s.ctx, s.pool, userID, entity.ProviderStripe, "cus_1")

	event := testutil.NewStripeEvent("sub_1", "price_unknown", "cus_1", "active", day(2024, 5, 1), day(2024, 6, 1))
	_, err := s.core.Reconciler.ApplySubscriptionEvent(s.ctx, event)
	s.ErrorIs(err, domainErrors.ErrUnknownPlan)
	s.Equal(service.OutcomeUnknownPlan, service.OutcomeOf(err))

	s.mustPlan("price_monthly", "MONTH", 1)
	event = testutil.NewStripeEvent("sub_1", "price_monthly", "cus_missing", "active", day(2024, 5, 1), day(2024, 6, 1))
	_, err = s.core.Reconciler.ApplySubscriptionEvent(s.ctx, event)
	s.ErrorIs(err, domainErrors.ErrUnknownCustomer)

	testutil.AssertDBCount(s.T(), s.ctx, s.pool, "subscriptions", 0)
}

func (s *PostgresSuite) TestCancellationKeepsPeriodEnd() {
	s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")
	testutil.SeedCustomer(s.T(), s.ctx, s.pool, userID, entity.ProviderStripe, "cus_1")

	event := testutil.NewStripeEvent("sub_1", "price_monthly", "cus_1", "active", day(2024, 5, 1), day(2024, 6, 1))
	_, err := s.core.Reconciler.ApplySubscriptionEvent(s.ctx, event)
	s.Require().NoError(err)

	_, err = s.core.Reconciler.ApplySubscriptionCancelled(s.ctx, entity.CancellationEvent{
		Provider:               entity.ProviderStripe,
		EventID:                "evt_cancel",
		ExternalSubscriptionID: "sub_1",
		OccurredAt:             day(2024, 5, 10),
	})
	s.Require().NoError(err)

	stored, err := s.core.Subscriptions.GetByExternalID(s.ctx, "sub_1")
	s.Require().NoError(err)
	s.Equal(valueobject.StatusCanceled, stored.Status)
	s.True(stored.CurrentPeriodEnd.Equal(day(2024, 6, 1)))

	premium, err := s.core.Resolver.IsPremium(s.ctx, userID, day(2024, 5, 20))
	s.Require().NoError(err)
	s.False(premium)
}

func (s *PostgresSuite) TestSweepRepairsDriftedRows() {
	weekly := s.mustPlan("price_biweekly", "WEEK", 2)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		end := start.AddDate(0, 0, 14)
		if i%2 == 0 {
			end = start.AddDate(0, 0, 3)
		}
		row := testutil.NewSubscriptionRow(userID, weekly, valueobject.StatusActive, start, end)
		_, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, row)
		s.Require().NoError(err)
	}

	result, err := s.core.Ledger.SweepPeriodDrift(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(5, result.Scanned)
	s.Equal(3, result.Corrected)
	s.Zero(result.Failed)

	again, err := s.core.Ledger.SweepPeriodDrift(s.ctx, 2)
	s.Require().NoError(err)
	s.Zero(again.Corrected)

	var drifted int
	err = s.pool.QueryRow(s.ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE current_period_end <> current_period_start + interval '14 days'`,
	).Scan(&drifted)
	s.Require().NoError(err)
	s.Zero(drifted)
}
