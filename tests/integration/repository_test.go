//go:build integration

package integration

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
	"github.com/mediz-app/mediz-billing/tests/testutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresSuite) mustPlan(externalID, interval string, count int) *entity.Plan {
	plan, err := entity.NewPlan(
		entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: externalID},
		entity.PlanAttributes{Name: externalID, Currency: "BRL", Interval: interval, IntervalCount: count, Amount: 2990},
	)
	s.Require().NoError(err)
	stored, err := s.core.Plans.Upsert(s.ctx, plan, repository.PlanUpsertOptions{})
	s.Require().NoError(err)
	return stored
}

func (s *PostgresSuite) TestPlanUpsertOverwritesOnConflict() {
	first := s.mustPlan("price_monthly", "MONTH", 1)

	drifted, err := entity.NewPlan(
		entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_monthly"},
		entity.PlanAttributes{Name: "Monthly", Currency: "usd", Interval: "YEAR", IntervalCount: 1, Amount: 4990},
	)
	s.Require().NoError(err)
	second, err := s.core.Plans.Upsert(s.ctx, drifted, repository.PlanUpsertOptions{})
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal("USD", second.Currency)
	s.Equal(valueobject.IntervalYear, second.Interval)
	testutil.AssertDBCount(s.T(), s.ctx, s.pool, "plans", 1)
}

func (s *PostgresSuite) TestPlanDriftFixKeepsActiveAndTrial() {
	ref := entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_trial"}
	trial := 7
	created, err := s.core.Catalog.UpsertPlan(s.ctx, ref, entity.PlanAttributes{
		Currency: "USD", Interval: "MONTH", Amount: 990, TrialPeriodDays: &trial,
	})
	s.Require().NoError(err)
	s.Require().NoError(s.core.Catalog.DeactivatePlan(s.ctx, created.Plan.ID))

	fixed, err := s.core.Catalog.UpsertPlan(s.ctx, ref, entity.PlanAttributes{Currency: "BRL", Interval: "MONTH", Amount: 990})
	s.Require().NoError(err)
	s.True(fixed.DriftCorrected)

	stored, err := s.core.Plans.GetByRef(s.ctx, ref)
	s.Require().NoError(err)
	s.Equal("BRL", stored.Currency)
	s.False(stored.Active)
	s.Require().NotNil(stored.TrialPeriodDays)
	s.Equal(7, *stored.TrialPeriodDays)
}

func (s *PostgresSuite) TestPlanLookupIsExactAndProviderScoped() {
	s.mustPlan("price_ABC", "MONTH", 1)

	_, err := s.core.Plans.GetByRef(s.ctx, entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_abc"})
	s.ErrorIs(err, domainErrors.ErrPlanNotFound)

	_, err = s.core.Plans.GetByRef(s.ctx, entity.PlanRef{Provider: entity.ProviderHotmart, ExternalID: "price_ABC"})
	s.ErrorIs(err, domainErrors.ErrPlanNotFound)

	found, err := s.core.Plans.GetByRef(s.ctx, entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_ABC"})
	s.Require().NoError(err)
	s.Equal("price_ABC", found.ExternalID)
}

func (s *PostgresSuite) TestPlanDeactivate() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	s.Require().NoError(s.core.Plans.SetActive(s.ctx, plan.ID, false))

	active, err := s.core.Plans.List(s.ctx, true)
	s.Require().NoError(err)
	s.Empty(active)

	all, err := s.core.Plans.List(s.ctx, false)
	s.Require().NoError(err)
	s.Len(all, 1)

	s.ErrorIs(s.core.Plans.SetActive(s.ctx, uuid.New(), false), domainErrors.ErrPlanNotFound)
}

func (s *PostgresSuite) TestSubscriptionUpsertRejectsStaleEvents() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")

	newer := day(2024, 5, 2)
	sub := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_1", valueobject.StatusActive, day(2024, 5, 1), day(2024, 6, 1))
	sub.LastEventAt = &newer
	_, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, sub)
	s.Require().NoError(err)

	older := day(2024, 5, 1)
	stale := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_1", valueobject.StatusCanceled, day(2024, 5, 1), day(2024, 6, 1))
	stale.LastEventAt = &older
	_, err = s.core.Subscriptions.UpsertByExternalID(s.ctx, stale)
	s.ErrorIs(err, domainErrors.ErrStaleEvent)

	_, err = s.core.Subscriptions.UpdateStatusByExternalID(s.ctx, "sub_1", valueobject.StatusCanceled, &older)
	s.ErrorIs(err, domainErrors.ErrStaleEvent)

	_, err = s.core.Subscriptions.UpdateStatusByExternalID(s.ctx, "sub_missing", valueobject.StatusCanceled, &newer)
	s.ErrorIs(err, domainErrors.ErrSubscriptionNotFound)

	stored, err := s.core.Subscriptions.GetByExternalID(s.ctx, "sub_1")
	s.Require().NoError(err)
	s.Equal(valueobject.StatusActive, stored.Status)
	s.True(stored.LastEventAt.Equal(newer))
}

func (s *PostgresSuite) TestSubscriptionUpsertRequiresExistingUser() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	orphan := entity.NewSubscription(uuid.New(), plan.ID, entity.ProviderStripe, "sub_orphan", valueobject.StatusActive, day(2024, 5, 1), day(2024, 6, 1))

	_, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, orphan)
	s.ErrorIs(err, domainErrors.ErrReferentialIntegrity)
	testutil.AssertDBCount(s.T(), s.ctx, s.pool, "subscriptions", 0)
}

func (s *PostgresSuite) TestConcurrentUpsertsConvergeOnOneRow() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_race", valueobject.StatusActive, day(2024, 5, 1), day(2024, 6, 1))
			if _, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, sub); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	testutil.AssertDBCount(s.T(), s.ctx, s.pool, "subscriptions", 1)
}

func (s *PostgresSuite) TestEntitlementQueries() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	double := testutil.SeedUser(s.T(), s.ctx, s.pool, "double@example.com")
	legacy := testutil.SeedUser(s.T(), s.ctx, s.pool, "legacy@example.com")
	lapsed := testutil.SeedUser(s.T(), s.ctx, s.pool, "lapsed@example.com")
	padded := testutil.SeedUser(s.T(), s.ctx, s.pool, "padded@example.com")

	asOf := day(2024, 5, 15)
	put := func(userID uuid.UUID, status valueobject.SubscriptionStatus, end time.Time) {
		sub := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_"+uuid.NewString()[:8], status, day(2024, 5, 1), end)
		_, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, sub)
		s.Require().NoError(err)
	}
	put(double, valueobject.StatusActive, day(2024, 6, 1))
	put(double, valueobject.StatusTrialing, day(2024, 6, 1))
	put(legacy, valueobject.SubscriptionStatus("ACTIVE"), asOf)
	put(lapsed, valueobject.StatusCanceled, day(2024, 6, 1))
	put(lapsed, valueobject.StatusActive, day(2024, 5, 14))
	put(padded, valueobject.SubscriptionStatus(" Trialing "), day(2024, 6, 1))

	users, err := s.core.Subscriptions.CountEntitledUsers(s.ctx, asOf)
	s.Require().NoError(err)
	s.Equal(int64(3), users)

	rows, err := s.core.Subscriptions.CountEntitledSubscriptions(s.ctx, asOf)
	s.Require().NoError(err)
	s.Equal(int64(4), rows)

	multi, err := s.core.Subscriptions.ListUsersWithMultipleEntitled(s.ctx, asOf, 10)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{double}, multi)

	active, err := s.core.Subscriptions.ListEntitledByUserID(s.ctx, lapsed, asOf)
	s.Require().NoError(err)
	s.Empty(active)

	// SQL and the entity predicate agree on padded legacy statuses.
	paddedRows, err := s.core.Subscriptions.ListEntitledByUserID(s.ctx, padded, asOf)
	s.Require().NoError(err)
	s.Require().Len(paddedRows, 1)
	s.True(paddedRows[0].GrantsEntitlementAt(asOf))
}

func (s *PostgresSuite) TestUpdatePeriodEndGuardsOnPeriodStart() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")
	sub := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_1", valueobject.StatusActive, day(2024, 5, 1), day(2024, 5, 25))
	stored, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, sub)
	s.Require().NoError(err)

	ok, err := s.core.Subscriptions.UpdatePeriodEnd(s.ctx, stored.ID, day(2024, 4, 1), day(2024, 6, 1))
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.core.Subscriptions.UpdatePeriodEnd(s.ctx, stored.ID, day(2024, 5, 1), day(2024, 6, 1))
	s.Require().NoError(err)
	s.True(ok)

	reloaded, err := s.core.Subscriptions.GetByID(s.ctx, stored.ID)
	s.Require().NoError(err)
	s.True(reloaded.CurrentPeriodEnd.Equal(day(2024, 6, 1)))
}

func (s *PostgresSuite) TestListIDsAfterPagesInOrder() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")
	for i := 0; i < 5; i++ {
		sub := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_"+uuid.NewString()[:8], valueobject.StatusActive, day(2024, 5, 1), day(2024, 6, 1))
		_, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, sub)
		s.Require().NoError(err)
	}

	var seen []uuid.UUID
	cursor := uuid.Nil
	for {
		page, err := s.core.Subscriptions.ListIDsAfter(s.ctx, cursor, 2)
		s.Require().NoError(err)
		if len(page) == 0 {
			break
		}
		seen = append(seen, page...)
		cursor = page[len(page)-1]
	}
	s.Len(seen, 5)
}

func (s *PostgresSuite) TestDeleteSubscription() {
	plan := s.mustPlan("price_monthly", "MONTH", 1)
	userID := testutil.SeedUser(s.T(), s.ctx, s.pool, "a@example.com")
	sub := entity.NewSubscription(userID, plan.ID, entity.ProviderStripe, "sub_1", valueobject.StatusActive, day(2024, 5, 1), day(2024, 6, 1))
	stored, err := s.core.Subscriptions.UpsertByExternalID(s.ctx, sub)
	s.Require().NoError(err)

	s.Require().NoError(s.core.Subscriptions.Delete(s.ctx, stored.ID))
	s.ErrorIs(s.core.Subscriptions.Delete(s.ctx, stored.ID), domainErrors.ErrSubscriptionNotFound)
}

func (s *PostgresSuite) TestCustomerResolution() {
	linked := testutil.SeedUser(s.T(), s.ctx, s.pool, "linked@example.com")
	buyer := testutil.SeedUser(s.T(), s.ctx, s.pool, "Buyer@Example.com")
	testutil.SeedCustomer(s.T(), s.ctx, s.pool, linked, entity.ProviderStripe, "cus_1")

	id, err := s.core.Customers.ResolveUserID(s.ctx, entity.ProviderStripe, "cus_1")
	s.Require().NoError(err)
	s.Equal(linked, id)

	id, err = s.core.Customers.ResolveUserID(s.ctx, entity.ProviderHotmart, "buyer@example.com")
	s.Require().NoError(err)
	s.Equal(buyer, id)

	_, err = s.core.Customers.ResolveUserID(s.ctx, entity.ProviderStripe, "buyer@example.com")
	s.ErrorIs(err, domainErrors.ErrUserNotFound)

	err = s.core.Customers.Link(s.ctx, &entity.CustomerLink{UserID: uuid.New(), Provider: entity.ProviderStripe, CustomerRef: "cus_2", CreatedAt: time.Now()})
	s.ErrorIs(err, domainErrors.ErrReferentialIntegrity)
}

func (s *PostgresSuite) TestWebhookJournal() {
	event := &entity.WebhookEvent{
		Provider:   entity.ProviderStripe,
		EventID:    "evt_1",
		EventType:  "customer.subscription.updated",
		Payload:    []byte(`{"id":"evt_1"}`),
		ReceivedAt: time.Now().UTC(),
	}

	fresh, err := s.core.WebhookEvents.Record(s.ctx, event)
	s.Require().NoError(err)
	s.True(fresh)

	fresh, err = s.core.WebhookEvents.Record(s.ctx, event)
	s.Require().NoError(err)
	s.False(fresh)

	s.Require().NoError(s.core.WebhookEvents.MarkProcessed(s.ctx, entity.ProviderStripe, "evt_1", "unknown plan"))

	var procErr *string
	var processed bool
	err = s.pool.QueryRow(s.ctx,
		`SELECT processing_error, processed_at IS NOT NULL FROM webhook_events WHERE provider = $1 AND event_id = $2`,
		entity.ProviderStripe, "evt_1",
	).Scan(&procErr, &processed)
	s.Require().NoError(err)
	s.True(processed)
	s.Require().NotNil(procErr)
	s.Equal("unknown plan", *procErr)
}

func (s *PostgresSuite) TestAuditLogInsert() {
	err := s.core.Audit.LogAction(s.ctx, "ops@mediz", "plan.upsert", "plan", uuid.NewString(), map[string]interface{}{"created": true})
	s.Require().NoError(err)
	testutil.AssertDBCount(s.T(), s.ctx, s.pool, "admin_audit_log", 1)
}
