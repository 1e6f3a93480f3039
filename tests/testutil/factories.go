package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// Services bundles the billing core wired against a MemoryStore.
type Services struct {
	Store      *MemoryStore
	Catalog    *service.PlanCatalog
	Ledger     *service.SubscriptionLedger
	Reconciler *service.Reconciler
	Resolver   *service.EntitlementResolver
	Audit      *service.AuditService
}

// NewMemoryServices builds the billing core on a fresh in-memory store.
func NewMemoryServices() *Services {
	store := NewMemoryStore()
	logger := zap.NewNop()
	catalog := service.NewPlanCatalog(store.Plans(), logger)
	ledger := service.NewSubscriptionLedger(store.Subscriptions(), store.Plans(), logger)
	return &Services{
		Store:      store,
		Catalog:    catalog,
		Ledger:     ledger,
		Reconciler: service.NewReconciler(catalog, ledger, store.Customers(), logger),
		Resolver:   service.NewEntitlementResolver(ledger),
		Audit:      service.NewAuditService(store.AuditLog()),
	}
}

// MustUpsertPlan registers a plan or fails the test.
func (s *Services) MustUpsertPlan(t *testing.T, provider entity.Provider, externalID, currency string, interval valueobject.BillingInterval, count int) *entity.Plan {
	t.Helper()
	res, err := s.Catalog.UpsertPlan(context.Background(),
		entity.PlanRef{Provider: provider, ExternalID: externalID},
		entity.PlanAttributes{
			Name:          externalID,
			Currency:      currency,
			Interval:      interval.String(),
			IntervalCount: count,
			Amount:        2990,
		})
	require.NoError(t, err)
	return res.Plan
}

// MustAddCustomer creates a user linked to the provider customer reference.
func (s *Services) MustAddCustomer(t *testing.T, provider entity.Provider, customerRef string) uuid.UUID {
	t.Helper()
	userID := s.Store.AddUser("user_" + uuid.NewString()[:8] + "@example.com")
	s.Store.LinkCustomer(userID, provider, customerRef)
	return userID
}

// NewStripeEvent builds a normalized Stripe subscription event.
func NewStripeEvent(subID, priceID, customerID, status string, start, end time.Time) entity.SubscriptionEvent {
	return entity.SubscriptionEvent{
		Provider:                entity.ProviderStripe,
		EventID:                 "evt_" + uuid.NewString()[:12],
		ExternalSubscriptionID:  subID,
		ExternalPlanID:          priceID,
		CustomerRef:             customerID,
		RawStatus:               status,
		PeriodStartEpochSeconds: start.Unix(),
		PeriodEndEpochSeconds:   end.Unix(),
	}
}

// NewSubscriptionRow builds a subscription row ready for PutSubscription.
func NewSubscriptionRow(userID uuid.UUID, plan *entity.Plan, status valueobject.SubscriptionStatus, start, end time.Time) *entity.Subscription {
	return entity.NewSubscription(userID, plan.ID, plan.Provider, "sub_"+uuid.NewString()[:12], status, start, end)
}
