// Package app assembles the billing core shared by the API, the worker and
// billingctl.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/persistence/repository"
)

// Core holds the repositories and domain services over one pool.
type Core struct {
	Plans         *repository.PlanRepositoryImpl
	Subscriptions *repository.SubscriptionRepositoryImpl
	Customers     *repository.CustomerRepositoryImpl
	WebhookEvents *repository.WebhookEventRepositoryImpl
	AuditLog      *repository.AuditLogRepositoryImpl

	Catalog    *service.PlanCatalog
	Ledger     *service.SubscriptionLedger
	Reconciler *service.Reconciler
	Resolver   *service.EntitlementResolver
	Audit      *service.AuditService
}

// NewCore wires the Postgres repositories into the domain services.
func NewCore(pool *pgxpool.Pool, logger *zap.Logger) *Core {
	c := &Core{
		Plans:         repository.NewPlanRepository(pool),
		Subscriptions: repository.NewSubscriptionRepository(pool),
		Customers:     repository.NewCustomerRepository(pool),
		WebhookEvents: repository.NewWebhookEventRepository(pool),
		AuditLog:      repository.NewAuditLogRepository(pool),
	}
	c.Catalog = service.NewPlanCatalog(c.Plans, logger)
	c.Ledger = service.NewSubscriptionLedger(c.Subscriptions, c.Plans, logger)
	c.Reconciler = service.NewReconciler(c.Catalog, c.Ledger, c.Customers, logger)
	c.Resolver = service.NewEntitlementResolver(c.Ledger)
	c.Audit = service.NewAuditService(c.AuditLog)
	return c
}
