package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// Outcome labels for reconciliation results.
const (
	OutcomeApplied             = "applied"
	OutcomeUnknownCustomer     = "unknown_customer"
	OutcomeUnknownPlan         = "unknown_plan"
	OutcomeUnknownSubscription = "unknown_subscription"
	OutcomeStale               = "stale"
	OutcomeInvalid             = "invalid"
	OutcomeFailed              = "failed"
)

// OutcomeOf maps the error returned by a Reconciler call to an outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, domainErrors.ErrUnknownCustomer):
		return OutcomeUnknownCustomer
	case errors.Is(err, domainErrors.ErrUnknownPlan):
		return OutcomeUnknownPlan
	case errors.Is(err, domainErrors.ErrUnknownSubscription):
		return OutcomeUnknownSubscription
	case errors.Is(err, domainErrors.ErrStaleEvent):
		return OutcomeStale
	case errors.Is(err, domainErrors.ErrInvalidEvent):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// Reconciler applies verified, normalized provider events to the ledger.
// Benign skips come back as errors matching domainErrors.IsBenignSkip;
// storage failures come back as *ReconciliationError.
type Reconciler struct {
	catalog   *PlanCatalog
	ledger    *SubscriptionLedger
	customers repository.CustomerRepository
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(catalog *PlanCatalog, ledger *SubscriptionLedger, customers repository.CustomerRepository, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		catalog:   catalog,
		ledger:    ledger,
		customers: customers,
		logger:    logger.With(zap.String("component", "reconciler")),
	}
}

// ApplySubscriptionEvent upserts the subscription described by evt. Nothing
// is written unless the customer and plan both resolve.
func (r *Reconciler) ApplySubscriptionEvent(ctx context.Context, evt entity.SubscriptionEvent) (*entity.Subscription, error) {
	log := r.logger.With(
		zap.String("provider", string(evt.Provider)),
		zap.String("event_id", evt.EventID),
		zap.String("external_subscription_id", evt.ExternalSubscriptionID),
	)

	if strings.TrimSpace(evt.ExternalSubscriptionID) == "" {
		return nil, fmt.Errorf("missing subscription id: %w", domainErrors.ErrInvalidEvent)
	}
	if evt.PeriodStartEpochSeconds <= 0 {
		return nil, fmt.Errorf("missing period start for %s: %w", evt.ExternalSubscriptionID, domainErrors.ErrInvalidEvent)
	}

	userID, err := r.customers.ResolveUserID(ctx, evt.Provider, evt.CustomerRef)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			log.Info("skipping event for unknown customer", zap.String("customer_ref", evt.CustomerRef))
			return nil, fmt.Errorf("%w: %s customer %q", domainErrors.ErrUnknownCustomer, evt.Provider, evt.CustomerRef)
		}
		return nil, domainErrors.NewReconciliationError(evt.ExternalSubscriptionID, "resolve customer", err)
	}

	plan, err := r.catalog.FindPlanByExternalID(ctx, evt.PlanRef())
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrPlanNotFound):
			log.Info("skipping event for unknown plan", zap.String("external_plan_id", evt.ExternalPlanID))
			return nil, fmt.Errorf("%w %s: %w", domainErrors.ErrUnknownPlan, evt.PlanRef(), err)
		case domainErrors.IsValidation(err):
			return nil, fmt.Errorf("%w: %w", domainErrors.ErrInvalidEvent, err)
		default:
			return nil, domainErrors.NewReconciliationError(evt.ExternalSubscriptionID, "resolve plan", err)
		}
	}
	if !plan.Active {
		log.Warn("event references an inactive plan, applying anyway", zap.String("plan_ref", plan.Ref().String()))
	}

	status := valueobject.NormalizeSubscriptionStatus(evt.RawStatus)
	if evt.CancelAtPeriodEnd {
		status = valueobject.StatusCancelAtPeriodEnd
	}
	if status == "" {
		return nil, fmt.Errorf("missing status for %s: %w", evt.ExternalSubscriptionID, domainErrors.ErrInvalidEvent)
	}

	start := evt.PeriodStart()
	end, ok := evt.PeriodEnd()
	if !ok {
		end = plan.PeriodEndFor(status, start)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("period end precedes start for %s: %w", evt.ExternalSubscriptionID, domainErrors.ErrInvalidEvent)
	}

	sub := entity.NewSubscription(userID, plan.ID, evt.Provider, evt.ExternalSubscriptionID, status, start, end)
	sub.LastEventAt = eventTime(evt.OccurredAt)

	stored, err := r.ledger.UpsertSubscriptionByExternalID(ctx, sub)
	if err != nil {
		if errors.Is(err, domainErrors.ErrStaleEvent) {
			log.Info("skipping stale event", zap.Time("occurred_at", evt.OccurredAt))
			return nil, fmt.Errorf("subscription %s: %w", evt.ExternalSubscriptionID, err)
		}
		return nil, domainErrors.NewReconciliationError(evt.ExternalSubscriptionID, "upsert subscription", err)
	}

	log.Info("subscription reconciled",
		zap.String("user_id", stored.UserID.String()),
		zap.String("plan_ref", plan.Ref().String()),
		zap.String("status", stored.Status.String()),
		zap.Time("current_period_end", stored.CurrentPeriodEnd),
	)
	return stored, nil
}

// ApplySubscriptionCancelled updates only the status of a known row. An
// empty raw status means canceled.
func (r *Reconciler) ApplySubscriptionCancelled(ctx context.Context, evt entity.CancellationEvent) (*entity.Subscription, error) {
	log := r.logger.With(
		zap.String("provider", string(evt.Provider)),
		zap.String("event_id", evt.EventID),
		zap.String("external_subscription_id", evt.ExternalSubscriptionID),
	)

	if strings.TrimSpace(evt.ExternalSubscriptionID) == "" {
		return nil, fmt.Errorf("missing subscription id: %w", domainErrors.ErrInvalidEvent)
	}

	status := valueobject.NormalizeSubscriptionStatus(evt.RawStatus)
	if status == "" {
		status = valueobject.StatusCanceled
	}

	stored, err := r.ledger.UpdateStatusByExternalID(ctx, evt.ExternalSubscriptionID, status, eventTime(evt.OccurredAt))
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrSubscriptionNotFound):
			log.Info("skipping cancellation for unknown subscription")
			return nil, fmt.Errorf("%w: %s", domainErrors.ErrUnknownSubscription, evt.ExternalSubscriptionID)
		case errors.Is(err, domainErrors.ErrStaleEvent):
			log.Info("skipping stale cancellation", zap.Time("occurred_at", evt.OccurredAt))
			return nil, fmt.Errorf("subscription %s: %w", evt.ExternalSubscriptionID, err)
		default:
			return nil, domainErrors.NewReconciliationError(evt.ExternalSubscriptionID, "update status", err)
		}
	}

	log.Info("subscription status updated", zap.String("status", stored.Status.String()))
	return stored, nil
}

func eventTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
