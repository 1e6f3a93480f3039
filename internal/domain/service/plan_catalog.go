package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
)

// PlanCatalog resolves provider plan identifiers and keeps the stored
// catalog in line with the provider's.
type PlanCatalog struct {
	plans  repository.PlanRepository
	logger *zap.Logger
}

// PlanUpsertResult describes what UpsertPlan did.
type PlanUpsertResult struct {
	Plan    *entity.Plan
	Created bool
	// DriftCorrected is set when the stored currency or interval disagreed
	// with the provider and was overwritten.
	DriftCorrected bool
	Previous       *entity.Plan
}

// NewPlanCatalog creates a new plan catalog
func NewPlanCatalog(plans repository.PlanRepository, logger *zap.Logger) *PlanCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanCatalog{
		plans:  plans,
		logger: logger.With(zap.String("component", "plan_catalog")),
	}
}

// UpsertPlan inserts the plan for ref or overwrites the stored attributes.
// The provider catalog is the source of truth for billing terms. Active and
// trial length are only overwritten when attrs sets them.
func (c *PlanCatalog) UpsertPlan(ctx context.Context, ref entity.PlanRef, attrs entity.PlanAttributes) (*PlanUpsertResult, error) {
	candidate, err := entity.NewPlan(ref, attrs)
	if err != nil {
		return nil, err
	}

	previous, err := c.plans.GetByRef(ctx, ref)
	if err != nil {
		if !errors.Is(err, domainErrors.ErrPlanNotFound) {
			return nil, fmt.Errorf("failed to look up plan %s: %w", ref, err)
		}
		previous = nil
	}

	// Unset active/trial fields on an existing plan mean "unchanged"; a
	// currency fix must not reactivate a retired plan.
	stored, err := c.plans.Upsert(ctx, candidate, repository.PlanUpsertOptions{
		KeepActive: attrs.Active == nil,
		KeepTrial:  attrs.TrialPeriodDays == nil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert plan %s: %w", ref, err)
	}

	result := &PlanUpsertResult{
		Plan:     stored,
		Created:  previous == nil,
		Previous: previous,
	}

	if previous != nil && previous.BillingTermsDiffer(stored) {
		result.DriftCorrected = true
		c.logger.Warn("plan catalog drift corrected",
			zap.String("plan_ref", ref.String()),
			zap.String("old_currency", previous.Currency),
			zap.String("new_currency", stored.Currency),
			zap.String("old_interval", previous.Interval.String()),
			zap.String("new_interval", stored.Interval.String()),
			zap.Int("old_interval_count", previous.IntervalCount),
			zap.Int("new_interval_count", stored.IntervalCount),
		)
	} else {
		c.logger.Info("plan upserted",
			zap.String("plan_ref", ref.String()),
			zap.Bool("created", result.Created),
		)
	}

	return result, nil
}

// FindPlanByExternalID returns the plan with exactly this reference, or
// ErrPlanNotFound.
func (c *PlanCatalog) FindPlanByExternalID(ctx context.Context, ref entity.PlanRef) (*entity.Plan, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return c.plans.GetByRef(ctx, ref)
}

// FindPlanByID returns the plan with the internal ID
func (c *PlanCatalog) FindPlanByID(ctx context.Context, id uuid.UUID) (*entity.Plan, error) {
	return c.plans.GetByID(ctx, id)
}

// ListPlans returns the catalog, optionally only active plans
func (c *PlanCatalog) ListPlans(ctx context.Context, activeOnly bool) ([]*entity.Plan, error) {
	return c.plans.List(ctx, activeOnly)
}

// DeactivatePlan stops new subscriptions from referencing the plan. Plans
// are never deleted.
func (c *PlanCatalog) DeactivatePlan(ctx context.Context, id uuid.UUID) error {
	if err := c.plans.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("failed to deactivate plan: %w", err)
	}
	c.logger.Info("plan deactivated", zap.String("plan_id", id.String()))
	return nil
}
