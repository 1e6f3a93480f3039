package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/application/dto"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
)

// UpsertPlanCommand creates or overwrites a catalog entry
type UpsertPlanCommand struct {
	catalog  *service.PlanCatalog
	recorder *MutationRecorder
}

// NewUpsertPlanCommand creates a new upsert plan command
func NewUpsertPlanCommand(catalog *service.PlanCatalog, recorder *MutationRecorder) *UpsertPlanCommand {
	return &UpsertPlanCommand{catalog: catalog, recorder: recorder}
}

// Execute executes the upsert plan command
func (c *UpsertPlanCommand) Execute(ctx context.Context, actorID string, req dto.UpsertPlanRequest) (*dto.PlanUpsertResponse, error) {
	result, err := c.catalog.UpsertPlan(ctx, req.Ref(), req.Attributes())
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{
		"provider":        result.Plan.Provider,
		"external_id":     result.Plan.ExternalID,
		"currency":        result.Plan.Currency,
		"interval":        result.Plan.Interval,
		"interval_count":  result.Plan.IntervalCount,
		"amount":          result.Plan.Amount,
		"created":         result.Created,
		"drift_corrected": result.DriftCorrected,
	}
	c.recorder.Record(ctx, actorID, ActionPlanUpsert, "plan", result.Plan.ID.String(), details)

	return &dto.PlanUpsertResponse{
		Plan:           dto.NewPlanResponse(result.Plan),
		Created:        result.Created,
		DriftCorrected: result.DriftCorrected,
	}, nil
}

// DeactivatePlanCommand hides a plan from new subscriptions
type DeactivatePlanCommand struct {
	catalog  *service.PlanCatalog
	recorder *MutationRecorder
}

// NewDeactivatePlanCommand creates a new deactivate plan command
func NewDeactivatePlanCommand(catalog *service.PlanCatalog, recorder *MutationRecorder) *DeactivatePlanCommand {
	return &DeactivatePlanCommand{catalog: catalog, recorder: recorder}
}

// Execute executes the deactivate plan command
func (c *DeactivatePlanCommand) Execute(ctx context.Context, actorID, planID string) error {
	id, err := parseID("plan_id", planID)
	if err != nil {
		return err
	}
	if err := c.catalog.DeactivatePlan(ctx, id); err != nil {
		return err
	}
	c.recorder.Record(ctx, actorID, ActionPlanDeactivate, "plan", id.String(), nil)
	return nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domainErrors.ErrInvalidInput, field)
	}
	return id, nil
}
