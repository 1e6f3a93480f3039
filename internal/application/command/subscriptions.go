package command

import (
	"context"
	"fmt"
	"time"

	"github.com/mediz-app/mediz-billing/internal/application/dto"
	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// GrantSubscriptionCommand creates a subscription from the back-office
type GrantSubscriptionCommand struct {
	catalog   *service.PlanCatalog
	ledger    *service.SubscriptionLedger
	customers repository.CustomerRepository
	recorder  *MutationRecorder
}

// NewGrantSubscriptionCommand creates a new grant subscription command
func NewGrantSubscriptionCommand(catalog *service.PlanCatalog, ledger *service.SubscriptionLedger, customers repository.CustomerRepository, recorder *MutationRecorder) *GrantSubscriptionCommand {
	return &GrantSubscriptionCommand{catalog: catalog, ledger: ledger, customers: customers, recorder: recorder}
}

// Execute grants the plan to the user. The period starts now unless given
// and ends per the plan rules unless given.
func (c *GrantSubscriptionCommand) Execute(ctx context.Context, actorID, userID string, req dto.GrantSubscriptionRequest) (*entity.Subscription, error) {
	uid, err := parseID("user_id", userID)
	if err != nil {
		return nil, err
	}
	planID, err := parseID("plan_id", req.PlanID)
	if err != nil {
		return nil, err
	}

	exists, err := c.customers.UserExists(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, &domainErrors.NotFoundError{Entity: "user", ID: uid.String(), Err: domainErrors.ErrUserNotFound}
	}

	plan, err := c.catalog.FindPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, fmt.Errorf("plan %s: %w", plan.Ref(), domainErrors.ErrPlanInactive)
	}

	status := valueobject.StatusActive
	if req.Status != "" {
		if status, err = adminStatus(req.Status); err != nil {
			return nil, err
		}
	}

	start := time.Now().UTC()
	if req.PeriodStart != nil {
		start = req.PeriodStart.UTC()
	}
	end := plan.PeriodEndFor(status, start)
	if req.PeriodEnd != nil {
		end = req.PeriodEnd.UTC()
	}

	sub := entity.NewSubscription(uid, plan.ID, entity.ProviderAdmin, entity.NewAdminExternalID(), status, start, end)
	stored, err := c.ledger.UpsertSubscriptionByExternalID(ctx, sub)
	if err != nil {
		return nil, err
	}

	c.recorder.Record(ctx, actorID, ActionSubscriptionGrant, "subscription", stored.ID.String(), map[string]interface{}{
		"user_id":     uid.String(),
		"plan_id":     plan.ID.String(),
		"status":      stored.Status,
		"period_end":  stored.CurrentPeriodEnd,
		"external_id": stored.ExternalID,
	})
	return stored, nil
}

// UpdateSubscriptionCommand edits a subscription through the ledger upsert
type UpdateSubscriptionCommand struct {
	catalog  *service.PlanCatalog
	ledger   *service.SubscriptionLedger
	recorder *MutationRecorder
}

// NewUpdateSubscriptionCommand creates a new update subscription command
func NewUpdateSubscriptionCommand(catalog *service.PlanCatalog, ledger *service.SubscriptionLedger, recorder *MutationRecorder) *UpdateSubscriptionCommand {
	return &UpdateSubscriptionCommand{catalog: catalog, ledger: ledger, recorder: recorder}
}

// Execute applies the requested changes. When the plan or start changes and
// no end is given, the end is recomputed from the plan.
func (c *UpdateSubscriptionCommand) Execute(ctx context.Context, actorID, subscriptionID string, req dto.UpdateSubscriptionRequest) (*entity.Subscription, error) {
	id, err := parseID("subscription_id", subscriptionID)
	if err != nil {
		return nil, err
	}

	current, err := c.ledger.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	// The admin edit is not a provider event; keep the stored event time.
	next.LastEventAt = nil

	recompute := false
	if req.PlanID != nil {
		planID, err := parseID("plan_id", *req.PlanID)
		if err != nil {
			return nil, err
		}
		recompute = planID != current.PlanID
		next.PlanID = planID
	}
	if req.Status != nil {
		if next.Status, err = adminStatus(*req.Status); err != nil {
			return nil, err
		}
	}
	if req.PeriodStart != nil {
		next.CurrentPeriodStart = req.PeriodStart.UTC()
		recompute = recompute || !next.CurrentPeriodStart.Equal(current.CurrentPeriodStart)
	}

	switch {
	case req.PeriodEnd != nil:
		next.CurrentPeriodEnd = req.PeriodEnd.UTC()
	case recompute:
		plan, err := c.catalog.FindPlanByID(ctx, next.PlanID)
		if err != nil {
			return nil, err
		}
		next.CurrentPeriodEnd = plan.PeriodEndFor(next.Status, next.CurrentPeriodStart)
	}

	stored, err := c.ledger.UpsertSubscriptionByExternalID(ctx, &next)
	if err != nil {
		return nil, err
	}

	c.recorder.Record(ctx, actorID, ActionSubscriptionUpdate, "subscription", stored.ID.String(), map[string]interface{}{
		"before": map[string]interface{}{
			"plan_id":    current.PlanID.String(),
			"status":     current.Status,
			"period_end": current.CurrentPeriodEnd,
		},
		"after": map[string]interface{}{
			"plan_id":    stored.PlanID.String(),
			"status":     stored.Status,
			"period_end": stored.CurrentPeriodEnd,
		},
	})
	return stored, nil
}

// DeleteSubscriptionCommand hard-deletes a subscription
type DeleteSubscriptionCommand struct {
	ledger   *service.SubscriptionLedger
	recorder *MutationRecorder
}

// NewDeleteSubscriptionCommand creates a new delete subscription command
func NewDeleteSubscriptionCommand(ledger *service.SubscriptionLedger, recorder *MutationRecorder) *DeleteSubscriptionCommand {
	return &DeleteSubscriptionCommand{ledger: ledger, recorder: recorder}
}

// Execute executes the delete subscription command
func (c *DeleteSubscriptionCommand) Execute(ctx context.Context, actorID, subscriptionID string) error {
	id, err := parseID("subscription_id", subscriptionID)
	if err != nil {
		return err
	}

	current, err := c.ledger.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if err := c.ledger.DeleteSubscription(ctx, id); err != nil {
		return err
	}

	c.recorder.Record(ctx, actorID, ActionSubscriptionDelete, "subscription", id.String(), map[string]interface{}{
		"user_id":     current.UserID.String(),
		"external_id": current.ExternalID,
		"status":      current.Status,
	})
	return nil
}

// adminStatus accepts only the statuses the ledger itself writes
func adminStatus(raw string) (valueobject.SubscriptionStatus, error) {
	status := valueobject.NormalizeSubscriptionStatus(raw)
	if !status.IsKnown() {
		return "", domainErrors.NewValidationError("status", fmt.Sprintf("unsupported status %q", raw))
	}
	return status, nil
}
