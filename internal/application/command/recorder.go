package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/service"
)

// Audit actions
const (
	ActionPlanUpsert           = "plan.upsert"
	ActionPlanDeactivate       = "plan.deactivate"
	ActionSubscriptionGrant    = "subscription.grant"
	ActionSubscriptionUpdate   = "subscription.update"
	ActionSubscriptionDelete   = "subscription.delete"
	ActionPeriodsRecalculate   = "subscription.recalculate_periods"
	ActionPeriodsRecalculateBg = "subscription.recalculate_periods.enqueue"
	ActionPeriodSweepEnqueue   = "maintenance.period_sweep.enqueue"
)

// StatsInvalidator drops cached premium aggregates
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// MutationRecorder writes the audit trail after a successful admin mutation
// and drops cached aggregates. Failures are logged: the mutation already
// happened and must not be reported as failed.
type MutationRecorder struct {
	audit  *service.AuditService
	cache  StatsInvalidator
	logger *zap.Logger
}

// NewMutationRecorder creates a recorder. cache may be nil.
func NewMutationRecorder(audit *service.AuditService, cache StatsInvalidator, logger *zap.Logger) *MutationRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MutationRecorder{audit: audit, cache: cache, logger: logger}
}

// Record logs the action and invalidates cached stats
func (r *MutationRecorder) Record(ctx context.Context, actorID, action, targetType, targetID string, details map[string]interface{}) {
	if err := r.audit.LogAction(ctx, actorID, action, targetType, targetID, details); err != nil {
		r.logger.Error("Failed to write audit log",
			zap.String("action", action),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx); err != nil {
		r.logger.Warn("Failed to invalidate stats cache", zap.Error(err))
	}
}
