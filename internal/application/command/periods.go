package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/mediz-app/mediz-billing/internal/application/dto"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/metrics"
	"github.com/mediz-app/mediz-billing/internal/worker/tasks"
)

// ErrJobsUnavailable is returned when no task queue is wired
var ErrJobsUnavailable = errors.New("background jobs are not configured")

// RecalculatePeriodsCommand repairs period ends on demand
type RecalculatePeriodsCommand struct {
	ledger    *service.SubscriptionLedger
	enqueuer  tasks.Enqueuer
	batchSize int
	recorder  *MutationRecorder
}

// NewRecalculatePeriodsCommand creates the command. enqueuer may be nil, in
// which case only synchronous recalculation is available.
func NewRecalculatePeriodsCommand(ledger *service.SubscriptionLedger, enqueuer tasks.Enqueuer, batchSize int, recorder *MutationRecorder) *RecalculatePeriodsCommand {
	return &RecalculatePeriodsCommand{ledger: ledger, enqueuer: enqueuer, batchSize: batchSize, recorder: recorder}
}

// ForUser recalculates every subscription the user has held
func (c *RecalculatePeriodsCommand) ForUser(ctx context.Context, actorID, userID string) (*dto.RecalculateResponse, error) {
	uid, err := parseID("user_id", userID)
	if err != nil {
		return nil, err
	}

	corrections, err := c.ledger.RecalculateUserHistory(ctx, uid)
	corrected := countCorrected(corrections)
	if corrected > 0 {
		metrics.PeriodCorrections.WithLabelValues(metrics.TriggerAdmin).Add(float64(corrected))
		c.recorder.Record(ctx, actorID, ActionPeriodsRecalculate, "user", uid.String(), map[string]interface{}{
			"corrected": corrected,
			"scanned":   len(corrections),
		})
	}
	if err != nil {
		return nil, err
	}

	return &dto.RecalculateResponse{Corrections: corrections, Corrected: corrected}, nil
}

// ForSubscription recalculates a single subscription
func (c *RecalculatePeriodsCommand) ForSubscription(ctx context.Context, actorID, subscriptionID string) (*service.PeriodCorrection, error) {
	id, err := parseID("subscription_id", subscriptionID)
	if err != nil {
		return nil, err
	}

	correction, err := c.ledger.RecalculatePeriodEnd(ctx, id)
	if err != nil {
		return nil, err
	}
	if correction.Corrected {
		metrics.PeriodCorrections.WithLabelValues(metrics.TriggerAdmin).Inc()
		c.recorder.Record(ctx, actorID, ActionPeriodsRecalculate, "subscription", id.String(), map[string]interface{}{
			"stored_end":   correction.StoredEnd,
			"expected_end": correction.ExpectedEnd,
		})
	}
	return correction, nil
}

// EnqueueForUser schedules ForUser on the worker
func (c *RecalculatePeriodsCommand) EnqueueForUser(ctx context.Context, actorID, userID string) (*dto.RecalculateResponse, error) {
	if c.enqueuer == nil {
		return nil, ErrJobsUnavailable
	}
	uid, err := parseID("user_id", userID)
	if err != nil {
		return nil, err
	}

	task, err := tasks.NewRecalculateUserPeriodsTask(uid, actorID)
	if err != nil {
		return nil, err
	}
	info, err := tasks.Enqueue(ctx, c.enqueuer, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue recalculation: %w", err)
	}

	c.recorder.Record(ctx, actorID, ActionPeriodsRecalculateBg, "user", uid.String(), map[string]interface{}{"task_id": info.ID})
	return &dto.RecalculateResponse{Enqueued: true, TaskID: info.ID}, nil
}

// EnqueueSweep schedules a full drift sweep on the worker
func (c *RecalculatePeriodsCommand) EnqueueSweep(ctx context.Context, actorID string) (*dto.EnqueuedResponse, error) {
	if c.enqueuer == nil {
		return nil, ErrJobsUnavailable
	}

	task, err := tasks.NewSweepPeriodDriftTask(c.batchSize)
	if err != nil {
		return nil, err
	}
	info, err := tasks.Enqueue(ctx, c.enqueuer, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue sweep: %w", err)
	}

	c.recorder.Record(ctx, actorID, ActionPeriodSweepEnqueue, "ledger", "subscriptions", map[string]interface{}{"task_id": info.ID})
	return &dto.EnqueuedResponse{TaskID: info.ID, Queue: info.Queue}, nil
}

func countCorrected(corrections []*service.PeriodCorrection) int {
	n := 0
	for _, c := range corrections {
		if c.Corrected {
			n++
		}
	}
	return n
}
