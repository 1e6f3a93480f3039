package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/cache"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/metrics"
)

// Task names
const (
	TypeSweepPeriodDrift       = "ledger:sweep_period_drift"
	TypeRecalculateUserPeriods = "ledger:recalculate_user"
	TypeRefreshPremiumStats    = "stats:refresh_premium"
)

// Queue names, weighted in cmd/worker
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// DefaultStatsRefreshCron refreshes the premium gauge and cache.
const DefaultStatsRefreshCron = "*/5 * * * *"

// SweepPeriodDriftPayload is the payload for the drift sweep
type SweepPeriodDriftPayload struct {
	BatchSize int `json:"batch_size"`
}

// RecalculateUserPeriodsPayload is the payload for a per-user recalculation
type RecalculateUserPeriodsPayload struct {
	UserID  string `json:"user_id"`
	ActorID string `json:"actor_id,omitempty"`
}

// Enqueuer is satisfied by *asynq.Client
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StatsWriter stores freshly computed premium aggregates
type StatsWriter interface {
	SetPremiumStats(ctx context.Context, stats *cache.PremiumStats) error
}

// NewSweepPeriodDriftTask builds a drift sweep task. Only one may be queued
// at a time.
func NewSweepPeriodDriftTask(batchSize int) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPeriodDriftPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSweepPeriodDrift, payload,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Hour),
		asynq.Unique(time.Hour),
	), nil
}

// NewRecalculateUserPeriodsTask builds a per-user recalculation task
func NewRecalculateUserPeriodsTask(userID uuid.UUID, actorID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RecalculateUserPeriodsPayload{UserID: userID.String(), ActorID: actorID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRecalculateUserPeriods, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(5),
		asynq.Timeout(5*time.Minute),
	), nil
}

// TaskHandlers holds dependencies for all task handlers.
type TaskHandlers struct {
	ledger   *service.SubscriptionLedger
	resolver *service.EntitlementResolver
	stats    StatsWriter
	logger   *zap.Logger
}

// NewTaskHandlers creates task handlers. stats may be nil.
func NewTaskHandlers(ledger *service.SubscriptionLedger, resolver *service.EntitlementResolver, stats StatsWriter, logger *zap.Logger) *TaskHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskHandlers{
		ledger:   ledger,
		resolver: resolver,
		stats:    stats,
		logger:   logger.With(zap.String("component", "tasks")),
	}
}

// RegisterHandlers registers all task handlers with the server mux.
func RegisterHandlers(mux *asynq.ServeMux, h *TaskHandlers) {
	mux.HandleFunc(TypeSweepPeriodDrift, h.HandleSweepPeriodDrift)
	mux.HandleFunc(TypeRecalculateUserPeriods, h.HandleRecalculateUserPeriods)
	mux.HandleFunc(TypeRefreshPremiumStats, h.HandleRefreshPremiumStats)
}

// RegisterScheduledTasks registers all scheduled (cron) tasks
func RegisterScheduledTasks(scheduler *asynq.Scheduler, sweepCron string, batchSize int) error {
	sweep, err := NewSweepPeriodDriftTask(batchSize)
	if err != nil {
		return err
	}
	if _, err := scheduler.Register(sweepCron, sweep); err != nil {
		return fmt.Errorf("failed to schedule period drift sweep: %w", err)
	}

	refresh := asynq.NewTask(TypeRefreshPremiumStats, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
	if _, err := scheduler.Register(DefaultStatsRefreshCron, refresh); err != nil {
		return fmt.Errorf("failed to schedule premium stats refresh: %w", err)
	}
	return nil
}

// HandleSweepPeriodDrift rewrites drifted period ends across the ledger
func (h *TaskHandlers) HandleSweepPeriodDrift(ctx context.Context, t *asynq.Task) error {
	var p SweepPeriodDriftPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("invalid sweep payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	result, err := h.ledger.SweepPeriodDrift(ctx, p.BatchSize)
	if result != nil {
		metrics.DriftSweepRows.WithLabelValues("scanned").Add(float64(result.Scanned))
		metrics.DriftSweepRows.WithLabelValues("corrected").Add(float64(result.Corrected))
		metrics.DriftSweepRows.WithLabelValues("failed").Add(float64(result.Failed))
		metrics.PeriodCorrections.WithLabelValues(metrics.TriggerSweep).Add(float64(result.Corrected))
	}
	if err != nil {
		return fmt.Errorf("period drift sweep interrupted: %w", err)
	}
	return nil
}

// HandleRecalculateUserPeriods recomputes every period end of one user
func (h *TaskHandlers) HandleRecalculateUserPeriods(ctx context.Context, t *asynq.Task) error {
	var p RecalculateUserPeriodsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid recalculation payload: %v: %w", err, asynq.SkipRetry)
	}
	userID, err := uuid.Parse(p.UserID)
	if err != nil {
		return fmt.Errorf("invalid user_id %q: %w", p.UserID, asynq.SkipRetry)
	}

	corrections, err := h.ledger.RecalculateUserHistory(ctx, userID)
	corrected := 0
	for _, c := range corrections {
		if c.Corrected {
			corrected++
		}
	}
	metrics.PeriodCorrections.WithLabelValues(metrics.TriggerAdmin).Add(float64(corrected))
	if err != nil {
		return fmt.Errorf("recalculation for user %s failed: %w", userID, err)
	}

	h.logger.Info("User periods recalculated",
		zap.String("user_id", userID.String()),
		zap.String("actor_id", p.ActorID),
		zap.Int("subscriptions", len(corrections)),
		zap.Int("corrected", corrected),
	)
	return nil
}

// HandleRefreshPremiumStats recomputes the premium aggregates
func (h *TaskHandlers) HandleRefreshPremiumStats(ctx context.Context, t *asynq.Task) error {
	now := time.Now().UTC()
	report, err := h.resolver.ConsistencyReport(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to compute premium stats: %w", err)
	}
	metrics.PremiumUsers.Set(float64(report.PremiumUsers))

	if len(report.UsersWithMultipleActive) > 0 {
		h.logger.Warn("Users holding more than one entitled subscription",
			zap.Int("count", len(report.UsersWithMultipleActive)),
			zap.Bool("limited", report.MultipleActiveListLimited),
		)
	}

	if h.stats == nil {
		return nil
	}
	err = h.stats.SetPremiumStats(ctx, &cache.PremiumStats{
		PremiumUsers:          report.PremiumUsers,
		EntitledSubscriptions: report.EntitledSubscriptions,
		ComputedAt:            now,
	})
	if err != nil {
		// The gauge is updated; a cold cache only costs a query.
		h.logger.Warn("Failed to cache premium stats", zap.Error(err))
	}
	return nil
}

// Enqueue is a small helper used by the API and CLI
func Enqueue(ctx context.Context, client Enqueuer, task *asynq.Task) (*asynq.TaskInfo, error) {
	info, err := client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%s already queued: %w", task.Type(), err)
	}
	return info, err
}
