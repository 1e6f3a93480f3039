package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// DefaultSweepBatchSize is used when a sweep is requested without a size.
const DefaultSweepBatchSize = 500

// PeriodCorrection is the outcome of recomputing one period end.
type PeriodCorrection struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PeriodStart    time.Time `json:"period_start"`
	StoredEnd      time.Time `json:"stored_end"`
	ExpectedEnd    time.Time `json:"expected_end"`
	Corrected      bool      `json:"corrected"`
}

// SweepResult summarizes a pass over every subscription.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Corrected int `json:"corrected"`
	Failed    int `json:"failed"`
}

// SubscriptionLedger is the typed store of subscription rows and the
// period repair operations over it.
type SubscriptionLedger struct {
	subs   repository.SubscriptionRepository
	plans  repository.PlanRepository
	logger *zap.Logger
}

// NewSubscriptionLedger creates a new subscription ledger
func NewSubscriptionLedger(subs repository.SubscriptionRepository, plans repository.PlanRepository, logger *zap.Logger) *SubscriptionLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionLedger{
		subs:   subs,
		plans:  plans,
		logger: logger.With(zap.String("component", "subscription_ledger")),
	}
}

// UpsertSubscriptionByExternalID inserts or fully overwrites the row with the
// same external ID. Replaying the same input converges to the same row.
func (l *SubscriptionLedger) UpsertSubscriptionByExternalID(ctx context.Context, sub *entity.Subscription) (*entity.Subscription, error) {
	if strings.TrimSpace(sub.ExternalID) == "" {
		return nil, domainErrors.NewValidationError("external_id", "is required")
	}
	if sub.CurrentPeriodEnd.Before(sub.CurrentPeriodStart) {
		return nil, domainErrors.NewValidationError("current_period_end", "must not precede current_period_start")
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return l.subs.UpsertByExternalID(ctx, sub)
}

// UpdateStatusByExternalID changes only the status of the matching row.
func (l *SubscriptionLedger) UpdateStatusByExternalID(ctx context.Context, externalID string, status valueobject.SubscriptionStatus, occurredAt *time.Time) (*entity.Subscription, error) {
	return l.subs.UpdateStatusByExternalID(ctx, externalID, status, occurredAt)
}

// GetSubscription returns one row by internal ID
func (l *SubscriptionLedger) GetSubscription(ctx context.Context, id uuid.UUID) (*entity.Subscription, error) {
	return l.subs.GetByID(ctx, id)
}

// ListUserSubscriptions returns the user's full history
func (l *SubscriptionLedger) ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]*entity.Subscription, error) {
	return l.subs.ListByUserID(ctx, userID)
}

// ListActiveSubscriptionsForUser returns the rows granting entitlement at
// asOf (now when zero). More than one row is not an error but is logged.
func (l *SubscriptionLedger) ListActiveSubscriptionsForUser(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*entity.Subscription, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	subs, err := l.subs.ListEntitledByUserID(ctx, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}

	if len(subs) > 1 {
		ids := make([]string, len(subs))
		for i, s := range subs {
			ids[i] = s.ExternalID
		}
		l.logger.Warn("user holds multiple simultaneously active subscriptions",
			zap.String("user_id", userID.String()),
			zap.Strings("external_ids", ids),
		)
	}

	return subs, nil
}

// CountEntitledUsers counts distinct users with an entitled row at asOf.
func (l *SubscriptionLedger) CountEntitledUsers(ctx context.Context, asOf time.Time) (int64, error) {
	return l.subs.CountEntitledUsers(ctx, asOf)
}

// CountEntitledSubscriptions counts entitled rows at asOf.
func (l *SubscriptionLedger) CountEntitledSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	return l.subs.CountEntitledSubscriptions(ctx, asOf)
}

// UsersWithMultipleActive lists users holding more than one entitled row.
func (l *SubscriptionLedger) UsersWithMultipleActive(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	return l.subs.ListUsersWithMultipleEntitled(ctx, asOf, limit)
}

// RecalculatePeriodEnd recomputes the period end from the period start and
// the plan rules and stores it when it differs at day granularity.
func (l *SubscriptionLedger) RecalculatePeriodEnd(ctx context.Context, subscriptionID uuid.UUID) (*PeriodCorrection, error) {
	sub, err := l.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	plan, err := l.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan for subscription %s: %w", subscriptionID, err)
	}

	correction := &PeriodCorrection{
		SubscriptionID: sub.ID,
		PeriodStart:    sub.CurrentPeriodStart,
		StoredEnd:      sub.CurrentPeriodEnd,
		ExpectedEnd:    sub.CurrentPeriodEnd,
	}
	expected, ok := sub.ExpectedPeriodEnd(plan)
	if !ok {
		l.logger.Debug("trial length unknown, period left as stored",
			zap.String("subscription_id", sub.ID.String()),
		)
		return correction, nil
	}
	correction.ExpectedEnd = expected
	if !sub.HasPeriodDrift(plan) {
		return correction, nil
	}

	updated, err := l.subs.UpdatePeriodEnd(ctx, sub.ID, sub.CurrentPeriodStart, correction.ExpectedEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to correct period end: %w", err)
	}
	if !updated {
		l.logger.Warn("subscription period changed during recalculation, left untouched",
			zap.String("subscription_id", sub.ID.String()),
		)
		return correction, nil
	}

	correction.Corrected = true
	l.logger.Info("period drift corrected",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("external_id", sub.ExternalID),
		zap.Time("stored_end", correction.StoredEnd),
		zap.Time("expected_end", correction.ExpectedEnd),
	)
	return correction, nil
}

// RecalculateUserHistory runs RecalculatePeriodEnd over every row the user
// has ever held.
func (l *SubscriptionLedger) RecalculateUserHistory(ctx context.Context, userID uuid.UUID) ([]*PeriodCorrection, error) {
	subs, err := l.subs.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user subscriptions: %w", err)
	}

	corrections := make([]*PeriodCorrection, 0, len(subs))
	for _, sub := range subs {
		c, err := l.RecalculatePeriodEnd(ctx, sub.ID)
		if err != nil {
			return corrections, err
		}
		corrections = append(corrections, c)
	}
	return corrections, nil
}

// SweepPeriodDrift recalculates every subscription in ID order. A failing
// row is logged and counted; the sweep only stops when ctx is done.
func (l *SubscriptionLedger) SweepPeriodDrift(ctx context.Context, batchSize int) (*SweepResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}

	result := &SweepResult{}
	after := uuid.Nil
	for {
		ids, err := l.subs.ListIDsAfter(ctx, after, batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to page subscriptions: %w", err)
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Scanned++

			c, err := l.RecalculatePeriodEnd(ctx, id)
			switch {
			case errors.Is(err, domainErrors.ErrSubscriptionNotFound):
				// deleted between paging and reading
			case err != nil:
				result.Failed++
				l.logger.Error("period recalculation failed",
					zap.String("subscription_id", id.String()),
					zap.Error(err),
				)
			case c.Corrected:
				result.Corrected++
			}
		}

		if len(ids) < batchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	l.logger.Info("period drift sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("corrected", result.Corrected),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// DeleteSubscription hard-deletes a row. Only reachable from admin actions.
func (l *SubscriptionLedger) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	return l.subs.Delete(ctx, id)
}
