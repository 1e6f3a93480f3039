package query

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/application/dto"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/cache"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/metrics"
)

// StatsCache is the subset of the Redis stats cache used by queries
type StatsCache interface {
	GetPremiumStats(ctx context.Context) (*cache.PremiumStats, error)
	SetPremiumStats(ctx context.Context, stats *cache.PremiumStats) error
	GetConsistency(ctx context.Context, dst interface{}) (bool, error)
	SetConsistency(ctx context.Context, report interface{}) error
}

// PremiumStatsQuery serves the premium dashboard. Only "now" requests are
// cached; an explicit asOf always hits the database.
type PremiumStatsQuery struct {
	resolver *service.EntitlementResolver
	cache    StatsCache
	logger   *zap.Logger
}

// NewPremiumStatsQuery creates the query. cache may be nil.
func NewPremiumStatsQuery(resolver *service.EntitlementResolver, cache StatsCache, logger *zap.Logger) *PremiumStatsQuery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PremiumStatsQuery{resolver: resolver, cache: cache, logger: logger}
}

// Premium returns the distinct premium user count
func (q *PremiumStatsQuery) Premium(ctx context.Context, asOf time.Time) (*dto.PremiumStatsResponse, error) {
	useCache := asOf.IsZero() && q.cache != nil
	if useCache {
		stats, err := q.cache.GetPremiumStats(ctx)
		if err != nil {
			q.logger.Warn("Premium stats cache read failed", zap.Error(err))
		}
		if stats != nil {
			return &dto.PremiumStatsResponse{
				PremiumUsers:          stats.PremiumUsers,
				EntitledSubscriptions: stats.EntitledSubscriptions,
				AsOf:                  stats.ComputedAt.Format(time.RFC3339),
				Cached:                true,
			}, nil
		}
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	report, err := q.resolver.ConsistencyReport(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if useCache {
		metrics.PremiumUsers.Set(float64(report.PremiumUsers))
		stats := &cache.PremiumStats{
			PremiumUsers:          report.PremiumUsers,
			EntitledSubscriptions: report.EntitledSubscriptions,
			ComputedAt:            asOf,
		}
		if err := q.cache.SetPremiumStats(ctx, stats); err != nil {
			q.logger.Warn("Premium stats cache write failed", zap.Error(err))
		}
	}

	return &dto.PremiumStatsResponse{
		PremiumUsers:          report.PremiumUsers,
		EntitledSubscriptions: report.EntitledSubscriptions,
		AsOf:                  asOf.Format(time.RFC3339),
	}, nil
}

// Consistency returns the premium consistency report
func (q *PremiumStatsQuery) Consistency(ctx context.Context, asOf time.Time) (*service.ConsistencyReport, error) {
	useCache := asOf.IsZero() && q.cache != nil
	if useCache {
		var cached service.ConsistencyReport
		ok, err := q.cache.GetConsistency(ctx, &cached)
		if err != nil {
			q.logger.Warn("Consistency cache read failed", zap.Error(err))
		}
		if ok {
			return &cached, nil
		}
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	report, err := q.resolver.ConsistencyReport(ctx, asOf)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := q.cache.SetConsistency(ctx, report); err != nil {
			q.logger.Warn("Consistency cache write failed", zap.Error(err))
		}
	}
	return report, nil
}
