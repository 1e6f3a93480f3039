package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache key constants
const (
	KeyPremiumStats = "billing:stats:premium"
	KeyConsistency  = "billing:stats:consistency"
)

// DefaultStatsTTL is used when no TTL is configured
const DefaultStatsTTL = time.Minute

// PremiumStats is the cached aggregate behind the premium dashboard
type PremiumStats struct {
	PremiumUsers          int64     `json:"premium_users"`
	EntitledSubscriptions int64     `json:"entitled_subscriptions"`
	ComputedAt            time.Time `json:"computed_at"`
}

// StatsCache caches premium aggregates in Redis
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewStatsCache creates a new stats cache
func NewStatsCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// GetPremiumStats returns the cached stats, or nil on a miss
func (c *StatsCache) GetPremiumStats(ctx context.Context) (*PremiumStats, error) {
	var stats PremiumStats
	ok, err := c.get(ctx, KeyPremiumStats, &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

// SetPremiumStats stores stats for the configured TTL
func (c *StatsCache) SetPremiumStats(ctx context.Context, stats *PremiumStats) error {
	return c.set(ctx, KeyPremiumStats, stats)
}

// GetConsistency decodes a cached consistency report into dst
func (c *StatsCache) GetConsistency(ctx context.Context, dst interface{}) (bool, error) {
	return c.get(ctx, KeyConsistency, dst)
}

// SetConsistency caches a consistency report
func (c *StatsCache) SetConsistency(ctx context.Context, report interface{}) error {
	return c.set(ctx, KeyConsistency, report)
}

// Invalidate drops every cached aggregate. Called after admin mutations.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, KeyPremiumStats, KeyConsistency).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stats cache: %w", err)
	}
	return nil
}

func (c *StatsCache) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A corrupt entry is treated as a miss and overwritten later.
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (c *StatsCache) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	c.logger.Debug("Cached stats", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}
