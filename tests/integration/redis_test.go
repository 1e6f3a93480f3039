//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcwait "github.com/testcontainers/testcontainers-go/wait"

	"github.com/mediz-app/mediz-billing/internal/application/middleware"
	"github.com/mediz-app/mediz-billing/internal/application/query"
	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/cache"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/config"
	"github.com/mediz-app/mediz-billing/internal/worker/tasks"
	"github.com/mediz-app/mediz-billing/tests/testutil"
)

type RedisSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	client    *redis.Client
}

func TestRedis(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   tcwait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(s.ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(s.ctx, "6379")
	s.Require().NoError(err)

	s.client, err = cache.NewRedisClient(s.ctx, config.RedisConfig{
		URL:      fmt.Sprintf("redis://%s:%s/0", host, port.Port()),
		PoolSize: 5,
	})
	s.Require().NoError(err)
}

func (s *RedisSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		if err := s.container.Terminate(s.ctx); err != nil {
			s.T().Logf("Failed to terminate container: %v", err)
		}
	}
}

func (s *RedisSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(s.ctx).Err())
}

func (s *RedisSuite) TestStatsCacheRoundTripAndInvalidate() {
	c := cache.NewStatsCache(s.client, time.Minute, nil)

	miss, err := c.GetPremiumStats(s.ctx)
	s.Require().NoError(err)
	s.Nil(miss)

	computed := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(c.SetPremiumStats(s.ctx, &cache.PremiumStats{PremiumUsers: 3, EntitledSubscriptions: 4, ComputedAt: computed}))

	hit, err := c.GetPremiumStats(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(hit)
	s.Equal(int64(3), hit.PremiumUsers)
	s.True(hit.ComputedAt.Equal(computed))

	s.Require().NoError(c.Invalidate(s.ctx))
	gone, err := c.GetPremiumStats(s.ctx)
	s.Require().NoError(err)
	s.Nil(gone)
}

func (s *RedisSuite) TestPremiumStatsQueryUsesRedis() {
	svc := testutil.NewMemoryServices()
	plan := svc.MustUpsertPlan(s.T(), entity.ProviderStripe, "price_monthly", "BRL", valueobject.IntervalMonth, 1)
	userID := svc.MustAddCustomer(s.T(), entity.ProviderStripe, "cus_1")
	now := time.Now().UTC()
	svc.Store.PutSubscription(testutil.NewSubscriptionRow(userID, plan, valueobject.StatusActive, now.AddDate(0, 0, -1), now.AddDate(0, 1, 0)))

	q := query.NewPremiumStatsQuery(svc.Resolver, cache.NewStatsCache(s.client, time.Minute, nil), nil)

	first, err := q.Premium(s.ctx, time.Time{})
	s.Require().NoError(err)
	s.False(first.Cached)
	s.Equal(int64(1), first.PremiumUsers)

	second, err := q.Premium(s.ctx, time.Time{})
	s.Require().NoError(err)
	s.True(second.Cached)
	s.Equal(int64(1), second.PremiumUsers)
}

func (s *RedisSuite) TestRateLimiterRejectsOverBurst() {
	gin.SetMode(gin.TestMode)
	limiter := middleware.NewRateLimiter(s.client, false, nil)

	router := gin.New()
	router.GET("/limited",
		limiter.Middleware(middleware.ByIP, middleware.RateLimitConfig{Rate: 2, Burst: 2, Period: time.Minute}),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	s.Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func (s *RedisSuite) TestSweepTaskIsUnique() {
	client := asynq.NewClientFromRedisClient(s.client)

	task, err := tasks.NewSweepPeriodDriftTask(100)
	s.Require().NoError(err)

	info, err := tasks.Enqueue(s.ctx, client, task)
	s.Require().NoError(err)
	s.Equal(tasks.QueueLow, info.Queue)

	_, err = tasks.Enqueue(s.ctx, client, task)
	s.ErrorIs(err, asynq.ErrDuplicateTask)
}
