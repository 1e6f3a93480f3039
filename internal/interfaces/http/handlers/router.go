package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/application/middleware"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/logging"
)

// HealthCheck checks one backing dependency
type HealthCheck func(ctx context.Context) error

// RouterConfig carries everything the HTTP surface is built from
type RouterConfig struct {
	Logger      *zap.Logger
	Verifier    *middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter // nil disables throttling
	AdminLimit  middleware.RateLimitConfig
	Webhooks    *WebhookHandler
	Admin       *AdminHandler
	Entitlement *EntitlementHandler
	Health      map[string]HealthCheck
}

// NewRouter wires the webhook, entitlement and admin routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Logger
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		logging.RequestMiddleware(logger),
	)

	router.GET("/health", healthHandler(cfg.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Verified by provider signature, not by JWT
	webhooks := router.Group("/webhook")
	{
		webhooks.POST("/stripe", cfg.Webhooks.StripeWebhook)
		webhooks.POST("/hotmart", cfg.Webhooks.HotmartWebhook)
	}

	limit := func(key func(*gin.Context) string, rl middleware.RateLimitConfig) gin.HandlerFunc {
		if cfg.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return cfg.RateLimiter.Middleware(key, rl)
	}

	adminLimit := cfg.AdminLimit
	if adminLimit.Rate <= 0 {
		adminLimit = middleware.AdminConfig
	}

	v1 := router.Group("/v1")

	v1.GET("/users/:id/entitlement",
		middleware.RequireRole(cfg.Verifier, middleware.RoleService, middleware.RoleAdmin),
		limit(middleware.ByActor, middleware.ServiceConfig),
		cfg.Entitlement.GetEntitlement,
	)

	admin := v1.Group("/admin")
	admin.Use(
		middleware.RequireRole(cfg.Verifier, middleware.RoleAdmin),
		limit(middleware.ByActor, adminLimit),
	)
	{
		admin.POST("/plans", cfg.Admin.UpsertPlan)
		admin.GET("/plans", cfg.Admin.ListPlans)
		admin.POST("/plans/:id/deactivate", cfg.Admin.DeactivatePlan)

		admin.GET("/users/:id/subscriptions", cfg.Admin.ListUserSubscriptions)
		admin.GET("/users/:id/subscriptions/active", cfg.Admin.ListActiveSubscriptions)
		admin.POST("/users/:id/subscriptions", cfg.Admin.GrantSubscription)
		admin.POST("/users/:id/subscriptions/recalculate",
			limit(middleware.ByActorAndEndpoint, middleware.MaintenanceConfig),
			cfg.Admin.RecalculateUserPeriods,
		)

		admin.PUT("/subscriptions/:id", cfg.Admin.UpdateSubscription)
		admin.DELETE("/subscriptions/:id", cfg.Admin.DeleteSubscription)
		admin.POST("/subscriptions/:id/recalculate", cfg.Admin.RecalculateSubscriptionPeriod)

		admin.POST("/maintenance/period-sweep",
			limit(middleware.ByActorAndEndpoint, middleware.MaintenanceConfig),
			cfg.Admin.EnqueuePeriodSweep,
		)

		admin.GET("/stats/premium", cfg.Admin.PremiumStats)
		admin.GET("/stats/consistency", cfg.Admin.ConsistencyStats)
	}

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
