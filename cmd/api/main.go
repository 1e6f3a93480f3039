package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/app"
	"github.com/mediz-app/mediz-billing/internal/application/command"
	"github.com/mediz-app/mediz-billing/internal/application/middleware"
	"github.com/mediz-app/mediz-billing/internal/application/query"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/cache"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/config"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/external/billing"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/logging"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/persistence/pool"
	"github.com/mediz-app/mediz-billing/internal/interfaces/http/handlers"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger and Sentry
	if err := logging.Init(&cfg.Sentry); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync()
	logger := logging.Logger

	logger.Info("Starting billing API server",
		zap.Int("port", cfg.Server.Port),
		zap.String("environment", cfg.Sentry.Environment),
	)

	ctx := context.Background()

	// Initialize database pool
	dbPool, err := pool.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Fatal("Failed to ping database", zap.Error(err))
	}
	logger.Info("Database connection established")

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connection established")

	// Domain core
	core := app.NewCore(dbPool, logger)
	statsCache := cache.NewStatsCache(redisClient, cfg.Billing.StatsCacheTTL, logger)

	jobs := asynq.NewClientFromRedisClient(redisClient)
	defer jobs.Close()

	// Commands and queries
	recorder := command.NewMutationRecorder(core.Audit, statsCache, logger)
	adminCmd := handlers.AdminCommands{
		UpsertPlan:         command.NewUpsertPlanCommand(core.Catalog, recorder),
		DeactivatePlan:     command.NewDeactivatePlanCommand(core.Catalog, recorder),
		GrantSubscription:  command.NewGrantSubscriptionCommand(core.Catalog, core.Ledger, core.Customers, recorder),
		UpdateSubscription: command.NewUpdateSubscriptionCommand(core.Catalog, core.Ledger, recorder),
		DeleteSubscription: command.NewDeleteSubscriptionCommand(core.Ledger, recorder),
		RecalculatePeriods: command.NewRecalculatePeriodsCommand(core.Ledger, jobs, cfg.Billing.DriftSweepBatchSize, recorder),
	}
	adminQry := handlers.AdminQueries{
		Plans:         query.NewPlanQuery(core.Catalog),
		Subscriptions: query.NewSubscriptionQuery(core.Ledger),
		Stats:         query.NewPremiumStatsQuery(core.Resolver, statsCache, logger),
	}

	webhooks := handlers.NewWebhookHandler(
		billing.NewStripeAdapter(cfg.Billing.StripeWebhookSecret),
		billing.NewHotmartAdapter(cfg.Billing.HotmartHottok),
		core.WebhookEvents,
		core.Reconciler,
		cfg.Server.WebhookTimeout,
	)

	adminLimit := middleware.AdminConfig
	if cfg.Billing.AdminRateLimit > 0 {
		adminLimit.Rate = cfg.Billing.AdminRateLimit
	}

	if cfg.Sentry.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:      logger,
		Verifier:    middleware.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer),
		RateLimiter: middleware.NewRateLimiter(redisClient, true, logger),
		AdminLimit:  adminLimit,
		Webhooks:    webhooks,
		Admin:       handlers.NewAdminHandler(adminCmd, adminQry),
		Entitlement: handlers.NewEntitlementHandler(query.NewEntitlementQuery(core.Ledger)),
		Health: map[string]handlers.HealthCheck{
			"postgres": dbPool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
