package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/app"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/cache"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/config"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/logging"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/persistence/pool"
	worker_tasks "github.com/mediz-app/mediz-billing/internal/worker/tasks"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logging.Init(&cfg.Sentry); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync()
	logger := logging.WithComponent("worker")

	logger.Info("Starting billing worker",
		zap.String("drift_sweep_cron", cfg.Billing.DriftSweepCron),
		zap.Int("drift_sweep_batch_size", cfg.Billing.DriftSweepBatchSize),
	)

	ctx := context.Background()
	dbPool, err := pool.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database pool", zap.Error(err))
	}
	defer pool.Close(dbPool)

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	core := app.NewCore(dbPool, logger)
	statsCache := cache.NewStatsCache(redisClient, cfg.Billing.StatsCacheTTL, logger)
	taskHandlers := worker_tasks.NewTaskHandlers(core.Ledger, core.Resolver, statsCache, logger)

	server := asynq.NewServerFromRedisClient(redisClient, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			worker_tasks.QueueCritical: 6,
			worker_tasks.QueueDefault:  3,
			worker_tasks.QueueLow:      1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			// Exponential backoff: 2^n seconds
			return time.Duration(1<<uint(n)) * time.Second
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logging.CaptureError(logger, "Task failed", err, map[string]string{"task_type": task.Type()})
		}),
	})

	mux := asynq.NewServeMux()
	worker_tasks.RegisterHandlers(mux, taskHandlers)

	if err := server.Start(mux); err != nil {
		logger.Fatal("Failed to start worker", zap.Error(err))
	}

	scheduler := asynq.NewSchedulerFromRedisClient(redisClient, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	if err := worker_tasks.RegisterScheduledTasks(scheduler, cfg.Billing.DriftSweepCron, cfg.Billing.DriftSweepBatchSize); err != nil {
		logger.Fatal("Failed to register scheduled tasks", zap.Error(err))
	}

	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	logger.Info("Worker started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")

	scheduler.Shutdown()
	server.Shutdown()

	logger.Info("Worker exited")
}
