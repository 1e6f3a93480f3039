package logging

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mediz-app/mediz-billing/internal/infrastructure/config"
)

// Logger is the process-wide logger. It is a no-op until Init runs.
var Logger = zap.NewNop()

var sentryEnabled bool

// Init initializes the global logger and, when a DSN is set, Sentry
func Init(cfg *config.SentryConfig) error {
	var zapConfig zap.Config

	// Use development config in dev/staging, production in prod
	environment := "production"
	if cfg != nil && cfg.Environment != "" {
		environment = cfg.Environment
	}

	if environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return err
	}
	Logger = logger

	if cfg != nil && cfg.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.DSN,
			Environment: environment,
			Release:     cfg.Release,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		sentryEnabled = true
		Logger.Info("Sentry error reporting enabled", zap.String("environment", environment))
	}

	return nil
}

// Sync flushes any buffered log entries and pending Sentry events
func Sync() {
	if sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// CaptureError logs err and reports it to Sentry with the given tags
func CaptureError(logger *zap.Logger, msg string, err error, tags map[string]string) {
	if logger == nil {
		logger = Logger
	}
	fields := make([]zap.Field, 0, len(tags)+1)
	fields = append(fields, zap.Error(err))
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	logger.Error(msg, fields...)

	if !sentryEnabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}

// WithComponent creates a child logger with a component field
func WithComponent(component string) *zap.Logger {
	return Logger.With(zap.String("component", component))
}
