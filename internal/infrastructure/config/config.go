package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Billing  BillingConfig
	Sentry   SentryConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	WebhookTimeout  time.Duration
}

// JWTConfig holds the settings used to verify back-office tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL          string
	Password     string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// BillingConfig holds provider credentials and ledger maintenance settings
type BillingConfig struct {
	StripeWebhookSecret string
	HotmartHottok       string
	DriftSweepCron      string
	DriftSweepBatchSize int
	StatsCacheTTL       time.Duration
	AdminRateLimit      int
}

// SentryConfig holds Sentry configuration
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// Load loads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// .env file is optional for production (env vars are used)
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := fromViper(v)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			WebhookTimeout:  v.GetDuration("SERVER_WEBHOOK_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:            v.GetString("DATABASE_URL"),
			MaxConnections: v.GetInt("DATABASE_MAX_CONNECTIONS"),
			MinConnections: v.GetInt("DATABASE_MIN_CONNECTIONS"),
			MaxLifetime:    v.GetDuration("DATABASE_MAX_LIFETIME"),
			MaxIdleTime:    v.GetDuration("DATABASE_MAX_IDLE_TIME"),
			HealthCheck:    v.GetDuration("DATABASE_HEALTH_CHECK"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			Password:     v.GetString("REDIS_PASSWORD"),
			PoolSize:     v.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: v.GetInt("REDIS_MIN_IDLE_CONNS"),
			DialTimeout:  v.GetDuration("REDIS_DIAL_TIMEOUT"),
			ReadTimeout:  v.GetDuration("REDIS_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("REDIS_WRITE_TIMEOUT"),
			PoolTimeout:  v.GetDuration("REDIS_POOL_TIMEOUT"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISSUER"),
		},
		Billing: BillingConfig{
			StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			HotmartHottok:       v.GetString("HOTMART_HOTTOK"),
			DriftSweepCron:      v.GetString("BILLING_DRIFT_SWEEP_CRON"),
			DriftSweepBatchSize: v.GetInt("BILLING_DRIFT_SWEEP_BATCH_SIZE"),
			StatsCacheTTL:       v.GetDuration("BILLING_STATS_CACHE_TTL"),
			AdminRateLimit:      v.GetInt("BILLING_ADMIN_RATE_LIMIT"),
		},
		Sentry: SentryConfig{
			DSN:         v.GetString("SENTRY_DSN"),
			Environment: v.GetString("SENTRY_ENVIRONMENT"),
			Release:     v.GetString("SENTRY_RELEASE"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 10*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WEBHOOK_TIMEOUT", 8*time.Second)

	// Database defaults
	db := DefaultDatabaseConfig()
	v.SetDefault("DATABASE_MAX_CONNECTIONS", db.MaxConnections)
	v.SetDefault("DATABASE_MIN_CONNECTIONS", db.MinConnections)
	v.SetDefault("DATABASE_MAX_LIFETIME", db.MaxLifetime)
	v.SetDefault("DATABASE_MAX_IDLE_TIME", db.MaxIdleTime)
	v.SetDefault("DATABASE_HEALTH_CHECK", db.HealthCheck)

	// JWT defaults
	v.SetDefault("JWT_ISSUER", "mediz")

	// Redis defaults
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 3)
	v.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
	v.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
	v.SetDefault("REDIS_POOL_TIMEOUT", 4*time.Second)

	// Billing defaults
	v.SetDefault("BILLING_DRIFT_SWEEP_CRON", "30 3 * * *")
	v.SetDefault("BILLING_DRIFT_SWEEP_BATCH_SIZE", 500)
	v.SetDefault("BILLING_STATS_CACHE_TTL", time.Minute)
	v.SetDefault("BILLING_ADMIN_RATE_LIMIT", 60)

	v.SetDefault("SENTRY_ENVIRONMENT", "development")
}

func validate(cfg *Config) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if cfg.Billing.StripeWebhookSecret == "" && cfg.Billing.HotmartHottok == "" {
		return fmt.Errorf("at least one of STRIPE_WEBHOOK_SECRET or HOTMART_HOTTOK is required")
	}
	if cfg.Billing.DriftSweepBatchSize <= 0 {
		return fmt.Errorf("BILLING_DRIFT_SWEEP_BATCH_SIZE must be positive")
	}
	return nil
}
