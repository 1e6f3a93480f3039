// Command billingctl runs catalog and ledger maintenance against the
// billing database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediz-app/mediz-billing/internal/app"
	"github.com/mediz-app/mediz-billing/internal/application/command"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/service"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/cache"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/config"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/logging"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/persistence/pool"
)

// backend is the slice of the billing core the CLI drives.
type backend struct {
	Catalog   *service.PlanCatalog
	Ledger    *service.SubscriptionLedger
	Resolver  *service.EntitlementResolver
	Customers repository.CustomerRepository
	Recorder  *command.MutationRecorder
	BatchSize int
	Close     func()
}

type opener func(ctx context.Context) (*backend, error)

const timeLayout = time.RFC3339

func main() {
	if err := newRootCmd(openDatabase).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	var actor string

	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Billing catalog and ledger maintenance",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "Actor recorded in the audit log")

	env := &cliEnv{open: open, actor: &actor}
	root.AddCommand(
		newPlansCmd(env),
		newPeriodsCmd(env),
		newPremiumCmd(env),
		newCustomersCmd(env),
	)
	return root
}

// cliEnv lazily opens the backend once per invocation.
type cliEnv struct {
	open  opener
	actor *string
}

func (e *cliEnv) run(cmd *cobra.Command, fn func(ctx context.Context, b *backend) (interface{}, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := e.open(ctx)
	if err != nil {
		return err
	}
	if b.Close != nil {
		defer b.Close()
	}

	out, err := fn(ctx, b)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "billingctl:" + u.Username
	}
	return "billingctl"
}

// parseAsOf accepts an empty value (now) or an RFC3339 timestamp.
func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of must be RFC3339: %w", err)
	}
	return t.UTC(), nil
}

func openDatabase(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Init(&cfg.Sentry); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.WithComponent("billingctl")

	dbPool, err := pool.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx, dbPool); err != nil {
		pool.Close(dbPool)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	core := app.NewCore(dbPool, logger)
	closers := []func(){func() { pool.Close(dbPool) }}

	// Mutations drop cached stats when Redis is reachable.
	var invalidator command.StatsInvalidator
	if redisClient, err := cache.NewRedisClient(ctx, cfg.Redis); err != nil {
		logger.Warn("Redis unavailable, cached stats will expire on their own", zap.Error(err))
	} else {
		invalidator = cache.NewStatsCache(redisClient, cfg.Billing.StatsCacheTTL, logger)
		closers = append(closers, func() { redisClient.Close() })
	}

	return &backend{
		Catalog:   core.Catalog,
		Ledger:    core.Ledger,
		Resolver:  core.Resolver,
		Customers: core.Customers,
		Recorder:  command.NewMutationRecorder(core.Audit, invalidator, logger),
		BatchSize: cfg.Billing.DriftSweepBatchSize,
		Close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			logging.Sync()
		},
	}, nil
}
