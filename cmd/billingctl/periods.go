package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mediz-app/mediz-billing/internal/application/command"
	"github.com/mediz-app/mediz-billing/internal/infrastructure/metrics"
)

func newPeriodsCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "Repair subscription period ends",
	}

	var userID, subscriptionID string
	recalc := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate period ends for one user or one subscription",
		Example: `  billingctl periods recalc --user 1b4e28ba-2fa1-11d2-883f-0016d3cca427
  billingctl periods recalc --subscription 6fa459ea-ee8a-3ca4-894e-db77e160355e`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == (subscriptionID == "") {
				return errors.New("exactly one of --user or --subscription is required")
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				c := command.NewRecalculatePeriodsCommand(b.Ledger, nil, b.BatchSize, b.Recorder)
				if userID != "" {
					return c.ForUser(ctx, *env.actor, userID)
				}
				return c.ForSubscription(ctx, *env.actor, subscriptionID)
			})
		},
	}
	recalc.Flags().StringVar(&userID, "user", "", "User ID")
	recalc.Flags().StringVar(&subscriptionID, "subscription", "", "Subscription ID")

	var batch int
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Scan the whole ledger and rewrite drifted period ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				size := batch
				if size <= 0 {
					size = b.BatchSize
				}
				result, err := b.Ledger.SweepPeriodDrift(ctx, size)
				if result != nil && result.Corrected > 0 {
					metrics.PeriodCorrections.WithLabelValues(metrics.TriggerSweep).Add(float64(result.Corrected))
					b.Recorder.Record(ctx, *env.actor, command.ActionPeriodsRecalculate, "ledger", "all", map[string]interface{}{
						"scanned":   result.Scanned,
						"corrected": result.Corrected,
						"failed":    result.Failed,
					})
				}
				return result, err
			})
		},
	}
	sweep.Flags().IntVar(&batch, "batch", 0, "Rows per page (defaults to BILLING_DRIFT_SWEEP_BATCH_SIZE)")

	cmd.AddCommand(recalc, sweep)
	return cmd
}
