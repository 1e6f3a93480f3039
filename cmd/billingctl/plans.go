package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mediz-app/mediz-billing/internal/application/command"
	"github.com/mediz-app/mediz-billing/internal/application/dto"
	"github.com/mediz-app/mediz-billing/internal/application/query"
)

func newPlansCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Inspect and maintain the plan catalog",
	}

	var (
		req       dto.UpsertPlanRequest
		active    bool
		trialDays int
	)
	upsert := &cobra.Command{
		Use:   "upsert",
		Short: "Create a plan or overwrite its stored attributes",
		Example: `  billingctl plans upsert --provider stripe --external-id price_123 \
    --currency BRL --interval MONTH --interval-count 1 --amount 2990`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Unset flags leave the stored value alone.
			if cmd.Flags().Changed("active") {
				req.Active = &active
			}
			if cmd.Flags().Changed("trial-days") {
				req.TrialPeriodDays = &trialDays
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				return command.NewUpsertPlanCommand(b.Catalog, b.Recorder).Execute(ctx, *env.actor, req)
			})
		},
	}
	upsert.Flags().StringVar(&req.Provider, "provider", "", "Billing provider (stripe or hotmart)")
	upsert.Flags().StringVar(&req.ExternalID, "external-id", "", "Provider plan or price identifier")
	upsert.Flags().StringVar(&req.Name, "name", "", "Display name")
	upsert.Flags().StringVar(&req.Currency, "currency", "", "ISO 4217 currency code")
	upsert.Flags().StringVar(&req.Interval, "interval", "", "DAY, WEEK, MONTH or YEAR")
	upsert.Flags().IntVar(&req.IntervalCount, "interval-count", 1, "Number of intervals per period")
	upsert.Flags().Int64Var(&req.Amount, "amount", 0, "Price in minor units")
	upsert.Flags().BoolVar(&active, "active", true, "Whether new subscriptions may reference the plan")
	upsert.Flags().IntVar(&trialDays, "trial-days", 0, "Trial length in days (0 removes the trial)")
	_ = upsert.MarkFlagRequired("provider")
	_ = upsert.MarkFlagRequired("external-id")
	_ = upsert.MarkFlagRequired("currency")
	_ = upsert.MarkFlagRequired("interval")

	var activeOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				return query.NewPlanQuery(b.Catalog).List(ctx, activeOnly)
			})
		},
	}
	list.Flags().BoolVar(&activeOnly, "active", false, "Only active plans")

	deactivate := &cobra.Command{
		Use:   "deactivate <plan-id>",
		Short: "Stop new subscriptions against a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				if err := command.NewDeactivatePlanCommand(b.Catalog, b.Recorder).Execute(ctx, *env.actor, args[0]); err != nil {
					return nil, err
				}
				return map[string]string{"deactivated": args[0]}, nil
			})
		},
	}

	cmd.AddCommand(upsert, list, deactivate)
	return cmd
}
