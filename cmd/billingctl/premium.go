package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mediz-app/mediz-billing/internal/application/query"
)

type premiumCount struct {
	PremiumUsers int64  `json:"premium_users"`
	AsOf         string `json:"as_of"`
}

func newPremiumCmd(env *cliEnv) *cobra.Command {
	var asOfRaw string

	cmd := &cobra.Command{
		Use:   "premium",
		Short: "Entitlement checks and premium counts",
	}
	cmd.PersistentFlags().StringVar(&asOfRaw, "as-of", "", "RFC3339 instant (defaults to now)")

	var userID string
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether a user is premium",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			asOf, err := parseAsOf(asOfRaw)
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				return query.NewEntitlementQuery(b.Ledger).Execute(ctx, userID, asOf)
			})
		},
	}
	check.Flags().StringVar(&userID, "user", "", "User ID")

	count := &cobra.Command{
		Use:   "count",
		Short: "Count distinct premium users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfRaw)
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				n, err := b.Resolver.CountPremiumUsers(ctx, asOf)
				if err != nil {
					return nil, err
				}
				return premiumCount{PremiumUsers: n, AsOf: asOf.Format(timeLayout)}, nil
			})
		},
	}

	consistency := &cobra.Command{
		Use:   "consistency",
		Short: "Compare premium users with entitled rows and list users holding several",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseAsOf(asOfRaw)
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				return b.Resolver.ConsistencyReport(ctx, asOf)
			})
		},
	}

	cmd.AddCommand(check, count, consistency)
	return cmd
}
