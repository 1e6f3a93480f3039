package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
)

// ActionCustomerLink is the audit action for a manual customer mapping.
const ActionCustomerLink = "customer.link"

type customerMapping struct {
	Provider    string `json:"provider"`
	CustomerRef string `json:"customer_ref"`
	UserID      string `json:"user_id"`
}

func newCustomersCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Map provider customers to users",
	}

	var provider, ref, userID string
	link := &cobra.Command{
		Use:   "link",
		Short: "Link a provider customer reference to a user",
		Example: `  billingctl customers link --provider stripe --ref cus_123 \
    --user 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("%w: invalid user_id", domainErrors.ErrInvalidInput)
			}
			if ref == "" {
				return fmt.Errorf("%w: --ref is required", domainErrors.ErrInvalidInput)
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				if err := b.Customers.Link(ctx, entity.NewCustomerLink(uid, p, ref)); err != nil {
					return nil, err
				}
				b.Recorder.Record(ctx, *env.actor, ActionCustomerLink, "user", uid.String(), map[string]interface{}{
					"provider":     p,
					"customer_ref": ref,
				})
				return customerMapping{Provider: string(p), CustomerRef: ref, UserID: uid.String()}, nil
			})
		},
	}
	link.Flags().StringVar(&provider, "provider", "", "Billing provider (stripe or hotmart)")
	link.Flags().StringVar(&ref, "ref", "", "Provider customer reference")
	link.Flags().StringVar(&userID, "user", "", "User ID")

	resolve := &cobra.Command{
		Use:   "resolve",
		Short: "Show which user a provider customer reference belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseProvider(provider)
			if err != nil {
				return err
			}
			return env.run(cmd, func(ctx context.Context, b *backend) (interface{}, error) {
				uid, err := b.Customers.ResolveUserID(ctx, p, ref)
				if err != nil {
					return nil, err
				}
				return customerMapping{Provider: string(p), CustomerRef: ref, UserID: uid.String()}, nil
			})
		},
	}
	resolve.Flags().StringVar(&provider, "provider", "", "Billing provider (stripe or hotmart)")
	resolve.Flags().StringVar(&ref, "ref", "", "Provider customer reference")

	cmd.AddCommand(link, resolve)
	return cmd
}

func parseProvider(raw string) (entity.Provider, error) {
	switch p := entity.Provider(raw); p {
	case entity.ProviderStripe, entity.ProviderHotmart:
		return p, nil
	default:
		return "", fmt.Errorf("%w: provider must be stripe or hotmart", domainErrors.ErrInvalidInput)
	}
}
