package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediz-app/mediz-billing/internal/application/command"
	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
	"github.com/mediz-app/mediz-billing/tests/testutil"
)

func memoryOpener(svc *testutil.Services) opener {
	return func(ctx context.Context) (*backend, error) {
		return &backend{
			Catalog:   svc.Catalog,
			Ledger:    svc.Ledger,
			Resolver:  svc.Resolver,
			Customers: svc.Store.Customers(),
			Recorder:  command.NewMutationRecorder(svc.Audit, nil, nil),
			BatchSize: 2,
		}, nil
	}
}

func execute(t *testing.T, svc *testutil.Services, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(memoryOpener(svc))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--actor", "ops@mediz"))
	err := root.Execute()
	return out.String(), err
}

func TestPlansUpsertAndList(t *testing.T) {
	svc := testutil.NewMemoryServices()

	out, err := execute(t, svc, "plans", "upsert",
		"--provider", "stripe", "--external-id", "price_monthly",
		"--currency", "brl", "--interval", "month", "--amount", "2990")
	require.NoError(t, err)

	var created struct {
		Created bool `json:"created"`
		Plan    struct {
			ID       string `json:"id"`
			Currency string `json:"currency"`
			Interval string `json:"interval"`
		} `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, created.Created)
	assert.Equal(t, "BRL", created.Plan.Currency)
	assert.Equal(t, "MONTH", created.Plan.Interval)

	entries := svc.Store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "ops@mediz", entries[0].ActorID)
	assert.Equal(t, command.ActionPlanUpsert, entries[0].Action)

	_, err = execute(t, svc, "plans", "deactivate", created.Plan.ID)
	require.NoError(t, err)

	out, err = execute(t, svc, "plans", "list", "--active")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestPlansCurrencyFixKeepsRetiredPlanRetired(t *testing.T) {
	svc := testutil.NewMemoryServices()
	ctx := context.Background()

	_, err := execute(t, svc, "plans", "upsert",
		"--provider", "stripe", "--external-id", "price_trial",
		"--currency", "USD", "--interval", "MONTH", "--amount", "990", "--trial-days", "7")
	require.NoError(t, err)

	plan, err := svc.Catalog.FindPlanByExternalID(ctx, entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_trial"})
	require.NoError(t, err)
	_, err = execute(t, svc, "plans", "deactivate", plan.ID.String())
	require.NoError(t, err)

	_, err = execute(t, svc, "plans", "upsert",
		"--provider", "stripe", "--external-id", "price_trial",
		"--currency", "BRL", "--interval", "MONTH", "--amount", "990")
	require.NoError(t, err)

	fixed, err := svc.Catalog.FindPlanByExternalID(ctx, entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_trial"})
	require.NoError(t, err)
	assert.Equal(t, "BRL", fixed.Currency)
	assert.False(t, fixed.Active)
	require.NotNil(t, fixed.TrialPeriodDays)
	assert.Equal(t, 7, *fixed.TrialPeriodDays)

	_, err = execute(t, svc, "plans", "upsert",
		"--provider", "stripe", "--external-id", "price_trial",
		"--currency", "BRL", "--interval", "MONTH", "--amount", "990", "--active")
	require.NoError(t, err)
	reactivated, err := svc.Catalog.FindPlanByExternalID(ctx, entity.PlanRef{Provider: entity.ProviderStripe, ExternalID: "price_trial"})
	require.NoError(t, err)
	assert.True(t, reactivated.Active)
}

func TestPlansUpsertRejectsUnknownInterval(t *testing.T) {
	svc := testutil.NewMemoryServices()

	_, err := execute(t, svc, "plans", "upsert",
		"--provider", "stripe", "--external-id", "price_x",
		"--currency", "BRL", "--interval", "fortnight")
	require.Error(t, err)

	plans, err := svc.Catalog.ListPlans(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestPeriodsRecalcRequiresExactlyOneTarget(t *testing.T) {
	svc := testutil.NewMemoryServices()

	_, err := execute(t, svc, "periods", "recalc")
	assert.Error(t, err)

	_, err = execute(t, svc, "periods", "recalc", "--user", uuid.NewString(), "--subscription", uuid.NewString())
	assert.Error(t, err)
}

func TestPeriodsRecalcAndSweep(t *testing.T) {
	svc := testutil.NewMemoryServices()
	plan := svc.MustUpsertPlan(t, entity.ProviderStripe, "price_monthly", "BRL", valueobject.IntervalMonth, 1)
	userID := svc.MustAddCustomer(t, entity.ProviderStripe, "cus_1")

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	drifted := testutil.NewSubscriptionRow(userID, plan, valueobject.StatusActive, start, start.AddDate(0, 0, 24))
	svc.Store.PutSubscription(drifted)

	out, err := execute(t, svc, "periods", "recalc", "--subscription", drifted.ID.String())
	require.NoError(t, err)

	var correction struct {
		Corrected   bool      `json:"corrected"`
		ExpectedEnd time.Time `json:"expected_end"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &correction))
	assert.True(t, correction.Corrected)
	assert.True(t, correction.ExpectedEnd.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))

	for i := 0; i < 3; i++ {
		row := testutil.NewSubscriptionRow(userID, plan, valueobject.StatusCanceled, start, start.AddDate(0, 0, 3))
		svc.Store.PutSubscription(row)
	}

	out, err = execute(t, svc, "periods", "sweep")
	require.NoError(t, err)

	var sweep struct {
		Scanned   int `json:"scanned"`
		Corrected int `json:"corrected"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sweep))
	assert.Equal(t, 4, sweep.Scanned)
	assert.Equal(t, 3, sweep.Corrected)
}

func TestPremiumCommands(t *testing.T) {
	svc := testutil.NewMemoryServices()
	plan := svc.MustUpsertPlan(t, entity.ProviderStripe, "price_monthly", "BRL", valueobject.IntervalMonth, 1)
	userID := svc.MustAddCustomer(t, entity.ProviderStripe, "cus_1")

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.Store.PutSubscription(testutil.NewSubscriptionRow(userID, plan, valueobject.StatusActive, start, end))
	svc.Store.PutSubscription(testutil.NewSubscriptionRow(userID, plan, valueobject.StatusTrialing, start, end))

	out, err := execute(t, svc, "premium", "check", "--user", userID.String(), "--as-of", "2024-05-15T00:00:00Z")
	require.NoError(t, err)
	var check struct {
		Premium bool `json:"premium"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.True(t, check.Premium)

	out, err = execute(t, svc, "premium", "count", "--as-of", "2024-05-15T00:00:00Z")
	require.NoError(t, err)
	assert.JSONEq(t, `{"premium_users": 1, "as_of": "2024-05-15T00:00:00Z"}`, out)

	out, err = execute(t, svc, "premium", "consistency", "--as-of", "2024-05-15T00:00:00Z")
	require.NoError(t, err)
	var report struct {
		PremiumUsers            int64    `json:"premium_users"`
		EntitledSubscriptions   int64    `json:"entitled_subscriptions"`
		UsersWithMultipleActive []string `json:"users_with_multiple_active"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, int64(1), report.PremiumUsers)
	assert.Equal(t, int64(2), report.EntitledSubscriptions)
	assert.Equal(t, []string{userID.String()}, report.UsersWithMultipleActive)

	_, err = execute(t, svc, "premium", "count", "--as-of", "yesterday")
	assert.Error(t, err)
}

func TestCustomersLinkAndResolve(t *testing.T) {
	svc := testutil.NewMemoryServices()
	userID := svc.Store.AddUser("a@example.com")

	_, err := execute(t, svc, "customers", "link", "--provider", "stripe", "--ref", "cus_9", "--user", userID.String())
	require.NoError(t, err)

	out, err := execute(t, svc, "customers", "resolve", "--provider", "stripe", "--ref", "cus_9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"provider":"stripe","customer_ref":"cus_9","user_id":"`+userID.String()+`"}`, out)

	entries := svc.Store.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, ActionCustomerLink, entries[0].Action)

	_, err = execute(t, svc, "customers", "link", "--provider", "stripe", "--ref", "cus_10", "--user", uuid.NewString())
	assert.Error(t, err)

	_, err = execute(t, svc, "customers", "link", "--provider", "paypal", "--ref", "x", "--user", userID.String())
	assert.Error(t, err)
}
