package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

var billingTables = []string{
	"admin_audit_log",
	"webhook_events",
	"subscriptions",
	"plans",
	"billing_customers",
	"users",
}

// TruncateAll empties every billing table
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(billingTables, ", ")+" CASCADE")
	return err
}

// SeedUser inserts an owner row and returns its ID
func SeedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx, `INSERT INTO users (email) VALUES ($1) RETURNING id`, email).Scan(&id)
	require.NoError(t, err)
	return id
}

// SeedCustomer links a provider customer reference to a user
func SeedCustomer(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID, provider entity.Provider, ref string) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO billing_customers (provider, customer_ref, user_id) VALUES ($1, $2, $3)`,
		provider, ref, userID)
	require.NoError(t, err)
}

// AssertDBCount asserts the expected count of rows in a table
func AssertDBCount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table string, expected int) {
	t.Helper()
	var count int
	err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	require.NoError(t, err, "count rows in %s", table)
	require.Equal(t, expected, count, "rows in %s", table)
}
