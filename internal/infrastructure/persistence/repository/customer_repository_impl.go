package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
)

// CustomerRepositoryImpl implements CustomerRepository using pgxpool
type CustomerRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepositoryImpl {
	return &CustomerRepositoryImpl{
		pool: pool,
	}
}

// ResolveUserID looks the customer up in billing_customers. Hotmart buyers
// are identified by email, so for Hotmart the users table is the fallback.
func (r *CustomerRepositoryImpl) ResolveUserID(ctx context.Context, provider entity.Provider, customerRef string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM billing_customers WHERE provider = $1 AND customer_ref = $2`,
		provider, customerRef,
	).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	if provider == entity.ProviderHotmart && customerRef != "" {
		err = r.pool.QueryRow(ctx,
			`SELECT id FROM users WHERE lower(email) = lower($1) ORDER BY created_at LIMIT 1`,
			customerRef,
		).Scan(&userID)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("failed to resolve customer by email: %w", err)
		}
	}

	return uuid.Nil, domainErrors.ErrUserNotFound
}

// Link maps a provider customer to a user, replacing any previous mapping
func (r *CustomerRepositoryImpl) Link(ctx context.Context, link *entity.CustomerLink) error {
	query := `
		INSERT INTO billing_customers (provider, customer_ref, user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, customer_ref) DO UPDATE SET user_id = EXCLUDED.user_id
	`
	_, err := r.pool.Exec(ctx, query, link.Provider, link.CustomerRef, link.UserID, link.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: user %s", domainErrors.ErrReferentialIntegrity, link.UserID)
	}
	return err
}

// UserExists checks the owner table
func (r *CustomerRepositoryImpl) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}
