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
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
)

const planColumns = `
	id, provider, external_id, name, currency, billing_interval, interval_count,
	amount, active, trial_period_days, created_at, updated_at`

// PlanRepositoryImpl implements PlanRepository using pgxpool
type PlanRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(pool *pgxpool.Pool) *PlanRepositoryImpl {
	return &PlanRepositoryImpl{
		pool: pool,
	}
}

func scanPlan(row pgx.Row) (*entity.Plan, error) {
	p := &entity.Plan{}
	err := row.Scan(
		&p.ID, &p.Provider, &p.ExternalID, &p.Name, &p.Currency, &p.Interval, &p.IntervalCount,
		&p.Amount, &p.Active, &p.TrialPeriodDays, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Upsert inserts the plan or overwrites the attributes of the plan with the
// same provider reference in one statement. Active and trial length of an
// existing row survive when opts says so.
func (r *PlanRepositoryImpl) Upsert(ctx context.Context, plan *entity.Plan, opts repository.PlanUpsertOptions) (*entity.Plan, error) {
	query := `
		INSERT INTO plans (
			id, provider, external_id, name, currency, billing_interval, interval_count,
			amount, active, trial_period_days, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (provider, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			currency = EXCLUDED.currency,
			billing_interval = EXCLUDED.billing_interval,
			interval_count = EXCLUDED.interval_count,
			amount = EXCLUDED.amount,
			active = CASE WHEN $11 THEN plans.active ELSE EXCLUDED.active END,
			trial_period_days = CASE WHEN $12 THEN plans.trial_period_days ELSE EXCLUDED.trial_period_days END,
			updated_at = now()
		RETURNING` + planColumns

	stored, err := scanPlan(r.pool.QueryRow(ctx, query,
		plan.ID, plan.Provider, plan.ExternalID, plan.Name, plan.Currency, plan.Interval,
		plan.IntervalCount, plan.Amount, plan.Active, plan.TrialPeriodDays,
		opts.KeepActive, opts.KeepTrial,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert plan: %w", err)
	}
	return stored, nil
}

// GetByRef retrieves a plan by exact provider reference
func (r *PlanRepositoryImpl) GetByRef(ctx context.Context, ref entity.PlanRef) (*entity.Plan, error) {
	query := `SELECT` + planColumns + `
		FROM plans
		WHERE provider = $1 AND external_id = $2
	`
	p, err := scanPlan(r.pool.QueryRow(ctx, query, ref.Provider, ref.ExternalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", ref, domainErrors.ErrPlanNotFound)
	}
	return p, err
}

// GetByID retrieves a plan by ID
func (r *PlanRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entity.Plan, error) {
	query := `SELECT` + planColumns + `
		FROM plans
		WHERE id = $1
	`
	p, err := scanPlan(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domainErrors.NotFoundError{Entity: "plan", ID: id.String(), Err: domainErrors.ErrPlanNotFound}
	}
	return p, err
}

// List returns plans ordered by provider and external ID
func (r *PlanRepositoryImpl) List(ctx context.Context, activeOnly bool) ([]*entity.Plan, error) {
	query := `SELECT` + planColumns + `
		FROM plans
		WHERE active OR NOT $1
		ORDER BY provider, external_id
	`
	rows, err := r.pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*entity.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// SetActive toggles whether new subscriptions may reference the plan
func (r *PlanRepositoryImpl) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE plans SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domainErrors.NotFoundError{Entity: "plan", ID: id.String(), Err: domainErrors.ErrPlanNotFound}
	}
	return nil
}
