package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// PlanUpsertOptions names stored attributes an upsert leaves alone when the
// plan already exists.
type PlanUpsertOptions struct {
	KeepActive bool
	KeepTrial  bool
}

// PlanRepository defines the interface for the plan catalog store
type PlanRepository interface {
	// Upsert inserts the plan or overwrites the stored attributes of the plan
	// with the same (provider, external ID). The stored row is returned.
	Upsert(ctx context.Context, plan *entity.Plan, opts PlanUpsertOptions) (*entity.Plan, error)

	// GetByRef returns ErrPlanNotFound when no plan has exactly this reference.
	GetByRef(ctx context.Context, ref entity.PlanRef) (*entity.Plan, error)

	GetByID(ctx context.Context, id uuid.UUID) (*entity.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*entity.Plan, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
