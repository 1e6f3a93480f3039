package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
)

// MockPlanRepository is a mock implementation of PlanRepository
type MockPlanRepository struct {
	mock.Mock
}

// NewMockPlanRepository creates a new mock plan repository
func NewMockPlanRepository() *MockPlanRepository {
	return &MockPlanRepository{}
}

func (m *MockPlanRepository) Upsert(ctx context.Context, plan *entity.Plan, opts repository.PlanUpsertOptions) (*entity.Plan, error) {
	args := m.Called(ctx, plan, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Plan), args.Error(1)
}

func (m *MockPlanRepository) GetByRef(ctx context.Context, ref entity.PlanRef) (*entity.Plan, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Plan), args.Error(1)
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Plan), args.Error(1)
}

func (m *MockPlanRepository) List(ctx context.Context, activeOnly bool) ([]*entity.Plan, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Plan), args.Error(1)
}

func (m *MockPlanRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}
