package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// MockSubscriptionRepository is a mock implementation of SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

// NewMockSubscriptionRepository creates a new mock subscription repository
func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{}
}

func (m *MockSubscriptionRepository) UpsertByExternalID(ctx context.Context, sub *entity.Subscription) (*entity.Subscription, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) UpdateStatusByExternalID(ctx context.Context, externalID string, status valueobject.SubscriptionStatus, occurredAt *time.Time) (*entity.Subscription, error) {
	args := m.Called(ctx, externalID, status, occurredAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByExternalID(ctx context.Context, externalID string) (*entity.Subscription, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListEntitledByUserID(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*entity.Subscription, error) {
	args := m.Called(ctx, userID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) CountEntitledUsers(ctx context.Context, asOf time.Time) (int64, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubscriptionRepository) CountEntitledSubscriptions(ctx context.Context, asOf time.Time) (int64, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubscriptionRepository) ListUsersWithMultipleEntitled(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockSubscriptionRepository) UpdatePeriodEnd(ctx context.Context, id uuid.UUID, expectedStart, periodEnd time.Time) (bool, error) {
	args := m.Called(ctx, id, expectedStart, periodEnd)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubscriptionRepository) ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
