package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// MockCustomerRepository is a mock implementation of CustomerRepository
type MockCustomerRepository struct {
	mock.Mock
}

// NewMockCustomerRepository creates a new mock customer repository
func NewMockCustomerRepository() *MockCustomerRepository {
	return &MockCustomerRepository{}
}

func (m *MockCustomerRepository) ResolveUserID(ctx context.Context, provider entity.Provider, customerRef string) (uuid.UUID, error) {
	args := m.Called(ctx, provider, customerRef)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockCustomerRepository) Link(ctx context.Context, link *entity.CustomerLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockCustomerRepository) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}
