package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

// NewMockWebhookEventRepository creates a new mock webhook event repository
func NewMockWebhookEventRepository() *MockWebhookEventRepository {
	return &MockWebhookEventRepository{}
}

func (m *MockWebhookEventRepository) Record(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, provider entity.Provider, eventID string, processingErr string) error {
	args := m.Called(ctx, provider, eventID, processingErr)
	return args.Error(0)
}

// MockAuditLogRepository is a mock implementation of AuditLogRepository
type MockAuditLogRepository struct {
	mock.Mock
}

// NewMockAuditLogRepository creates a new mock audit log repository
func NewMockAuditLogRepository() *MockAuditLogRepository {
	return &MockAuditLogRepository{}
}

func (m *MockAuditLogRepository) Insert(ctx context.Context, entry *entity.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}
