package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// CustomerRepository resolves provider customer identifiers to users
type CustomerRepository interface {
	// ResolveUserID returns ErrUserNotFound when the customer is unknown.
	ResolveUserID(ctx context.Context, provider entity.Provider, customerRef string) (uuid.UUID, error)
	Link(ctx context.Context, link *entity.CustomerLink) error
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
}
