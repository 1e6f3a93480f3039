package entity

import (
	"time"

	"github.com/google/uuid"
)

// CustomerLink maps a provider customer identifier to a user.
type CustomerLink struct {
	UserID      uuid.UUID
	Provider    Provider
	CustomerRef string
	CreatedAt   time.Time
}

// NewCustomerLink creates a new customer link
func NewCustomerLink(userID uuid.UUID, provider Provider, customerRef string) *CustomerLink {
	return &CustomerLink{
		UserID:      userID,
		Provider:    provider,
		CustomerRef: customerRef,
		CreatedAt:   time.Now().UTC(),
	}
}
