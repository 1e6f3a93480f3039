package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
)

func TestReconciliationError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("apply event: %w", domainErrors.NewReconciliationError("sub_123", "upsert", cause))

	assert.ErrorIs(t, err, domainErrors.ErrReconciliationFailed)
	assert.ErrorIs(t, err, cause)
	assert.False(t, domainErrors.IsBenignSkip(err))
	assert.Contains(t, err.Error(), "sub_123")

	var re *domainErrors.ReconciliationError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, "upsert", re.Op)
}

func TestIsBenignSkip(t *testing.T) {
	for _, err := range []error{
		domainErrors.ErrUnknownCustomer,
		fmt.Errorf("%w: %w", domainErrors.ErrUnknownPlan, domainErrors.ErrPlanNotFound),
		domainErrors.ErrUnknownSubscription,
		domainErrors.ErrStaleEvent,
		fmt.Errorf("missing period start: %w", domainErrors.ErrInvalidEvent),
	} {
		assert.True(t, domainErrors.IsBenignSkip(err), err.Error())
	}
	assert.False(t, domainErrors.IsBenignSkip(errors.New("boom")))
	assert.False(t, domainErrors.IsBenignSkip(nil))
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("upsert plan: %w", domainErrors.NewValidationError("currency", "must be 3 letters"))
	assert.True(t, domainErrors.IsValidation(err))
	assert.ErrorIs(t, err, domainErrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "currency")
}
