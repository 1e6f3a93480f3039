package valueobject_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

func TestNewMoney(t *testing.T) {
	m, err := valueobject.NewMoney(2990, "brl")
	require.NoError(t, err)
	assert.Equal(t, "BRL", m.Currency)
	assert.Equal(t, "29.90 BRL", m.String())

	_, err = valueobject.NewMoney(-1, "USD")
	assert.ErrorIs(t, err, valueobject.ErrInvalidAmount)

	_, err = valueobject.NewMoney(100, "US")
	assert.ErrorIs(t, err, valueobject.ErrInvalidCurrency)

	_, err = valueobject.NewMoney(100, "U$D")
	assert.ErrorIs(t, err, valueobject.ErrInvalidCurrency)
}

func TestNewEmail(t *testing.T) {
	e, err := valueobject.NewEmail("  Buyer@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", e.String())

	_, err = valueobject.NewEmail("not-an-email")
	assert.ErrorIs(t, err, valueobject.ErrInvalidEmail)
}
