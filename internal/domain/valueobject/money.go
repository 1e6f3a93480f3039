package valueobject

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount   = errors.New("amount must be non-negative")
	ErrInvalidCurrency = errors.New("invalid currency code")
)

// Money is a price in integer minor units (cents, centavos).
type Money struct {
	Amount   int64
	Currency string // ISO 4217, upper-case
}

// NewMoney creates a new Money value object
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	code, err := NormalizeCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: amount, Currency: code}, nil
}

// NormalizeCurrency validates a three-letter code and upper-cases it.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if !isValidCurrency(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return code, nil
}

func isValidCurrency(currency string) bool {
	if len(currency) != 3 {
		return false
	}
	for _, c := range currency {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// String renders the amount with two decimals, e.g. "29.90 BRL".
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Amount/100, m.Amount%100, m.Currency)
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.Amount == 0
}
