package valueobject

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidEmail = errors.New("invalid email format")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Email is a buyer address used as the customer reference for providers that
// identify customers by email (Hotmart). It is stored lower-cased.
type Email struct {
	value string
}

// NewEmail creates a new Email value object
func NewEmail(email string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(normalized) {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return Email{value: normalized}, nil
}

// String returns the email string
func (e Email) String() string {
	return e.value
}
