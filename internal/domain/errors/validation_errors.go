package errors

import (
	"errors"
	"fmt"
)

var (
	// General validation errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrRequiredField = errors.New("required field is missing")
	ErrOutOfRange    = errors.New("value out of range")
)

// ValidationError wraps a field validation error
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for field '%s': %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// WrapValidationError attaches a field name to a value-object error.
func WrapValidationError(field string, err error) *ValidationError {
	return &ValidationError{
		Field: field,
		Err:   err,
	}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
