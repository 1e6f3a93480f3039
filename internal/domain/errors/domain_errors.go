package errors

import (
	"errors"
	"fmt"
)

var (
	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Plan catalog errors
	ErrPlanNotFound = errors.New("plan not found")
	ErrPlanInactive = errors.New("plan is not active")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrReferentialIntegrity = errors.New("referenced user or plan does not exist")

	// Reconciliation skips. These are terminal for a single event but benign:
	// redelivering the event can never make them succeed.
	ErrUnknownCustomer     = errors.New("unknown customer")
	ErrUnknownPlan         = errors.New("unknown plan")
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrStaleEvent          = errors.New("event is older than stored state")
	ErrInvalidEvent        = errors.New("invalid billing event")

	// ErrReconciliationFailed marks a backing store failure while applying an
	// event. The provider must be told to retry.
	ErrReconciliationFailed = errors.New("reconciliation failed")

	// Webhook errors
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// IsBenignSkip reports whether err is one of the skip signals that should be
// acknowledged to the provider instead of retried.
func IsBenignSkip(err error) bool {
	return errors.Is(err, ErrUnknownCustomer) ||
		errors.Is(err, ErrUnknownPlan) ||
		errors.Is(err, ErrUnknownSubscription) ||
		errors.Is(err, ErrStaleEvent) ||
		errors.Is(err, ErrInvalidEvent)
}

// ReconciliationError carries the subscription being reconciled and the
// underlying storage error.
type ReconciliationError struct {
	ExternalSubscriptionID string
	Op                     string
	Err                    error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for subscription '%s' during %s: %v", e.ExternalSubscriptionID, e.Op, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrReconciliationFailed) match.
func (e *ReconciliationError) Is(target error) bool {
	return target == ErrReconciliationFailed
}

// NewReconciliationError wraps a storage failure for the given subscription.
func NewReconciliationError(externalSubscriptionID, op string, err error) *ReconciliationError {
	return &ReconciliationError{
		ExternalSubscriptionID: externalSubscriptionID,
		Op:                     op,
		Err:                    err,
	}
}

// NotFoundError wraps an error with not found context
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found: %v", e.Entity, e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}
