// Package billing verifies provider webhook deliveries and normalizes them
// into ledger events.
package billing

import (
	"time"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

// Action tells the webhook handler which reconciler operation to run.
type Action int

const (
	// ActionIgnore acknowledges an event type the ledger does not track.
	ActionIgnore Action = iota
	// ActionApply creates or updates a subscription.
	ActionApply
	// ActionCancel changes only the status of an existing subscription.
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionApply:
		return "apply"
	case ActionCancel:
		return "cancel"
	default:
		return "ignore"
	}
}

// Delivery is a verified webhook delivery.
type Delivery struct {
	Provider     entity.Provider
	EventID      string
	EventType    string
	Payload      []byte
	Action       Action
	Subscription *entity.SubscriptionEvent
	Cancellation *entity.CancellationEvent
}

// JournalEntry builds the webhook_events row for the delivery.
func (d *Delivery) JournalEntry(receivedAt time.Time) *entity.WebhookEvent {
	return &entity.WebhookEvent{
		Provider:   d.Provider,
		EventID:    d.EventID,
		EventType:  d.EventType,
		Payload:    d.Payload,
		ReceivedAt: receivedAt.UTC(),
	}
}
