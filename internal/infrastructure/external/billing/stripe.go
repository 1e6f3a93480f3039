package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// StripeBodyLimit caps the webhook payload size.
const StripeBodyLimit = 1024 * 1024 // 1 MiB

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

const (
	stripeSubscriptionCreated = "customer.subscription.created"
	stripeSubscriptionUpdated = "customer.subscription.updated"
	stripeSubscriptionDeleted = "customer.subscription.deleted"
)

// StripeAdapter verifies Stripe deliveries and decodes subscription events.
type StripeAdapter struct {
	secret string
}

// NewStripeAdapter creates an adapter for the given endpoint signing secret.
func NewStripeAdapter(secret string) *StripeAdapter {
	return &StripeAdapter{secret: secret}
}

// Configured reports whether a signing secret is set.
func (a *StripeAdapter) Configured() bool {
	return strings.TrimSpace(a.secret) != ""
}

// stripeSubscription is the subset of the Stripe subscription object the
// ledger needs. Newer API versions moved the period onto the items.
type stripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	StartDate          int64  `json:"start_date"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Parse verifies the signature and maps the event onto a Delivery.
func (a *StripeAdapter) Parse(payload []byte, sigHeader string) (*Delivery, error) {
	if strings.TrimSpace(sigHeader) == "" {
		return nil, fmt.Errorf("%w: missing %s header", domainErrors.ErrInvalidSignature, StripeSignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidSignature, err)
	}

	d := &Delivery{
		Provider:  entity.ProviderStripe,
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   payload,
	}
	occurredAt := time.Unix(event.Created, 0).UTC()

	switch d.EventType {
	case stripeSubscriptionCreated, stripeSubscriptionUpdated:
		sub, err := decodeStripeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		d.Action = ActionApply
		d.Subscription = sub.toEvent(event.ID, occurredAt, d.EventType == stripeSubscriptionCreated)

	case stripeSubscriptionDeleted:
		sub, err := decodeStripeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		d.Action = ActionCancel
		d.Cancellation = &entity.CancellationEvent{
			Provider:               entity.ProviderStripe,
			EventID:                event.ID,
			ExternalSubscriptionID: sub.ID,
			RawStatus:              string(valueobject.StatusCanceled),
			OccurredAt:             occurredAt,
		}

	default:
		d.Action = ActionIgnore
	}

	return d, nil
}

func decodeStripeSubscription(raw json.RawMessage) (*stripeSubscription, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: decode subscription: %v", domainErrors.ErrInvalidEvent, err)
	}
	return &sub, nil
}

func (s *stripeSubscription) toEvent(eventID string, occurredAt time.Time, created bool) *entity.SubscriptionEvent {
	evt := &entity.SubscriptionEvent{
		Provider:                entity.ProviderStripe,
		EventID:                 eventID,
		ExternalSubscriptionID:  s.ID,
		CustomerRef:             s.Customer,
		RawStatus:               s.Status,
		PeriodStartEpochSeconds: s.CurrentPeriodStart,
		PeriodEndEpochSeconds:   s.CurrentPeriodEnd,
		CancelAtPeriodEnd:       s.CancelAtPeriodEnd,
		OccurredAt:              occurredAt,
	}

	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		evt.ExternalPlanID = item.Price.ID
		if evt.PeriodStartEpochSeconds == 0 {
			evt.PeriodStartEpochSeconds = item.CurrentPeriodStart
			evt.PeriodEndEpochSeconds = item.CurrentPeriodEnd
		}
	}

	// start_date is the first period only on creation. Later events without a
	// period keep start 0 and the reconciler skips them as invalid.
	if evt.PeriodStartEpochSeconds == 0 && created {
		evt.PeriodStartEpochSeconds = s.StartDate
		evt.PeriodEndEpochSeconds = 0
	}

	return evt
}
