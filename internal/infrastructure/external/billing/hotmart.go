package billing

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// HotmartTokenHeader carries the shared hottok.
const HotmartTokenHeader = "X-HOTMART-HOTTOK"

// HotmartBodyLimit caps the webhook payload size.
const HotmartBodyLimit = 1024 * 1024

// Hotmart event names
const (
	HotmartPurchaseApproved         = "PURCHASE_APPROVED"
	HotmartPurchaseComplete         = "PURCHASE_COMPLETE"
	HotmartPurchaseDelayed          = "PURCHASE_DELAYED"
	HotmartPurchaseCanceled         = "PURCHASE_CANCELED"
	HotmartPurchaseRefunded         = "PURCHASE_REFUNDED"
	HotmartPurchaseChargeback       = "PURCHASE_CHARGEBACK"
	HotmartPurchaseExpired          = "PURCHASE_EXPIRED"
	HotmartSubscriptionCancellation = "SUBSCRIPTION_CANCELLATION"
)

// HotmartAdapter authenticates Hotmart deliveries by hottok and decodes them.
type HotmartAdapter struct {
	hottok string
}

// NewHotmartAdapter creates an adapter for the given account hottok.
func NewHotmartAdapter(hottok string) *HotmartAdapter {
	return &HotmartAdapter{hottok: hottok}
}

// Configured reports whether a hottok is set.
func (a *HotmartAdapter) Configured() bool {
	return strings.TrimSpace(a.hottok) != ""
}

type hotmartPayload struct {
	ID           string      `json:"id"`
	Event        string      `json:"event"`
	CreationDate int64       `json:"creation_date"`
	Data         hotmartData `json:"data"`
}

type hotmartData struct {
	Product struct {
		ID int64 `json:"id"`
	} `json:"product"`
	Buyer struct {
		Email string `json:"email"`
	} `json:"buyer"`
	Purchase struct {
		Transaction    string `json:"transaction"`
		ApprovedDate   int64  `json:"approved_date"`
		DateNextCharge int64  `json:"date_next_charge"`
		Offer          struct {
			Code string `json:"code"`
		} `json:"offer"`
	} `json:"purchase"`
	Subscription struct {
		Subscriber struct {
			Code string `json:"code"`
		} `json:"subscriber"`
	} `json:"subscription"`
	// SUBSCRIPTION_CANCELLATION puts the subscriber at the top of data.
	Subscriber struct {
		Code string `json:"code"`
	} `json:"subscriber"`
}

// Parse checks the hottok and maps the event onto a Delivery.
func (a *HotmartAdapter) Parse(payload []byte, token string) (*Delivery, error) {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.hottok)) != 1 {
		return nil, fmt.Errorf("%w: hottok mismatch", domainErrors.ErrInvalidSignature)
	}

	var p hotmartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: decode hotmart payload: %v", domainErrors.ErrInvalidEvent, err)
	}
	if p.ID == "" || p.Event == "" {
		return nil, fmt.Errorf("%w: hotmart payload without id or event", domainErrors.ErrInvalidEvent)
	}

	d := &Delivery{
		Provider:  entity.ProviderHotmart,
		EventID:   p.ID,
		EventType: p.Event,
		Payload:   payload,
	}
	occurredAt := fromMillis(p.CreationDate)

	switch p.Event {
	case HotmartPurchaseApproved, HotmartPurchaseComplete:
		d.Action = ActionApply
		d.Subscription = p.subscriptionEvent(string(valueobject.StatusActive), occurredAt)

	case HotmartPurchaseDelayed:
		d.Action = ActionApply
		d.Subscription = p.subscriptionEvent(string(valueobject.StatusPastDue), occurredAt)

	case HotmartSubscriptionCancellation:
		// The buyer keeps access until the paid period ends.
		d.Action = ActionCancel
		d.Cancellation = p.cancellationEvent(string(valueobject.StatusCancelAtPeriodEnd), occurredAt)

	case HotmartPurchaseCanceled, HotmartPurchaseRefunded, HotmartPurchaseChargeback, HotmartPurchaseExpired:
		d.Action = ActionCancel
		d.Cancellation = p.cancellationEvent(string(valueobject.StatusCanceled), occurredAt)

	default:
		d.Action = ActionIgnore
	}

	return d, nil
}

// subscriberCode identifies the subscription. One-off purchases have no
// subscriber, so the transaction code stands in.
func (p *hotmartPayload) subscriberCode() string {
	switch {
	case p.Data.Subscription.Subscriber.Code != "":
		return p.Data.Subscription.Subscriber.Code
	case p.Data.Subscriber.Code != "":
		return p.Data.Subscriber.Code
	default:
		return p.Data.Purchase.Transaction
	}
}

func (p *hotmartPayload) planID() string {
	if p.Data.Purchase.Offer.Code != "" {
		return p.Data.Purchase.Offer.Code
	}
	if p.Data.Product.ID != 0 {
		return strconv.FormatInt(p.Data.Product.ID, 10)
	}
	return ""
}

// buyerRef is the lower-cased buyer email. Malformed addresses pass through
// trimmed so the reconciler reports them as unknown customers.
func (p *hotmartPayload) buyerRef() string {
	if email, err := valueobject.NewEmail(p.Data.Buyer.Email); err == nil {
		return email.String()
	}
	return strings.TrimSpace(p.Data.Buyer.Email)
}

func (p *hotmartPayload) subscriptionEvent(status string, occurredAt time.Time) *entity.SubscriptionEvent {
	return &entity.SubscriptionEvent{
		Provider:                entity.ProviderHotmart,
		EventID:                 p.ID,
		ExternalSubscriptionID:  p.subscriberCode(),
		ExternalPlanID:          p.planID(),
		CustomerRef:             p.buyerRef(),
		RawStatus:               status,
		PeriodStartEpochSeconds: p.Data.Purchase.ApprovedDate / 1000,
		PeriodEndEpochSeconds:   p.Data.Purchase.DateNextCharge / 1000,
		OccurredAt:              occurredAt,
	}
}

func (p *hotmartPayload) cancellationEvent(status string, occurredAt time.Time) *entity.CancellationEvent {
	return &entity.CancellationEvent{
		Provider:               entity.ProviderHotmart,
		EventID:                p.ID,
		ExternalSubscriptionID: p.subscriberCode(),
		RawStatus:              status,
		OccurredAt:             occurredAt,
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
