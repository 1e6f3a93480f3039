package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// Provider identifies where a plan or subscription originates.
type Provider string

const (
	ProviderStripe  Provider = "stripe"
	ProviderHotmart Provider = "hotmart"
	// ProviderAdmin marks subscriptions granted by hand from the back-office.
	ProviderAdmin Provider = "admin"
)

// IsBillingProvider returns true for providers that own a plan catalog.
func (p Provider) IsBillingProvider() bool {
	return p == ProviderStripe || p == ProviderHotmart
}

// PlanRef is the provider-qualified external identifier of a plan: a Stripe
// price ID or a Hotmart offer key. Matching is exact and case-sensitive.
type PlanRef struct {
	Provider   Provider
	ExternalID string
}

func (r PlanRef) String() string {
	return string(r.Provider) + ":" + r.ExternalID
}

// Validate checks the reference is usable as a catalog key.
func (r PlanRef) Validate() error {
	if !r.Provider.IsBillingProvider() {
		return domainErrors.NewValidationError("provider", "must be stripe or hotmart")
	}
	if strings.TrimSpace(r.ExternalID) == "" {
		return domainErrors.NewValidationError("external_id", "is required")
	}
	return nil
}

// PlanAttributes is what the provider catalog says about an offer.
type PlanAttributes struct {
	Name            string
	Currency        string
	Interval        string
	IntervalCount   int
	Amount          int64
	Active          *bool
	TrialPeriodDays *int
}

type Plan struct {
	ID              uuid.UUID
	Provider        Provider
	ExternalID      string
	Name            string
	Currency        string
	Interval        valueobject.BillingInterval
	IntervalCount   int
	Amount          int64
	Active          bool
	TrialPeriodDays *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewPlan validates and normalizes catalog attributes into a plan entity.
// IntervalCount 0 means 1 and a nil Active means active when the plan is
// first inserted.
func NewPlan(ref PlanRef, attrs PlanAttributes) (*Plan, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	price, err := valueobject.NewMoney(attrs.Amount, attrs.Currency)
	if err != nil {
		field := "currency"
		if attrs.Amount < 0 {
			field = "amount"
		}
		return nil, domainErrors.WrapValidationError(field, err)
	}

	interval, err := valueobject.NewBillingInterval(attrs.Interval)
	if err != nil {
		return nil, domainErrors.WrapValidationError("interval", err)
	}

	count := attrs.IntervalCount
	if count == 0 {
		count = 1
	}
	if count < 0 {
		return nil, domainErrors.NewValidationError("interval_count", "must be a positive integer")
	}

	if attrs.TrialPeriodDays != nil && *attrs.TrialPeriodDays < 0 {
		return nil, domainErrors.NewValidationError("trial_period_days", "must not be negative")
	}

	active := true
	if attrs.Active != nil {
		active = *attrs.Active
	}

	name := strings.TrimSpace(attrs.Name)
	if name == "" {
		name = ref.ExternalID
	}

	now := time.Now().UTC()
	return &Plan{
		ID:              uuid.New(),
		Provider:        ref.Provider,
		ExternalID:      ref.ExternalID,
		Name:            name,
		Currency:        price.Currency,
		Interval:        interval,
		IntervalCount:   count,
		Amount:          price.Amount,
		Active:          active,
		TrialPeriodDays: attrs.TrialPeriodDays,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Ref returns the catalog key of the plan.
func (p *Plan) Ref() PlanRef {
	return PlanRef{Provider: p.Provider, ExternalID: p.ExternalID}
}

// Price returns the plan amount as money
func (p *Plan) Price() valueobject.Money {
	return valueobject.Money{Amount: p.Amount, Currency: p.Currency}
}

// PeriodEnd returns the end of a billing period beginning at start.
func (p *Plan) PeriodEnd(start time.Time) time.Time {
	return p.Interval.Advance(start, p.IntervalCount)
}

// TrialEnd returns the end of a trial beginning at start. ok is false when
// the plan carries no trial length.
func (p *Plan) TrialEnd(start time.Time) (time.Time, bool) {
	if p.TrialPeriodDays == nil || *p.TrialPeriodDays <= 0 {
		return time.Time{}, false
	}
	return valueobject.IntervalDay.Advance(start, *p.TrialPeriodDays), true
}

// PeriodEndFor is PeriodEnd, except that a trialing period on a plan with a
// trial length ends when the trial does.
func (p *Plan) PeriodEndFor(status valueobject.SubscriptionStatus, start time.Time) time.Time {
	if valueobject.NormalizeSubscriptionStatus(string(status)) == valueobject.StatusTrialing {
		if end, ok := p.TrialEnd(start); ok {
			return end
		}
	}
	return p.PeriodEnd(start)
}

// BillingTermsDiffer reports whether currency or renewal rules disagree.
// Name and price changes are routine; these are the fields whose drift made
// subscriptions show the wrong currency or interval.
func (p *Plan) BillingTermsDiffer(other *Plan) bool {
	return p.Currency != other.Currency ||
		p.Interval != other.Interval ||
		p.IntervalCount != other.IntervalCount
}
