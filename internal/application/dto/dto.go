package dto

import (
	"time"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
)

const timeFormat = time.RFC3339

// ========== PLAN DTOs ==========

// UpsertPlanRequest creates or overwrites a catalog entry
type UpsertPlanRequest struct {
	Provider        string `json:"provider" binding:"required,oneof=stripe hotmart"`
	ExternalID      string `json:"external_id" binding:"required"`
	Name            string `json:"name"`
	Currency        string `json:"currency" binding:"required,len=3"`
	Interval        string `json:"interval" binding:"required"`
	IntervalCount   int    `json:"interval_count" binding:"gte=0"`
	Amount          int64  `json:"amount" binding:"gte=0"`
	Active          *bool  `json:"active,omitempty"`
	TrialPeriodDays *int   `json:"trial_period_days,omitempty"`
}

// Ref returns the catalog key of the request
func (r UpsertPlanRequest) Ref() entity.PlanRef {
	return entity.PlanRef{Provider: entity.Provider(r.Provider), ExternalID: r.ExternalID}
}

// Attributes returns the plan attributes of the request
func (r UpsertPlanRequest) Attributes() entity.PlanAttributes {
	return entity.PlanAttributes{
		Name:            r.Name,
		Currency:        r.Currency,
		Interval:        r.Interval,
		IntervalCount:   r.IntervalCount,
		Amount:          r.Amount,
		Active:          r.Active,
		TrialPeriodDays: r.TrialPeriodDays,
	}
}

// PlanResponse represents a catalog entry
type PlanResponse struct {
	ID              string `json:"id"`
	Provider        string `json:"provider"`
	ExternalID      string `json:"external_id"`
	Name            string `json:"name"`
	Currency        string `json:"currency"`
	Interval        string `json:"interval"`
	IntervalCount   int    `json:"interval_count"`
	Amount          int64  `json:"amount"`
	Price           string `json:"price"`
	Active          bool   `json:"active"`
	TrialPeriodDays *int   `json:"trial_period_days,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// NewPlanResponse maps a plan entity
func NewPlanResponse(p *entity.Plan) *PlanResponse {
	return &PlanResponse{
		ID:              p.ID.String(),
		Provider:        string(p.Provider),
		ExternalID:      p.ExternalID,
		Name:            p.Name,
		Currency:        p.Currency,
		Interval:        string(p.Interval),
		IntervalCount:   p.IntervalCount,
		Amount:          p.Amount,
		Price:           p.Price().String(),
		Active:          p.Active,
		TrialPeriodDays: p.TrialPeriodDays,
		CreatedAt:       p.CreatedAt.Format(timeFormat),
		UpdatedAt:       p.UpdatedAt.Format(timeFormat),
	}
}

// NewPlanResponses maps a plan list
func NewPlanResponses(plans []*entity.Plan) []*PlanResponse {
	out := make([]*PlanResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, NewPlanResponse(p))
	}
	return out
}

// PlanUpsertResponse reports what an upsert did
type PlanUpsertResponse struct {
	Plan           *PlanResponse `json:"plan"`
	Created        bool          `json:"created"`
	DriftCorrected bool          `json:"drift_corrected"`
}

// ========== SUBSCRIPTION DTOs ==========

// GrantSubscriptionRequest creates a back-office subscription
type GrantSubscriptionRequest struct {
	PlanID      string     `json:"plan_id" binding:"required,uuid"`
	Status      string     `json:"status"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// UpdateSubscriptionRequest edits a subscription; omitted fields are kept
type UpdateSubscriptionRequest struct {
	PlanID      *string    `json:"plan_id,omitempty" binding:"omitempty,uuid"`
	Status      *string    `json:"status,omitempty"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// SubscriptionResponse represents a subscription response
type SubscriptionResponse struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	PlanID             string  `json:"plan_id"`
	Provider           string  `json:"provider"`
	ExternalID         string  `json:"external_id"`
	Status             string  `json:"status"`
	CurrentPeriodStart string  `json:"current_period_start"`
	CurrentPeriodEnd   string  `json:"current_period_end"`
	LastEventAt        *string `json:"last_event_at,omitempty"`
	AdminGranted       bool    `json:"admin_granted"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// NewSubscriptionResponse maps a subscription entity
func NewSubscriptionResponse(s *entity.Subscription) *SubscriptionResponse {
	resp := &SubscriptionResponse{
		ID:                 s.ID.String(),
		UserID:             s.UserID.String(),
		PlanID:             s.PlanID.String(),
		Provider:           string(s.Provider),
		ExternalID:         s.ExternalID,
		Status:             string(s.Status),
		CurrentPeriodStart: s.CurrentPeriodStart.Format(timeFormat),
		CurrentPeriodEnd:   s.CurrentPeriodEnd.Format(timeFormat),
		AdminGranted:       s.IsAdminGranted(),
		CreatedAt:          s.CreatedAt.Format(timeFormat),
		UpdatedAt:          s.UpdatedAt.Format(timeFormat),
	}
	if s.LastEventAt != nil {
		v := s.LastEventAt.Format(timeFormat)
		resp.LastEventAt = &v
	}
	return resp
}

// NewSubscriptionResponses maps a subscription list
func NewSubscriptionResponses(subs []*entity.Subscription) []*SubscriptionResponse {
	out := make([]*SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, NewSubscriptionResponse(s))
	}
	return out
}

// ========== ENTITLEMENT DTOs ==========

// EntitlementResponse answers whether a user is premium
type EntitlementResponse struct {
	UserID        string                  `json:"user_id"`
	Premium       bool                    `json:"premium"`
	AsOf          string                  `json:"as_of"`
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
}

// PremiumStatsResponse is the premium dashboard aggregate
type PremiumStatsResponse struct {
	PremiumUsers          int64  `json:"premium_users"`
	EntitledSubscriptions int64  `json:"entitled_subscriptions"`
	AsOf                  string `json:"as_of"`
	Cached                bool   `json:"cached"`
}

// ========== MAINTENANCE DTOs ==========

// RecalculateResponse reports a synchronous or enqueued recalculation
type RecalculateResponse struct {
	Enqueued    bool        `json:"enqueued"`
	TaskID      string      `json:"task_id,omitempty"`
	Corrections interface{} `json:"corrections,omitempty"`
	Corrected   int         `json:"corrected"`
}

// EnqueuedResponse acknowledges a background job
type EnqueuedResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

// ========== WEBHOOK DTOs ==========

// WebhookAck is returned to billing providers
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}
