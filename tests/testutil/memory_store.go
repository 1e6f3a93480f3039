package testutil

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediz-app/mediz-billing/internal/domain/entity"
	domainErrors "github.com/mediz-app/mediz-billing/internal/domain/errors"
	"github.com/mediz-app/mediz-billing/internal/domain/repository"
	"github.com/mediz-app/mediz-billing/internal/domain/valueobject"
)

// MemoryStore is an in-process stand-in for the Postgres schema. It keeps the
// same constraints the SQL repositories rely on: unique plan references,
// unique subscription external IDs, foreign keys, the stale-event guard and
// distinct-user counting.
type MemoryStore struct {
	mu sync.Mutex

	users     map[uuid.UUID]string
	customers map[string]uuid.UUID
	plans     map[uuid.UUID]*entity.Plan
	subs      map[uuid.UUID]*entity.Subscription
	events    map[string]*entity.WebhookEvent
	audit     []*entity.AuditEntry

	subscriptionWrites int

	// FailSubscriptionWrites, when set, is returned by every subscription
	// mutation.
	FailSubscriptionWrites error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]string),
		customers: make(map[string]uuid.UUID),
		plans:     make(map[uuid.UUID]*entity.Plan),
		subs:      make(map[uuid.UUID]*entity.Subscription),
		events:    make(map[string]*entity.WebhookEvent),
	}
}

func customerKey(provider entity.Provider, ref string) string {
	return string(provider) + "|" + ref
}

// AddUser inserts a user and returns its ID
func (s *MemoryStore) AddUser(email string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = strings.ToLower(email)
	return id
}

// LinkCustomer maps a provider customer to a user
func (s *MemoryStore) LinkCustomer(userID uuid.UUID, provider entity.Provider, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customerKey(provider, ref)] = userID
}

// SubscriptionCount returns the number of subscription rows
func (s *MemoryStore) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// SubscriptionWrites returns how many subscription mutations succeeded
func (s *MemoryStore) SubscriptionWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptionWrites
}

// PutSubscription stores a row as-is, bypassing the upsert rules
func (s *MemoryStore) PutSubscription(sub *entity.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subs[sub.ID] = &cp
}

// WebhookEvent returns the journaled delivery, if any
func (s *MemoryStore) WebhookEvent(provider entity.Provider, eventID string) (*entity.WebhookEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[customerKey(provider, eventID)]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// AuditEntries returns the audit log in insertion order
func (s *MemoryStore) AuditEntries() []*entity.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.AuditEntry(nil), s.audit...)
}

func (s *MemoryStore) Plans() *MemoryPlanRepository {
	return &MemoryPlanRepository{s: s}
}

func (s *MemoryStore) Subscriptions() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{s: s}
}

func (s *MemoryStore) Customers() *MemoryCustomerRepository {
	return &MemoryCustomerRepository{s: s}
}

func (s *MemoryStore) WebhookEvents() *MemoryWebhookEventRepository {
	return &MemoryWebhookEventRepository{s: s}
}

func (s *MemoryStore) AuditLog() *MemoryAuditLogRepository {
	return &MemoryAuditLogRepository{s: s}
}

// MemoryPlanRepository implements repository.PlanRepository
type MemoryPlanRepository struct{ s *MemoryStore }

func (r *MemoryPlanRepository) Upsert(_ context.Context, plan *entity.Plan, opts repository.PlanUpsertOptions) (*entity.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.plans {
		if p.Provider == plan.Provider && p.ExternalID == plan.ExternalID {
			p.Name = plan.Name
			p.Currency = plan.Currency
			p.Interval = plan.Interval
			p.IntervalCount = plan.IntervalCount
			p.Amount = plan.Amount
			if !opts.KeepActive {
				p.Active = plan.Active
			}
			if !opts.KeepTrial {
				p.TrialPeriodDays = plan.TrialPeriodDays
			}
			p.UpdatedAt = time.Now().UTC()
			cp := *p
			return &cp, nil
		}
	}
	cp := *plan
	r.s.plans[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MemoryPlanRepository) GetByRef(_ context.Context, ref entity.PlanRef) (*entity.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.plans {
		if p.Provider == ref.Provider && p.ExternalID == ref.ExternalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domainErrors.ErrPlanNotFound
}

func (r *MemoryPlanRepository) GetByID(_ context.Context, id uuid.UUID) (*entity.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, domainErrors.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryPlanRepository) List(_ context.Context, activeOnly bool) ([]*entity.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Plan, 0, len(r.s.plans))
	for _, p := range r.s.plans {
		if activeOnly && !p.Active {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (r *MemoryPlanRepository) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return domainErrors.ErrPlanNotFound
	}
	p.Active = active
	return nil
}

// MemorySubscriptionRepository implements repository.SubscriptionRepository
type MemorySubscriptionRepository struct{ s *MemoryStore }

func (r *MemorySubscriptionRepository) findByExternalID(externalID string) *entity.Subscription {
	for _, sub := range r.s.subs {
		if sub.ExternalID == externalID {
			return sub
		}
	}
	return nil
}

func isStale(stored, incoming *time.Time) bool {
	return stored != nil && incoming != nil && stored.After(*incoming)
}

func (r *MemorySubscriptionRepository) UpsertByExternalID(_ context.Context, sub *entity.Subscription) (*entity.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.FailSubscriptionWrites != nil {
		return nil, r.s.FailSubscriptionWrites
	}
	if _, ok := r.s.users[sub.UserID]; !ok {
		return nil, domainErrors.ErrReferentialIntegrity
	}
	if _, ok := r.s.plans[sub.PlanID]; !ok {
		return nil, domainErrors.ErrReferentialIntegrity
	}

	now := time.Now().UTC()
	if existing := r.findByExternalID(sub.ExternalID); existing != nil {
		if isStale(existing.LastEventAt, sub.LastEventAt) {
			return nil, domainErrors.ErrStaleEvent
		}
		existing.PlanID = sub.PlanID
		existing.Status = sub.Status
		existing.CurrentPeriodStart = sub.CurrentPeriodStart
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
		if sub.LastEventAt != nil {
			t := *sub.LastEventAt
			existing.LastEventAt = &t
		}
		existing.UpdatedAt = now
		r.s.subscriptionWrites++
		cp := *existing
		return &cp, nil
	}

	cp := *sub
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.s.subs[cp.ID] = &cp
	r.s.subscriptionWrites++
	out := cp
	return &out, nil
}

func (r *MemorySubscriptionRepository) UpdateStatusByExternalID(_ context.Context, externalID string, status valueobject.SubscriptionStatus, occurredAt *time.Time) (*entity.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.FailSubscriptionWrites != nil {
		return nil, r.s.FailSubscriptionWrites
	}
	existing := r.findByExternalID(externalID)
	if existing == nil {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	if isStale(existing.LastEventAt, occurredAt) {
		return nil, domainErrors.ErrStaleEvent
	}
	existing.Status = status
	if occurredAt != nil {
		t := *occurredAt
		existing.LastEventAt = &t
	}
	existing.UpdatedAt = time.Now().UTC()
	r.s.subscriptionWrites++
	cp := *existing
	return &cp, nil
}

func (r *MemorySubscriptionRepository) GetByID(_ context.Context, id uuid.UUID) (*entity.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subs[id]
	if !ok {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *MemorySubscriptionRepository) GetByExternalID(_ context.Context, externalID string) (*entity.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub := r.findByExternalID(externalID)
	if sub == nil {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *MemorySubscriptionRepository) filter(keep func(*entity.Subscription) bool) []*entity.Subscription {
	out := []*entity.Subscription{}
	for _, sub := range r.s.subs {
		if keep(sub) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentPeriodStart.After(out[j].CurrentPeriodStart) })
	return out
}

func (r *MemorySubscriptionRepository) ListByUserID(_ context.Context, userID uuid.UUID) ([]*entity.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(s *entity.Subscription) bool { return s.UserID == userID }), nil
}

func (r *MemorySubscriptionRepository) ListEntitledByUserID(_ context.Context, userID uuid.UUID, asOf time.Time) ([]*entity.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(s *entity.Subscription) bool {
		return s.UserID == userID && s.GrantsEntitlementAt(asOf)
	}), nil
}

func (r *MemorySubscriptionRepository) entitledPerUser(asOf time.Time) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, sub := range r.s.subs {
		if sub.GrantsEntitlementAt(asOf) {
			counts[sub.UserID]++
		}
	}
	return counts
}

func (r *MemorySubscriptionRepository) CountEntitledUsers(_ context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.entitledPerUser(asOf))), nil
}

func (r *MemorySubscriptionRepository) CountEntitledSubscriptions(_ context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, c := range r.entitledPerUser(asOf) {
		n += int64(c)
	}
	return n, nil
}

func (r *MemorySubscriptionRepository) ListUsersWithMultipleEntitled(_ context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []uuid.UUID{}
	for userID, c := range r.entitledPerUser(asOf) {
		if c > 1 {
			out = append(out, userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySubscriptionRepository) UpdatePeriodEnd(_ context.Context, id uuid.UUID, expectedStart, periodEnd time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailSubscriptionWrites != nil {
		return false, r.s.FailSubscriptionWrites
	}
	sub, ok := r.s.subs[id]
	if !ok || !sub.CurrentPeriodStart.Equal(expectedStart) {
		return false, nil
	}
	sub.CurrentPeriodEnd = periodEnd
	sub.UpdatedAt = time.Now().UTC()
	r.s.subscriptionWrites++
	return true, nil
}

func (r *MemorySubscriptionRepository) ListIDsAfter(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.s.subs))
	for id := range r.s.subs {
		if bytes.Compare(id[:], after[:]) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *MemorySubscriptionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subs[id]; !ok {
		return domainErrors.ErrSubscriptionNotFound
	}
	delete(r.s.subs, id)
	r.s.subscriptionWrites++
	return nil
}

// MemoryCustomerRepository implements repository.CustomerRepository
type MemoryCustomerRepository struct{ s *MemoryStore }

func (r *MemoryCustomerRepository) ResolveUserID(_ context.Context, provider entity.Provider, customerRef string) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.customers[customerKey(provider, customerRef)]; ok {
		return id, nil
	}
	if provider == entity.ProviderHotmart {
		for id, email := range r.s.users {
			if email != "" && email == strings.ToLower(customerRef) {
				return id, nil
			}
		}
	}
	return uuid.Nil, domainErrors.ErrUserNotFound
}

func (r *MemoryCustomerRepository) Link(_ context.Context, link *entity.CustomerLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[link.UserID]; !ok {
		return domainErrors.ErrReferentialIntegrity
	}
	r.s.customers[customerKey(link.Provider, link.CustomerRef)] = link.UserID
	return nil
}

func (r *MemoryCustomerRepository) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.users[userID]
	return ok, nil
}

// MemoryWebhookEventRepository implements repository.WebhookEventRepository
type MemoryWebhookEventRepository struct{ s *MemoryStore }

func (r *MemoryWebhookEventRepository) Record(_ context.Context, event *entity.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := customerKey(event.Provider, event.EventID)
	if _, ok := r.s.events[key]; ok {
		return false, nil
	}
	cp := *event
	r.s.events[key] = &cp
	return true, nil
}

func (r *MemoryWebhookEventRepository) MarkProcessed(_ context.Context, provider entity.Provider, eventID string, processingErr string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[customerKey(provider, eventID)]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	e.ProcessedAt = &now
	e.ProcessingError = processingErr
	return nil
}

// MemoryAuditLogRepository implements repository.AuditLogRepository
type MemoryAuditLogRepository struct{ s *MemoryStore }

func (r *MemoryAuditLogRepository) Insert(_ context.Context, entry *entity.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *entry
	r.s.audit = append(r.s.audit, &cp)
	return nil
}
