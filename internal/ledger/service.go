// Package ledger is the durable store of settled purchases, subscriptions and
// subscription tiers: the source of truth for "is this (wallet, content) pair
// unlocked". Rows are written only by the settlement engine and the tier CRUD
// surface; purchases are immutable once inserted.
package ledger

import (
	"context"
	"sync"
	"time"

	"fanlock.app/internal/ids"
	"fanlock.app/internal/money"
)

// Period is the length of one subscription billing period.
const Period = 30 * 24 * time.Hour

// Store defines the settlement ledger operations.
type Store interface {
	// RecordPurchase inserts an immutable purchase row. Fails with
	// ErrDuplicateNonce when the nonce already backs a purchase.
	RecordPurchase(ctx context.Context, p Purchase) (Purchase, error)
	// RecordSubscription deactivates any active (subscriber, creator) row and
	// inserts a fresh active one, atomically; no window may exist where two
	// rows are active for the same pair.
	RecordSubscription(ctx context.Context, subscriber, creator, tierID string, amount money.Amount, autoRenew bool) (Subscription, error)
	// Renew extends an active auto-renew subscription by one period and adds
	// to its cumulative paid amount. Matching zero rows is a no-op (renewed
	// == false), not an error: the caller already lost entitlement.
	Renew(ctx context.Context, subscriptionID string, amount money.Amount) (Subscription, bool, error)
	// CancelSubscription soft-deactivates the subscription.
	CancelSubscription(ctx context.Context, subscriptionID, subscriber string) error

	GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
	// HasPurchase reports whether a settled unlock purchase exists for the pair.
	HasPurchase(ctx context.Context, buyer, contentID string) (bool, error)
	// PurchaseCounts returns the number of settled unlocks and tips for the
	// content; feeds the engagement score.
	PurchaseCounts(ctx context.Context, contentID string) (unlocks, tips int64, err error)
	// ActiveSubscription returns the covering subscription for the pair at t.
	ActiveSubscription(ctx context.Context, subscriber, creator string, t time.Time) (Subscription, bool, error)

	CreateTier(ctx context.Context, tier SubscriptionTier) (SubscriptionTier, error)
	GetTier(ctx context.Context, tierID string) (SubscriptionTier, error)
	ListTiers(ctx context.Context, creator string) ([]SubscriptionTier, error)
	// DeactivateTier flips the active flag; tiers are never hard-deleted.
	DeactivateTier(ctx context.Context, tierID, creator string) error
}

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu        sync.Mutex
	purchases []Purchase
	byNonce   map[string]bool
	subs      map[string]*Subscription
	tiers     map[string]*SubscriptionTier
	now       func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates a fresh, empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		byNonce: make(map[string]bool),
		subs:    make(map[string]*Subscription),
		tiers:   make(map[string]*SubscriptionTier),
		now:     time.Now,
	}
}

// SetNow overrides the clock; test hook.
func (s *InMemory) SetNow(now func() time.Time) { s.now = now }

func (s *InMemory) RecordPurchase(ctx context.Context, p Purchase) (Purchase, error) {
	if p.Buyer == "" || p.ContentID == "" || p.Nonce == "" {
		return Purchase{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byNonce[p.Nonce] {
		return Purchase{}, ErrDuplicateNonce
	}
	if p.ID == "" {
		p.ID = ids.Prefixed("pur")
	}
	if p.SettledAt.IsZero() {
		p.SettledAt = s.now().UTC()
	}
	s.purchases = append(s.purchases, p)
	s.byNonce[p.Nonce] = true
	return p, nil
}

func (s *InMemory) RecordSubscription(ctx context.Context, subscriber, creator, tierID string, amount money.Amount, autoRenew bool) (Subscription, error) {
	if subscriber == "" || creator == "" || tierID == "" {
		return Subscription{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.Active && sub.Subscriber == subscriber && sub.Creator == creator {
			sub.Active = false
		}
	}

	now := s.now().UTC()
	sub := Subscription{
		ID:          ids.Prefixed("sub"),
		Subscriber:  subscriber,
		Creator:     creator,
		TierID:      tierID,
		PeriodStart: now,
		PeriodEnd:   now.Add(Period),
		Active:      true,
		AutoRenew:   autoRenew,
		TotalPaid:   amount,
	}
	s.subs[sub.ID] = &sub
	return sub, nil
}

func (s *InMemory) Renew(ctx context.Context, subscriptionID string, amount money.Amount) (Subscription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subscriptionID]
	if !ok || !sub.Active || !sub.AutoRenew {
		return Subscription{}, false, nil
	}
	sub.PeriodEnd = sub.PeriodEnd.Add(Period)
	sub.TotalPaid += amount
	return *sub, true, nil
}

func (s *InMemory) CancelSubscription(ctx context.Context, subscriptionID, subscriber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subscriptionID]
	if !ok || sub.Subscriber != subscriber {
		return ErrNotFound
	}
	sub.Active = false
	return nil
}

func (s *InMemory) GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return *sub, nil
}

func (s *InMemory) HasPurchase(ctx context.Context, buyer, contentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.purchases {
		if p.Kind == KindUnlock && p.Buyer == buyer && p.ContentID == contentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) PurchaseCounts(ctx context.Context, contentID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unlocks, tips int64
	for _, p := range s.purchases {
		if p.ContentID != contentID {
			continue
		}
		switch p.Kind {
		case KindUnlock:
			unlocks++
		case KindTip:
			tips++
		}
	}
	return unlocks, tips, nil
}

func (s *InMemory) ActiveSubscription(ctx context.Context, subscriber, creator string, t time.Time) (Subscription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.Subscriber == subscriber && sub.Creator == creator && sub.Covers(t) {
			return *sub, true, nil
		}
	}
	return Subscription{}, false, nil
}

func (s *InMemory) CreateTier(ctx context.Context, tier SubscriptionTier) (SubscriptionTier, error) {
	if tier.Creator == "" || tier.Name == "" || tier.Price <= 0 {
		return SubscriptionTier{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	tier.ID = ids.Prefixed("tier")
	tier.Active = true
	tier.CreatedAt = now
	tier.UpdatedAt = now
	s.tiers[tier.ID] = &tier
	return tier, nil
}

func (s *InMemory) GetTier(ctx context.Context, tierID string) (SubscriptionTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tiers[tierID]
	if !ok {
		return SubscriptionTier{}, ErrNotFound
	}
	return *tier, nil
}

func (s *InMemory) ListTiers(ctx context.Context, creator string) ([]SubscriptionTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SubscriptionTier
	for _, tier := range s.tiers {
		if tier.Creator == creator {
			out = append(out, *tier)
		}
	}
	return out, nil
}

func (s *InMemory) DeactivateTier(ctx context.Context, tierID, creator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tiers[tierID]
	if !ok || tier.Creator != creator {
		return ErrNotFound
	}
	tier.Active = false
	tier.UpdatedAt = s.now().UTC()
	return nil
}
