// Package access answers "does wallet W have access to content C". It reads
// the same ledger the settlement engine writes, with no cache in between, so
// a grant is visible the moment it commits.
package access

import (
	"context"
	"time"

	"fanlock.app/internal/content"
	"fanlock.app/internal/ledger"
)

// Resolver computes access grants from the catalog and the settlement ledger.
type Resolver struct {
	catalog content.Catalog
	store   ledger.Store
	now     func() time.Time
}

// New creates a Resolver.
func New(catalog content.Catalog, store ledger.Store) *Resolver {
	return &Resolver{catalog: catalog, store: store, now: time.Now}
}

// SetNow overrides the clock; test hook.
func (r *Resolver) SetNow(now func() time.Time) { r.now = now }

// IsUnlocked reports whether the wallet may view the content: free content,
// creator ownership, a settled unlock purchase, or an active subscription
// covering the content's creator.
func (r *Resolver) IsUnlocked(ctx context.Context, wallet, contentID string) (bool, error) {
	item, err := r.catalog.GetContent(ctx, contentID)
	if err != nil {
		return false, err
	}
	if item.Price.IsZero() {
		return true, nil
	}
	if wallet == item.OwnerWallet {
		return true, nil
	}
	purchased, err := r.store.HasPurchase(ctx, wallet, contentID)
	if err != nil {
		return false, err
	}
	if purchased {
		return true, nil
	}
	_, covered, err := r.store.ActiveSubscription(ctx, wallet, item.OwnerWallet, r.now().UTC())
	if err != nil {
		return false, err
	}
	return covered, nil
}
