// Package content exposes the gated-content lookups the settlement engine
// needs: who owns a piece of content, what it costs, and where each party's
// payout token account lives. The wider content catalog (media, captions,
// social graph) lives outside this core.
package content

import (
	"context"
	"errors"
	"sync"

	"fanlock.app/internal/money"
)

// ErrNotFound indicates the content id is unknown.
var ErrNotFound = errors.New("content: not found")

// Content is the settlement-relevant projection of a piece of gated media.
type Content struct {
	ID              string       `json:"id"`
	OwnerWallet     string       `json:"owner_wallet"`
	OwnerAccount    string       `json:"owner_account"` // payout token account
	ReferrerWallet  string       `json:"referrer_wallet,omitempty"`
	ReferrerAccount string       `json:"referrer_account,omitempty"`
	Price           money.Amount `json:"price"`
}

// HasReferrer reports whether purchases of this content pay a referral share.
func (c Content) HasReferrer() bool { return c.ReferrerWallet != "" }

// Catalog resolves content metadata for settlement and access checks.
type Catalog interface {
	GetContent(ctx context.Context, id string) (Content, error)
}

// InMemory is a mutex-guarded catalog for tests and development.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]Content
}

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]Content)}
}

// Put registers or replaces a content record.
func (c *InMemory) Put(item Content) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

func (c *InMemory) GetContent(ctx context.Context, id string) (Content, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return Content{}, ErrNotFound
	}
	return item, nil
}
