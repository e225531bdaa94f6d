package nonce

import (
	"context"
	"sync"
	"time"
)

// InMemory implements Ledger with in-process concurrency safety. Used in tests
// and single-node development; production uses the Postgres-backed store.
type InMemory struct {
	mu     sync.Mutex
	byTok  map[string]*Nonce
	locked map[string]bool // tokens referenced by a recorded purchase
	ttl    time.Duration
	now    func() time.Time
}

// NewInMemory creates an empty nonce ledger with the given TTL
// (DefaultTTL when ttl <= 0).
func NewInMemory(ttl time.Duration) *InMemory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InMemory{
		byTok:  make(map[string]*Nonce),
		locked: make(map[string]bool),
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetNow overrides the clock; test hook.
func (l *InMemory) SetNow(now func() time.Time) { l.now = now }

func (l *InMemory) Issue(ctx context.Context, contentID, wallet string) (Nonce, error) {
	n := Nonce{
		Token:     NewToken(),
		ContentID: contentID,
		Wallet:    wallet,
		IssuedAt:  l.now().UTC(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byTok[n.Token] = &n
	return n, nil
}

func (l *InMemory) Consume(ctx context.Context, token, contentID, wallet string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.byTok[token]
	if !ok || n.Consumed || n.ContentID != contentID || n.Wallet != wallet {
		return ErrInvalidOrUsed
	}
	if l.now().Sub(n.IssuedAt) > l.ttl {
		return ErrExpired
	}
	n.Consumed = true
	return nil
}

func (l *InMemory) Release(ctx context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.byTok[token]
	if !ok || !n.Consumed || l.locked[token] {
		return ErrInvalidOrUsed
	}
	n.Consumed = false
	return nil
}

// MarkGranted pins a token so Release can no longer un-consume it. The
// Postgres store gets the same guarantee from the purchases foreign key.
func (l *InMemory) MarkGranted(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked[token] = true
}
