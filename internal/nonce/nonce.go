// Package nonce issues and consumes the single-use challenge tokens that bind
// one in-flight purchase attempt to one (content, wallet) pair. A token is
// consumed exactly once; concurrent consumers of the same token resolve to a
// single winner.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL bounds how long an issued token stays consumable.
const DefaultTTL = 5 * time.Minute

var (
	// ErrInvalidOrUsed covers unknown tokens, already-consumed tokens and
	// tokens bound to a different content or wallet. Callers must restart
	// with a fresh token; the failure is never retried as-is.
	ErrInvalidOrUsed = errors.New("nonce: invalid or already used")
	// ErrExpired is returned when the token outlived its TTL.
	ErrExpired = errors.New("nonce: expired")
)

// Nonce is a persisted challenge token. Immutable except for the consumed flag.
type Nonce struct {
	Token     string    `json:"token"`
	ContentID string    `json:"content_id"`
	Wallet    string    `json:"wallet"`
	Consumed  bool      `json:"consumed"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Ledger is the durable store of challenge tokens.
type Ledger interface {
	// Issue creates and persists a fresh token bound to (contentID, wallet).
	Issue(ctx context.Context, contentID, wallet string) (Nonce, error)
	// Consume atomically flips the token to consumed iff it exists, is bound
	// to (contentID, wallet), is unconsumed and is within its TTL. The
	// check-and-set must be a single conditional write against the backing
	// store; two concurrent consumers must not both succeed.
	Consume(ctx context.Context, token, contentID, wallet string) error
	// Release un-consumes a token whose settlement produced no grant, making
	// a retry with the same token possible. Implementations must refuse the
	// release once a purchase references the token.
	Release(ctx context.Context, token string) error
}

// NewToken returns a cryptographically random token value.
func NewToken() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("nonce: entropy unavailable: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
