package settle

import "errors"

// Settlement failures are typed and distinguishable by kind; nothing in this
// package throws for control flow. Chain-side failures reuse the sentinels of
// package chain (ErrTxNotFound, ErrChainUnavailable).
var (
	// ErrInvalidRequest: bad or missing fields; rejected before any side effect.
	ErrInvalidRequest = errors.New("settle: invalid request")
	// ErrUnauthorized: the caller's wallet does not own the acted-on resource.
	ErrUnauthorized = errors.New("settle: unauthorized")
	// ErrInvalidNonce: unknown, consumed, expired or mis-bound nonce. Never
	// retried with the same nonce value.
	ErrInvalidNonce = errors.New("settle: invalid nonce")
	// ErrAmountMismatch: observed transfers fall short of the expected split.
	// Terminal; no partial grant, no refund.
	ErrAmountMismatch = errors.New("settle: amount mismatch")
	// ErrInconsistent: a nonce was consumed but no grant could be recorded and
	// the compensating release failed. Requires manual reconciliation.
	ErrInconsistent = errors.New("settle: internal inconsistency")
)
