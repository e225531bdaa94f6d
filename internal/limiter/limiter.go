// Package limiter caps nonce issuance per wallet. The count lives in a shared
// store so every service instance sees the same window; in-process maps cannot
// rate-limit a horizontally scaled deployment.
package limiter

import (
	"context"
	"time"
)

// Limiter controls how many unlock attempts a wallet may start per window.
type Limiter interface {
	// Allow records one issuance attempt for the wallet and reports whether it
	// is within the window's budget, with an optional retry-after hint.
	Allow(ctx context.Context, wallet string) (bool, time.Duration, error)
}
