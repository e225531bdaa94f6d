package limiter

import (
	"context"
	"database/sql"
	"time"
)

// PG is a PostgreSQL-backed limiter with a rolling window per wallet. A single
// upsert both bumps and reads the counter, so concurrent issuers cannot slip
// past the budget between a read and a write.
type PG struct {
	db     *sql.DB
	window time.Duration
	max    int
}

var _ Limiter = (*PG)(nil)

// NewPG constructs a PostgreSQL-backed limiter allowing max issuances per window.
func NewPG(db *sql.DB, window time.Duration, max int) *PG {
	return &PG{db: db, window: window, max: max}
}

func (l *PG) Allow(ctx context.Context, wallet string) (bool, time.Duration, error) {
	const q = `
INSERT INTO nonce_limiter (wallet, issue_count, window_start)
VALUES ($1, 1, now())
ON CONFLICT (wallet) DO UPDATE
SET
  issue_count = CASE WHEN now() - nonce_limiter.window_start > $2::interval THEN 1 ELSE nonce_limiter.issue_count + 1 END,
  window_start = CASE WHEN now() - nonce_limiter.window_start > $2::interval THEN now() ELSE nonce_limiter.window_start END
RETURNING issue_count, window_start`
	var count int
	var windowStart time.Time
	if err := l.db.QueryRowContext(ctx, q, wallet, l.window.String()).Scan(&count, &windowStart); err != nil {
		return false, 0, err
	}
	if count > l.max {
		retryAfter := time.Until(windowStart.Add(l.window))
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}
