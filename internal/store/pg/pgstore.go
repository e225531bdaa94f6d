// Package pg persists the settlement core in PostgreSQL: nonces, purchases,
// subscriptions, tiers and the content projection. All multi-row invariants
// (single nonce consumer, one active subscription per pair) are enforced with
// single conditional writes or transactions, never read-then-write pairs.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fanlock.app/internal/content"
	"fanlock.app/internal/ids"
	"fanlock.app/internal/ledger"
	"fanlock.app/internal/money"
	"fanlock.app/internal/nonce"
)

// Store implements the nonce ledger, the purchase/subscription ledger and the
// content catalog on one database handle.
type Store struct {
	db       *sql.DB
	nonceTTL time.Duration
}

var (
	_ nonce.Ledger    = (*Store)(nil)
	_ ledger.Store    = (*Store)(nil)
	_ content.Catalog = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithNonceTTL overrides the default nonce expiry window.
func WithNonceTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.nonceTTL = ttl
		}
	}
}

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db, opts...), nil
}

// NewStore wraps an existing handle; used by tests and cmd wiring.
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, nonceTTL: nonce.DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- nonce ledger ---

func (s *Store) Issue(ctx context.Context, contentID, wallet string) (nonce.Nonce, error) {
	n := nonce.Nonce{
		Token:     nonce.NewToken(),
		ContentID: contentID,
		Wallet:    wallet,
		IssuedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		insert into nonces(token, content_id, wallet, consumed, issued_at)
		values ($1,$2,$3,false,$4)
	`, n.Token, n.ContentID, n.Wallet, n.IssuedAt)
	if err != nil {
		return nonce.Nonce{}, err
	}
	return n, nil
}

// Consume is the single conditional write that makes replay impossible: of N
// concurrent consumers, the row lock lets exactly one see consumed=false.
func (s *Store) Consume(ctx context.Context, token, contentID, wallet string) error {
	res, err := s.db.ExecContext(ctx, `
		update nonces set consumed=true
		where token=$1 and content_id=$2 and wallet=$3
		  and not consumed
		  and issued_at > now() - $4::interval
	`, token, contentID, wallet, s.nonceTTL.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish expiry from replay for the caller's error message.
	var consumed bool
	var issuedAt time.Time
	err = s.db.QueryRowContext(ctx, `
		select consumed, issued_at from nonces
		where token=$1 and content_id=$2 and wallet=$3
	`, token, contentID, wallet).Scan(&consumed, &issuedAt)
	if err == nil && !consumed && time.Since(issuedAt) > s.nonceTTL {
		return nonce.ErrExpired
	}
	return nonce.ErrInvalidOrUsed
}

// Release un-consumes a token, unless a purchase already references it.
func (s *Store) Release(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		update nonces set consumed=false
		where token=$1 and consumed
		  and not exists (select 1 from purchases where nonce=$1)
	`, token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return nonce.ErrInvalidOrUsed
	}
	return nil
}

// --- purchases ---

func (s *Store) RecordPurchase(ctx context.Context, p ledger.Purchase) (ledger.Purchase, error) {
	if p.Buyer == "" || p.ContentID == "" || p.Nonce == "" {
		return ledger.Purchase{}, ledger.ErrInvalidInput
	}
	if p.ID == "" {
		p.ID = ids.Prefixed("pur")
	}
	if p.SettledAt.IsZero() {
		p.SettledAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into purchases(id, kind, buyer, content_id, tx_ref, amount, nonce, settled_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, string(p.Kind), p.Buyer, p.ContentID, p.TxRef, int64(p.Amount), p.Nonce, p.SettledAt)
	if isUniqueViolation(err) {
		return ledger.Purchase{}, ledger.ErrDuplicateNonce
	}
	if err != nil {
		return ledger.Purchase{}, err
	}
	return p, nil
}

func (s *Store) HasPurchase(ctx context.Context, buyer, contentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from purchases
			where kind='unlock' and buyer=$1 and content_id=$2
		)
	`, buyer, contentID).Scan(&exists)
	return exists, err
}

func (s *Store) PurchaseCounts(ctx context.Context, contentID string) (int64, int64, error) {
	var unlocks, tips int64
	err := s.db.QueryRowContext(ctx, `
		select count(*) filter (where kind='unlock'),
		       count(*) filter (where kind='tip')
		from purchases where content_id=$1
	`, contentID).Scan(&unlocks, &tips)
	return unlocks, tips, err
}

// --- subscriptions ---

func (s *Store) RecordSubscription(ctx context.Context, subscriber, creator, tierID string, amount money.Amount, autoRenew bool) (ledger.Subscription, error) {
	if subscriber == "" || creator == "" || tierID == "" {
		return ledger.Subscription{}, ledger.ErrInvalidInput
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Subscription{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		update subscriptions set active=false
		where subscriber=$1 and creator=$2 and active
	`, subscriber, creator); err != nil {
		return ledger.Subscription{}, err
	}

	now := time.Now().UTC()
	sub := ledger.Subscription{
		ID:          ids.Prefixed("sub"),
		Subscriber:  subscriber,
		Creator:     creator,
		TierID:      tierID,
		PeriodStart: now,
		PeriodEnd:   now.Add(ledger.Period),
		Active:      true,
		AutoRenew:   autoRenew,
		TotalPaid:   amount,
	}
	if _, err := tx.ExecContext(ctx, `
		insert into subscriptions(id, subscriber, creator, tier_id, period_start, period_end, active, auto_renew, total_paid)
		values ($1,$2,$3,$4,$5,$6,true,$7,$8)
	`, sub.ID, sub.Subscriber, sub.Creator, sub.TierID, sub.PeriodStart, sub.PeriodEnd, sub.AutoRenew, int64(sub.TotalPaid)); err != nil {
		return ledger.Subscription{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Subscription{}, err
	}
	return sub, nil
}

func (s *Store) Renew(ctx context.Context, subscriptionID string, amount money.Amount) (ledger.Subscription, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		update subscriptions
		set period_end = period_end + $2::interval,
		    total_paid = total_paid + $3
		where id=$1 and active and auto_renew
		returning id, subscriber, creator, tier_id, period_start, period_end, active, auto_renew, total_paid
	`, subscriptionID, ledger.Period.String(), int64(amount))
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Subscription{}, false, nil
	}
	if err != nil {
		return ledger.Subscription{}, false, err
	}
	return sub, true, nil
}

func (s *Store) CancelSubscription(ctx context.Context, subscriptionID, subscriber string) error {
	res, err := s.db.ExecContext(ctx, `
		update subscriptions set active=false
		where id=$1 and subscriber=$2
	`, subscriptionID, subscriber)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subscriptionID string) (ledger.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, subscriber, creator, tier_id, period_start, period_end, active, auto_renew, total_paid
		from subscriptions where id=$1
	`, subscriptionID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Subscription{}, ledger.ErrNotFound
	}
	return sub, err
}

func (s *Store) ActiveSubscription(ctx context.Context, subscriber, creator string, t time.Time) (ledger.Subscription, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, subscriber, creator, tier_id, period_start, period_end, active, auto_renew, total_paid
		from subscriptions
		where subscriber=$1 and creator=$2 and active and period_end > $3
	`, subscriber, creator, t)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Subscription{}, false, nil
	}
	if err != nil {
		return ledger.Subscription{}, false, err
	}
	return sub, true, nil
}

// --- tiers ---

func (s *Store) CreateTier(ctx context.Context, tier ledger.SubscriptionTier) (ledger.SubscriptionTier, error) {
	if tier.Creator == "" || tier.Name == "" || tier.Price <= 0 {
		return ledger.SubscriptionTier{}, ledger.ErrInvalidInput
	}
	now := time.Now().UTC()
	tier.ID = ids.Prefixed("tier")
	tier.Active = true
	tier.CreatedAt = now
	tier.UpdatedAt = now

	benefits, err := json.Marshal(tier.Benefits)
	if err != nil {
		return ledger.SubscriptionTier{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into subscription_tiers(id, creator, name, price, benefits, active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,true,$6,$6)
	`, tier.ID, tier.Creator, tier.Name, int64(tier.Price), benefits, now); err != nil {
		return ledger.SubscriptionTier{}, err
	}
	return tier, nil
}

func (s *Store) GetTier(ctx context.Context, tierID string) (ledger.SubscriptionTier, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, creator, name, price, benefits, active, created_at, updated_at
		from subscription_tiers where id=$1
	`, tierID)
	tier, err := scanTier(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.SubscriptionTier{}, ledger.ErrNotFound
	}
	return tier, err
}

func (s *Store) ListTiers(ctx context.Context, creator string) ([]ledger.SubscriptionTier, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, creator, name, price, benefits, active, created_at, updated_at
		from subscription_tiers where creator=$1
		order by created_at asc
	`, creator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.SubscriptionTier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tier)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateTier(ctx context.Context, tierID, creator string) error {
	res, err := s.db.ExecContext(ctx, `
		update subscription_tiers set active=false, updated_at=now()
		where id=$1 and creator=$2
	`, tierID, creator)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// --- content catalog ---

func (s *Store) GetContent(ctx context.Context, id string) (content.Content, error) {
	var item content.Content
	var price int64
	var refWallet, refAccount sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select id, owner_wallet, owner_account, referrer_wallet, referrer_account, price
		from contents where id=$1
	`, id).Scan(&item.ID, &item.OwnerWallet, &item.OwnerAccount, &refWallet, &refAccount, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Content{}, content.ErrNotFound
	}
	if err != nil {
		return content.Content{}, err
	}
	item.Price = money.Amount(price)
	if refWallet.Valid {
		item.ReferrerWallet = refWallet.String
	}
	if refAccount.Valid {
		item.ReferrerAccount = refAccount.String
	}
	return item, nil
}

// PutContent upserts the settlement projection of a content row; used by the
// publishing surface and by tooling.
func (s *Store) PutContent(ctx context.Context, item content.Content) error {
	_, err := s.db.ExecContext(ctx, `
		insert into contents(id, owner_wallet, owner_account, referrer_wallet, referrer_account, price)
		values ($1,$2,$3,nullif($4,''),nullif($5,''),$6)
		on conflict (id) do update
		set owner_wallet=excluded.owner_wallet,
		    owner_account=excluded.owner_account,
		    referrer_wallet=excluded.referrer_wallet,
		    referrer_account=excluded.referrer_account,
		    price=excluded.price
	`, item.ID, item.OwnerWallet, item.OwnerAccount, item.ReferrerWallet, item.ReferrerAccount, int64(item.Price))
	return err
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (ledger.Subscription, error) {
	var sub ledger.Subscription
	var paid int64
	err := row.Scan(&sub.ID, &sub.Subscriber, &sub.Creator, &sub.TierID,
		&sub.PeriodStart, &sub.PeriodEnd, &sub.Active, &sub.AutoRenew, &paid)
	if err != nil {
		return ledger.Subscription{}, err
	}
	sub.TotalPaid = money.Amount(paid)
	return sub, nil
}

func scanTier(row rowScanner) (ledger.SubscriptionTier, error) {
	var tier ledger.SubscriptionTier
	var price int64
	var benefits []byte
	err := row.Scan(&tier.ID, &tier.Creator, &tier.Name, &price, &benefits,
		&tier.Active, &tier.CreatedAt, &tier.UpdatedAt)
	if err != nil {
		return ledger.SubscriptionTier{}, err
	}
	tier.Price = money.Amount(price)
	if len(benefits) > 0 {
		if err := json.Unmarshal(benefits, &tier.Benefits); err != nil {
			return ledger.SubscriptionTier{}, err
		}
	}
	return tier, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
