package ledger

import (
	"errors"
	"time"

	"fanlock.app/internal/money"
)

// PurchaseKind distinguishes one-off unlocks from tips. Both are immutable
// settled facts; only unlocks affect access.
type PurchaseKind string

const (
	KindUnlock PurchaseKind = "unlock"
	KindTip    PurchaseKind = "tip"
)

// Purchase is a settled payment recorded exactly once per nonce. Immutable.
type Purchase struct {
	ID        string       `json:"id"`
	Kind      PurchaseKind `json:"kind"`
	Buyer     string       `json:"buyer"`
	ContentID string       `json:"content_id"`
	TxRef     string       `json:"tx_ref"`
	Amount    money.Amount `json:"amount"`
	Nonce     string       `json:"nonce"`
	SettledAt time.Time    `json:"settled_at"`
}

// SubscriptionTier is a creator-defined subscription offering. Deactivation is
// a soft flag flip; historical subscriptions keep referencing the tier.
type SubscriptionTier struct {
	ID        string       `json:"id"`
	Creator   string       `json:"creator"`
	Name      string       `json:"name"`
	Price     money.Amount `json:"price"` // base units per period
	Benefits  []string     `json:"benefits,omitempty"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Subscription is a fan's paid period with a creator. At most one active row
// exists per (subscriber, creator) pair.
type Subscription struct {
	ID          string       `json:"id"`
	Subscriber  string       `json:"subscriber"`
	Creator     string       `json:"creator"`
	TierID      string       `json:"tier_id"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Active      bool         `json:"active"`
	AutoRenew   bool         `json:"auto_renew"`
	TotalPaid   money.Amount `json:"total_paid"`
}

// Covers reports whether the subscription grants access at instant t.
func (s Subscription) Covers(t time.Time) bool {
	return s.Active && s.PeriodEnd.After(t)
}

var (
	ErrNotFound       = errors.New("ledger: not found")
	ErrDuplicateNonce = errors.New("ledger: nonce already backs a purchase")
	ErrInvalidInput   = errors.New("ledger: invalid input")
)
