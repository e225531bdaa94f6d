// Package settle turns a verified on-chain payment into a durable, exactly-
// once access grant. Every flow follows the same ordering: consume the nonce
// first (replays fail before any chain I/O), then fetch and verify the
// transaction, then record the grant. A failure after the nonce was consumed
// triggers a compensating release so the token is not permanently wasted.
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fanlock.app/internal/audit"
	"fanlock.app/internal/chain"
	"fanlock.app/internal/content"
	"fanlock.app/internal/ledger"
	"fanlock.app/internal/money"
	"fanlock.app/internal/nonce"
	"fanlock.app/internal/obs"
	"fanlock.app/internal/stream"
)

// Config carries the chain-side constants of the deployment.
type Config struct {
	// Mint is the fungible token all payments settle in.
	Mint string
	// PlatformAccount is the platform's payout token account.
	PlatformAccount string
	// VerifyDestinations requires each party's share to arrive at its payout
	// token account, not merely that the mint-wide total covers the price.
	VerifyDestinations bool
}

// Engine orchestrates settlement across the nonce ledger, the chain verifier
// and the purchase ledger.
type Engine struct {
	cfg     Config
	nonces  nonce.Ledger
	chain   chain.Client
	catalog content.Catalog
	store   ledger.Store
	events  *stream.Stream
	now     func() time.Time
}

// New creates an Engine. events may be nil when no live stream is attached.
func New(cfg Config, nonces nonce.Ledger, chainClient chain.Client, catalog content.Catalog, store ledger.Store, events *stream.Stream) *Engine {
	return &Engine{
		cfg:     cfg,
		nonces:  nonces,
		chain:   chainClient,
		catalog: catalog,
		store:   store,
		events:  events,
		now:     time.Now,
	}
}

// Receipt is the success result of a settlement.
type Receipt struct {
	PurchaseID     string       `json:"purchase_id,omitempty"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
	Amount         money.Amount `json:"amount"`
	TxRef          string       `json:"tx_ref"`
	// Renewed is false when a renewal matched no active auto-renew row; the
	// subscriber already lost entitlement and must resubscribe.
	Renewed bool `json:"renewed,omitempty"`
}

// UnlockRequest asks to settle a one-off purchase of gated content.
type UnlockRequest struct {
	Wallet    string
	ContentID string
	Nonce     string
	TxRef     string
}

// TipRequest asks to settle a tip on a piece of content. Tips do not affect
// access; they are recorded as immutable purchase facts of kind tip.
type TipRequest struct {
	Wallet    string
	ContentID string
	Nonce     string
	TxRef     string
	Amount    money.Amount
}

// SubscribeRequest asks to settle a subscription to a creator tier.
type SubscribeRequest struct {
	Wallet    string
	TierID    string
	Nonce     string
	TxRef     string
	AutoRenew bool
}

// RenewRequest asks to settle one more period of an existing subscription.
type RenewRequest struct {
	Wallet         string
	SubscriptionID string
	Nonce          string
	TxRef          string
}

// recipientShare pairs an expected payout token account with its share.
type recipientShare struct {
	account string
	share   money.Amount
}

// Unlock settles a content purchase and records the access grant.
func (e *Engine) Unlock(ctx context.Context, req UnlockRequest) (Receipt, error) {
	if req.Wallet == "" {
		return e.reject("unlock", ErrUnauthorized)
	}
	if req.ContentID == "" || req.Nonce == "" || req.TxRef == "" {
		return e.reject("unlock", fmt.Errorf("%w: content_id, nonce and tx_ref are required", ErrInvalidRequest))
	}
	item, err := e.catalog.GetContent(ctx, req.ContentID)
	if err != nil {
		return e.reject("unlock", err)
	}
	if item.Price.IsZero() {
		return e.reject("unlock", fmt.Errorf("%w: content is free", ErrInvalidRequest))
	}

	rec, err := e.settle(ctx, "unlock", req.Nonce, req.ContentID, req.Wallet, func(ctx context.Context) (Receipt, error) {
		if err := e.verifyPayment(ctx, req.TxRef, item.Price, e.recipients(item, item.Price)); err != nil {
			return Receipt{}, err
		}
		p, err := e.store.RecordPurchase(ctx, ledger.Purchase{
			Kind:      ledger.KindUnlock,
			Buyer:     req.Wallet,
			ContentID: req.ContentID,
			TxRef:     req.TxRef,
			Amount:    item.Price,
			Nonce:     req.Nonce,
		})
		if err != nil {
			return Receipt{}, e.mapLedgerError(err)
		}
		return Receipt{PurchaseID: p.ID, Amount: p.Amount, TxRef: req.TxRef}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	e.publish(ctx, "unlock", req.ContentID, item.OwnerWallet, rec.Amount, map[string]string{
		"purchase_id": rec.PurchaseID, "content_id": req.ContentID, "tx_ref": req.TxRef,
	})
	return rec, nil
}

// Tip settles a tip. The claimed amount comes from the request; the chain
// transaction must cover its split.
func (e *Engine) Tip(ctx context.Context, req TipRequest) (Receipt, error) {
	if req.Wallet == "" {
		return e.reject("tip", ErrUnauthorized)
	}
	if req.ContentID == "" || req.Nonce == "" || req.TxRef == "" || !req.Amount.IsPositive() {
		return e.reject("tip", fmt.Errorf("%w: content_id, nonce, tx_ref and a positive amount are required", ErrInvalidRequest))
	}
	item, err := e.catalog.GetContent(ctx, req.ContentID)
	if err != nil {
		return e.reject("tip", err)
	}

	rec, err := e.settle(ctx, "tip", req.Nonce, req.ContentID, req.Wallet, func(ctx context.Context) (Receipt, error) {
		if err := e.verifyPayment(ctx, req.TxRef, req.Amount, e.recipients(item, req.Amount)); err != nil {
			return Receipt{}, err
		}
		p, err := e.store.RecordPurchase(ctx, ledger.Purchase{
			Kind:      ledger.KindTip,
			Buyer:     req.Wallet,
			ContentID: req.ContentID,
			TxRef:     req.TxRef,
			Amount:    req.Amount,
			Nonce:     req.Nonce,
		})
		if err != nil {
			return Receipt{}, e.mapLedgerError(err)
		}
		return Receipt{PurchaseID: p.ID, Amount: p.Amount, TxRef: req.TxRef}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	e.publish(ctx, "tip", req.ContentID, item.OwnerWallet, rec.Amount, map[string]string{
		"purchase_id": rec.PurchaseID, "content_id": req.ContentID, "tx_ref": req.TxRef,
	})
	return rec, nil
}

// Subscribe settles a new subscription, superseding any active one for the
// same (subscriber, creator) pair.
func (e *Engine) Subscribe(ctx context.Context, req SubscribeRequest) (Receipt, error) {
	if req.Wallet == "" {
		return e.reject("subscribe", ErrUnauthorized)
	}
	if req.TierID == "" || req.Nonce == "" || req.TxRef == "" {
		return e.reject("subscribe", fmt.Errorf("%w: tier_id, nonce and tx_ref are required", ErrInvalidRequest))
	}
	tier, err := e.store.GetTier(ctx, req.TierID)
	if err != nil {
		return e.reject("subscribe", e.mapLedgerError(err))
	}
	if !tier.Active {
		return e.reject("subscribe", fmt.Errorf("%w: tier is no longer offered", ErrInvalidRequest))
	}
	if tier.Creator == req.Wallet {
		return e.reject("subscribe", fmt.Errorf("%w: cannot subscribe to yourself", ErrInvalidRequest))
	}

	rec, err := e.settle(ctx, "subscribe", req.Nonce, req.TierID, req.Wallet, func(ctx context.Context) (Receipt, error) {
		// tier payments are verified mint-wide; tiers carry no payout account
		if err := e.verifyPayment(ctx, req.TxRef, tier.Price, nil); err != nil {
			return Receipt{}, err
		}
		sub, err := e.store.RecordSubscription(ctx, req.Wallet, tier.Creator, tier.ID, tier.Price, req.AutoRenew)
		if err != nil {
			return Receipt{}, e.mapLedgerError(err)
		}
		return Receipt{SubscriptionID: sub.ID, Amount: tier.Price, TxRef: req.TxRef, Renewed: true}, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	e.publish(ctx, "subscribe", "", tier.Creator, rec.Amount, map[string]string{
		"subscription_id": rec.SubscriptionID, "tier_id": tier.ID, "tx_ref": req.TxRef,
	})
	return rec, nil
}

// Renew settles one more period of an active auto-renew subscription. A
// renewal that matches no such row is a no-op (Renewed=false), not an error.
func (e *Engine) Renew(ctx context.Context, req RenewRequest) (Receipt, error) {
	if req.Wallet == "" {
		return e.reject("renew", ErrUnauthorized)
	}
	if req.SubscriptionID == "" || req.Nonce == "" || req.TxRef == "" {
		return e.reject("renew", fmt.Errorf("%w: subscription_id, nonce and tx_ref are required", ErrInvalidRequest))
	}
	sub, err := e.store.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return e.reject("renew", e.mapLedgerError(err))
	}
	if sub.Subscriber != req.Wallet {
		return e.reject("renew", ErrUnauthorized)
	}
	tier, err := e.store.GetTier(ctx, sub.TierID)
	if err != nil {
		return e.reject("renew", e.mapLedgerError(err))
	}

	rec, err := e.settle(ctx, "renew", req.Nonce, req.SubscriptionID, req.Wallet, func(ctx context.Context) (Receipt, error) {
		if err := e.verifyPayment(ctx, req.TxRef, tier.Price, nil); err != nil {
			return Receipt{}, err
		}
		renewed, ok, err := e.store.Renew(ctx, req.SubscriptionID, tier.Price)
		if err != nil {
			return Receipt{}, e.mapLedgerError(err)
		}
		if !ok {
			// entitlement already lost; surface the no-op and release the nonce
			return Receipt{SubscriptionID: req.SubscriptionID, TxRef: req.TxRef, Renewed: false},
				errRenewNoOp
		}
		return Receipt{SubscriptionID: renewed.ID, Amount: tier.Price, TxRef: req.TxRef, Renewed: true}, nil
	})
	if errors.Is(err, errRenewNoOp) {
		return Receipt{SubscriptionID: req.SubscriptionID, TxRef: req.TxRef, Renewed: false}, nil
	}
	if err != nil {
		return Receipt{}, err
	}
	e.publish(ctx, "renew", "", sub.Creator, rec.Amount, map[string]string{
		"subscription_id": rec.SubscriptionID, "tx_ref": req.TxRef,
	})
	return rec, nil
}

// errRenewNoOp routes the no-op renewal through the compensating release
// without reporting a failure to the caller.
var errRenewNoOp = errors.New("settle: renewal matched no active auto-renew subscription")

// settle runs fn inside the consume/release envelope shared by every flow.
func (e *Engine) settle(ctx context.Context, flow, token, bindID, wallet string, fn func(context.Context) (Receipt, error)) (Receipt, error) {
	if err := e.nonces.Consume(ctx, token, bindID, wallet); err != nil {
		return e.reject(flow, fmt.Errorf("%w: %v", ErrInvalidNonce, err))
	}

	rec, err := fn(ctx)
	if err == nil {
		obs.ObserveSettlement(flow, "ok", int64(rec.Amount))
		return rec, nil
	}

	if relErr := e.nonces.Release(ctx, token); relErr != nil {
		// Consumed nonce with no grant and no way back: the loud category.
		obs.Logger().Error("settlement inconsistency: nonce consumed, no grant recorded, release failed",
			zap.String("flow", flow),
			zap.String("nonce", token),
			zap.String("wallet", wallet),
			zap.NamedError("settle_error", err),
			zap.NamedError("release_error", relErr),
		)
		_ = audit.LogEvent(ctx, "settlement.inconsistency", map[string]string{
			"flow": flow, "nonce": token,
		})
		obs.ObserveSettlement(flow, "inconsistent", 0)
		return Receipt{}, fmt.Errorf("%w: %v", ErrInconsistent, err)
	}

	obs.ObserveSettlement(flow, outcomeLabel(err), 0)
	return rec, err
}

// verifyPayment fetches the transaction and checks the observed transfers
// against the expected amount (and, when enabled, destinations).
func (e *Engine) verifyPayment(ctx context.Context, txRef string, expected money.Amount, shares []recipientShare) error {
	tx, err := e.chain.GetConfirmedTransaction(ctx, txRef)
	if err != nil {
		return err
	}
	observed := chain.ExtractTransferTotal(tx, e.cfg.Mint)
	if !chain.VerifyAmount(observed, uint64(expected)) {
		return fmt.Errorf("%w: observed %d base units, expected %d", ErrAmountMismatch, observed, expected)
	}
	if !e.cfg.VerifyDestinations || len(shares) == 0 {
		return nil
	}
	byDest := chain.ExtractTransfersByDestination(tx, e.cfg.Mint)
	for _, rs := range shares {
		if rs.account == "" || rs.share == 0 {
			continue
		}
		if got := byDest[rs.account]; !chain.VerifyAmount(got, uint64(rs.share)) {
			return fmt.Errorf("%w: account %s received %d base units, expected %d", ErrAmountMismatch, rs.account, got, rs.share)
		}
	}
	return nil
}

// recipients computes the expected payout shares for a content payment,
// referral-aware.
func (e *Engine) recipients(item content.Content, total money.Amount) []recipientShare {
	if item.HasReferrer() {
		split := money.SplitReferral(total)
		return []recipientShare{
			{account: item.OwnerAccount, share: split.Creator},
			{account: e.cfg.PlatformAccount, share: split.Platform},
			{account: item.ReferrerAccount, share: split.Referrer},
		}
	}
	split := money.SplitStandard(total)
	return []recipientShare{
		{account: item.OwnerAccount, share: split.Creator},
		{account: e.cfg.PlatformAccount, share: split.Platform},
	}
}

func (e *Engine) reject(flow string, err error) (Receipt, error) {
	obs.ObserveSettlement(flow, outcomeLabel(err), 0)
	return Receipt{}, err
}

func (e *Engine) publish(ctx context.Context, flow, contentID, creator string, amount money.Amount, fields map[string]string) {
	_ = audit.LogEvent(ctx, "settlement."+flow, fields)
	if e.events == nil {
		return
	}
	e.events.Publish(stream.SettlementEvent{
		Flow:      flow,
		ContentID: contentID,
		Creator:   creator,
		Amount:    int64(amount),
		Timestamp: e.now().UTC(),
	})
}

func (e *Engine) mapLedgerError(err error) error {
	if errors.Is(err, ledger.ErrDuplicateNonce) {
		// the UNIQUE(nonce) backstop caught a concurrent duplicate
		return fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}
	return err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errRenewNoOp):
		return "renew_noop"
	case errors.Is(err, ErrInvalidNonce):
		return "invalid_nonce"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, chain.ErrTxNotFound):
		return "tx_not_found"
	case errors.Is(err, chain.ErrChainUnavailable):
		return "chain_unavailable"
	case errors.Is(err, content.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
