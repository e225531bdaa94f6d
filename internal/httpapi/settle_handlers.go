package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fanlock.app/internal/ledger"
	"fanlock.app/internal/money"
	"fanlock.app/internal/settle"
)

type nonceRequest struct {
	ContentID      string `json:"content_id,omitempty"`
	TierID         string `json:"tier_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

type unlockRequest struct {
	ContentID string `json:"content_id"`
	Nonce     string `json:"nonce"`
	TxRef     string `json:"tx_ref"`
}

type tipRequest struct {
	ContentID string `json:"content_id"`
	Nonce     string `json:"nonce"`
	TxRef     string `json:"tx_ref"`
	Amount    int64  `json:"amount"`
}

type subscribeRequest struct {
	TierID    string `json:"tier_id"`
	Nonce     string `json:"nonce"`
	TxRef     string `json:"tx_ref"`
	AutoRenew bool   `json:"auto_renew"`
}

type renewRequest struct {
	Nonce string `json:"nonce"`
	TxRef string `json:"tx_ref"`
}

type accessResponse struct {
	ContentID string `json:"content_id"`
	Wallet    string `json:"wallet"`
	Unlocked  bool   `json:"unlocked"`
}

// handleNonce issues a single-use challenge token bound to the caller's
// wallet and the resource it intends to pay for.
func (a *API) handleNonce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}

	var req nonceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	bindID, err := a.resolveBinding(r, req, wallet)
	if err != nil {
		handleSettleError(w, r, err)
		return
	}

	if a.limiter != nil {
		allowed, retryAfter, err := a.limiter.Allow(r.Context(), wallet)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, r, http.StatusTooManyRequests, "nonce issuance limit reached")
			return
		}
	}

	n, err := a.nonces.Issue(r.Context(), bindID, wallet)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.audit(r.Context(), "nonce.issued", map[string]string{
		"resource": bindID,
	})
	writeJSON(w, http.StatusCreated, nonceResponse{
		Nonce:     n.Token,
		ExpiresAt: n.IssuedAt.Add(a.nonceTTL),
	})
}

// resolveBinding validates the requested resource and returns the id the
// nonce binds to. Exactly one of content, tier or subscription must be named.
func (a *API) resolveBinding(r *http.Request, req nonceRequest, wallet string) (string, error) {
	set := 0
	for _, v := range []string{req.ContentID, req.TierID, req.SubscriptionID} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return "", fmt.Errorf("%w: exactly one of content_id, tier_id or subscription_id is required", settle.ErrInvalidRequest)
	}

	switch {
	case req.ContentID != "":
		if _, err := a.catalog.GetContent(r.Context(), req.ContentID); err != nil {
			return "", err
		}
		return req.ContentID, nil
	case req.TierID != "":
		tier, err := a.store.GetTier(r.Context(), req.TierID)
		if err != nil {
			return "", err
		}
		if !tier.Active {
			return "", fmt.Errorf("%w: tier is no longer offered", settle.ErrInvalidRequest)
		}
		return tier.ID, nil
	default:
		sub, err := a.store.GetSubscription(r.Context(), req.SubscriptionID)
		if err != nil {
			return "", err
		}
		if sub.Subscriber != wallet {
			return "", settle.ErrUnauthorized
		}
		return sub.ID, nil
	}
}

func (a *API) handleUnlocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}
	var req unlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.engine.Unlock(r.Context(), settle.UnlockRequest{
		Wallet:    wallet,
		ContentID: strings.TrimSpace(req.ContentID),
		Nonce:     strings.TrimSpace(req.Nonce),
		TxRef:     strings.TrimSpace(req.TxRef),
	})
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleTips(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}
	var req tipRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.engine.Tip(r.Context(), settle.TipRequest{
		Wallet:    wallet,
		ContentID: strings.TrimSpace(req.ContentID),
		Nonce:     strings.TrimSpace(req.Nonce),
		TxRef:     strings.TrimSpace(req.TxRef),
		Amount:    money.Amount(req.Amount),
	})
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleSubscriptionsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.engine.Subscribe(r.Context(), settle.SubscribeRequest{
		Wallet:    wallet,
		TierID:    strings.TrimSpace(req.TierID),
		Nonce:     strings.TrimSpace(req.Nonce),
		TxRef:     strings.TrimSpace(req.TxRef),
		AutoRenew: req.AutoRenew,
	})
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleSubscriptionResource dispatches /v1/subscriptions/{id}[/renew|/cancel].
func (a *API) handleSubscriptionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}

	if id, found := strings.CutSuffix(path, "/renew"); found {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.renewSubscription(w, r, wallet, id)
		return
	}
	if id, found := strings.CutSuffix(path, "/cancel"); found {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.cancelSubscription(w, r, wallet, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getSubscription(w, r, wallet, path)
}

func (a *API) renewSubscription(w http.ResponseWriter, r *http.Request, wallet, id string) {
	var req renewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.engine.Renew(r.Context(), settle.RenewRequest{
		Wallet:         wallet,
		SubscriptionID: id,
		Nonce:          strings.TrimSpace(req.Nonce),
		TxRef:          strings.TrimSpace(req.TxRef),
	})
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) cancelSubscription(w http.ResponseWriter, r *http.Request, wallet, id string) {
	if err := a.store.CancelSubscription(r.Context(), id, wallet); err != nil {
		handleSettleError(w, r, err)
		return
	}
	a.audit(r.Context(), "subscription.cancelled", map[string]string{
		"subscription_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getSubscription(w http.ResponseWriter, r *http.Request, wallet, id string) {
	sub, err := a.store.GetSubscription(r.Context(), id)
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	if sub.Subscriber != wallet {
		writeError(w, r, http.StatusNotFound, ledger.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) handleAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}
	contentID := strings.TrimSpace(r.URL.Query().Get("content_id"))
	if contentID == "" {
		writeError(w, r, http.StatusBadRequest, "content_id query parameter is required")
		return
	}
	unlocked, err := a.resolver.IsUnlocked(r.Context(), wallet, contentID)
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accessResponse{
		ContentID: contentID,
		Wallet:    wallet,
		Unlocked:  unlocked,
	})
}
