package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"fanlock.app/internal/ledger"
	"fanlock.app/internal/money"
)

type createTierRequest struct {
	Name     string   `json:"name"`
	Price    int64    `json:"price"` // base units per period
	Benefits []string `json:"benefits,omitempty"`
}

type listTiersResponse struct {
	Items []ledger.SubscriptionTier `json:"items"`
}

func (a *API) handleTiersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTier(w, r)
	case http.MethodGet:
		a.listTiers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTierResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/tiers/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, found := strings.CutSuffix(path, "/deactivate"); found {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.deactivateTier(w, r, id)
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
	a.getTier(w, r, path)
}

func (a *API) createTier(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}
	var req createTierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if req.Price <= 0 {
		writeError(w, r, http.StatusBadRequest, "price must be > 0")
		return
	}

	tier, err := a.store.CreateTier(r.Context(), ledger.SubscriptionTier{
		Creator:  wallet,
		Name:     name,
		Price:    money.Amount(req.Price),
		Benefits: req.Benefits,
	})
	if err != nil {
		handleSettleError(w, r, err)
		return
	}

	a.audit(r.Context(), "tier.created", map[string]string{
		"tier_id": tier.ID,
		"price":   strconv.FormatInt(req.Price, 10),
	})
	w.Header().Set("Location", "/v1/tiers/"+tier.ID)
	writeJSON(w, http.StatusCreated, tier)
}

func (a *API) listTiers(w http.ResponseWriter, r *http.Request) {
	creator := strings.TrimSpace(r.URL.Query().Get("creator"))
	if creator == "" {
		writeError(w, r, http.StatusBadRequest, "creator query parameter is required")
		return
	}
	items, err := a.store.ListTiers(r.Context(), creator)
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	if items == nil {
		items = []ledger.SubscriptionTier{}
	}
	writeJSON(w, http.StatusOK, listTiersResponse{Items: items})
}

func (a *API) getTier(w http.ResponseWriter, r *http.Request, id string) {
	tier, err := a.store.GetTier(r.Context(), id)
	if err != nil {
		handleSettleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tier)
}

func (a *API) deactivateTier(w http.ResponseWriter, r *http.Request, id string) {
	wallet, ok := walletFrom(w, r)
	if !ok {
		return
	}
	if err := a.store.DeactivateTier(r.Context(), id, wallet); err != nil {
		handleSettleError(w, r, err)
		return
	}
	a.audit(r.Context(), "tier.deactivated", map[string]string{
		"tier_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}
