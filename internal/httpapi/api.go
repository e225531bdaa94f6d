// Package httpapi is the HTTP surface of the settlement engine: nonce
// issuance, the four settlement flows, access checks, tier management and a
// live SSE feed of settled events.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"fanlock.app/internal/access"
	"fanlock.app/internal/audit"
	"fanlock.app/internal/chain"
	"fanlock.app/internal/content"
	"fanlock.app/internal/ledger"
	"fanlock.app/internal/limiter"
	"fanlock.app/internal/nonce"
	"fanlock.app/internal/obs"
	"fanlock.app/internal/settle"
	"fanlock.app/internal/stream"
)

// ReadyProbe pings the database for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	engine   *settle.Engine
	resolver *access.Resolver
	nonces   nonce.Ledger
	catalog  content.Catalog
	store    ledger.Store
	events   *stream.Stream
	limiter  limiter.Limiter
	nonceTTL time.Duration

	rateBurst  int
	ratePerSec int
}

// Deps bundles the wiring the API serves.
type Deps struct {
	Engine   *settle.Engine
	Resolver *access.Resolver
	Nonces   nonce.Ledger
	Catalog  content.Catalog
	Store    ledger.Store
	Events   *stream.Stream
	Limiter  limiter.Limiter
	NonceTTL time.Duration
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		engine:     deps.Engine,
		resolver:   deps.Resolver,
		nonces:     deps.Nonces,
		catalog:    deps.Catalog,
		store:      deps.Store,
		events:     deps.Events,
		limiter:    deps.Limiter,
		nonceTTL:   deps.NonceTTL,
		rateBurst:  20,
		ratePerSec: 10,
	}
	if a.nonceTTL <= 0 {
		a.nonceTTL = nonce.DefaultTTL
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/unlocks/nonce", a.handleNonce)
	a.mux.HandleFunc("/v1/unlocks", a.handleUnlocks)
	a.mux.HandleFunc("/v1/tips", a.handleTips)
	a.mux.HandleFunc("/v1/subscriptions", a.handleSubscriptionsCollection)
	a.mux.HandleFunc("/v1/subscriptions/", a.handleSubscriptionResource)
	a.mux.HandleFunc("/v1/tiers", a.handleTiersCollection)
	a.mux.HandleFunc("/v1/tiers/", a.handleTierResource)
	a.mux.HandleFunc("/v1/access", a.handleAccess)
	a.mux.HandleFunc("/v1/contents/", a.handleEngagement)
	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the server handler with the full middleware chain applied.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = RequestID(h)
	h = Logging(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fanlock-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "fanlock-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) audit(ctx context.Context, event string, fields map[string]string) {
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleSettleError maps the settlement error taxonomy onto HTTP statuses.
func handleSettleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, settle.ErrInvalidRequest), errors.Is(err, settle.ErrInvalidNonce):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, settle.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, settle.ErrAmountMismatch):
		writeError(w, r, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, content.ErrNotFound), errors.Is(err, ledger.ErrNotFound), errors.Is(err, chain.ErrTxNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, chain.ErrChainUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
