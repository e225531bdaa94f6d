package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"fanlock.app/internal/engage"
)

type engagementResponse struct {
	ContentID string          `json:"content_id"`
	Counters  engage.Counters `json:"counters"`
	Score     float64         `json:"score"`
	AsOf      time.Time       `json:"as_of"`
}

// handleEngagement scores a piece of content for discovery ranking. Unlock
// and tip counts come from the settlement ledger; like and comment counts
// live in the social service and arrive as query parameters.
func (a *API) handleEngagement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/contents/")
	contentID, found := strings.CutSuffix(path, "/engagement")
	if !found || contentID == "" || strings.Contains(contentID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	item, err := a.catalog.GetContent(r.Context(), contentID)
	if err != nil {
		handleSettleError(w, r, err)
		return
	}

	likes, err := parseCount(r.URL.Query().Get("likes"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "likes must be a non-negative integer")
		return
	}
	comments, err := parseCount(r.URL.Query().Get("comments"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "comments must be a non-negative integer")
		return
	}

	now := time.Now().UTC()
	age := time.Duration(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("published_at")); raw != "" {
		publishedAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "published_at must be RFC 3339")
			return
		}
		age = now.Sub(publishedAt)
	}

	unlocks, tips, err := a.store.PurchaseCounts(r.Context(), item.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	counters := engage.Counters{
		Likes:     likes,
		Comments:  comments,
		Tips:      tips,
		Purchases: unlocks,
	}
	writeJSON(w, http.StatusOK, engagementResponse{
		ContentID: item.ID,
		Counters:  counters,
		Score:     engage.Score(counters, age),
		AsOf:      now,
	})
}

func parseCount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
