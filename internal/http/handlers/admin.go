package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"specledger/internal/ledger"
)

type adminGrantRequest struct {
	UserID   string         `json:"userId"`
	Amount   int            `json:"amount"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

func (a *App) AdminGrantCredits(w http.ResponseWriter, r *http.Request) {
	var req adminGrantRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "userId required")
		return
	}
	if req.Source == "" {
		req.Source = "admin"
	}
	ent, err := a.Ledger.AdminGrantCredits(r.Context(), ledger.AdminGrant{
		UserID:   req.UserID,
		Amount:   req.Amount,
		Source:   req.Source,
		Metadata: req.Metadata,
	})
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"userId": req.UserID, "entitlements": toEntitlementDTO(ent)})
}

type revokeProRequest struct {
	Reason string `json:"reason"`
}

func (a *App) AdminRevokePro(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req revokeProRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	ent, err := a.Ledger.RevokePro(r.Context(), userID, req.Reason)
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"userId": userID, "entitlements": toEntitlementDTO(ent)})
}

type findingDTO struct {
	EventID     string    `json:"eventId"`
	EventName   string    `json:"eventName"`
	ResourceID  string    `json:"resourceId"`
	ProcessedAt time.Time `json:"processedAt"`
	Expected    string    `json:"expected"`
	ErrorLogged bool      `json:"errorLogged"`
}

// AdminReconciliation lists processed events without their side effect.
// Query: since (RFC 3339, default 7 days ago), limit (default 500).
func (a *App) AdminReconciliation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since := time.Now().Add(-7 * 24 * time.Hour)
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "since must be RFC 3339")
			return
		}
		since = t
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	findings, err := a.Ledger.Reconcile(r.Context(), since, limit)
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	items := make([]findingDTO, 0, len(findings))
	for _, f := range findings {
		items = append(items, findingDTO(f))
	}
	a.json(w, http.StatusOK, map[string]any{"since": since.UTC(), "findings": items})
}
