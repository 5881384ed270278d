package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"specledger/internal/catalog"
	"specledger/internal/domain"
	"specledger/internal/ledger"
	"specledger/internal/middleware"
	"specledger/internal/webhook"
)

const defaultWebhookBodyLimit = 1 << 20

type App struct {
	Ledger     *ledger.Service
	Dispatcher *webhook.Dispatcher
	Verifier   *webhook.Verifier
	Catalog    *catalog.Catalog
	Logger     zerolog.Logger

	WebhookBodyLimit int64
}

func NewApp(svc *ledger.Service, dispatcher *webhook.Dispatcher, verifier *webhook.Verifier, cat *catalog.Catalog, logger zerolog.Logger) *App {
	return &App{
		Ledger:           svc,
		Dispatcher:       dispatcher,
		Verifier:         verifier,
		Catalog:          cat,
		Logger:           logger.With().Str("component", "http").Logger(),
		WebhookBodyLimit: defaultWebhookBodyLimit,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]string{"error": errCode, "message": msg})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// log returns the request-scoped logger set by middleware.Logger.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// ledgerError maps ledger errors to responses.
func (a *App) ledgerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownConsumption):
		a.error(w, http.StatusNotFound, "not_found", "consumption not found")
	case errors.Is(err, domain.ErrAlreadyRefunded):
		a.error(w, http.StatusConflict, "already_refunded", "consumption already refunded")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, domain.ErrInvalidAmount):
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be positive")
	case errors.Is(err, domain.ErrInvalidPool):
		a.error(w, http.StatusBadRequest, "bad_request", "credit type does not match the consumption")
	case errors.Is(err, domain.ErrInvalidPayload):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrClaimConflict):
		a.error(w, http.StatusConflict, "conflict", "pending entitlement claimed concurrently, retry")
	default:
		a.log(r).Error().Err(err).Str("path", r.URL.Path).Msg("ledger operation failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
