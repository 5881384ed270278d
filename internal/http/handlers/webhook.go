package handlers

import (
	"errors"
	"io"
	"net/http"

	"specledger/internal/domain"
	"specledger/internal/metrics"
	"specledger/internal/webhook"
)

type webhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
	EventID  string `json:"eventId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PaymentWebhook verifies the signature over the raw body before anything is
// decoded. Duplicates and ignored events are acknowledged with 200 so the
// provider stops retrying them.
func (a *App) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	limit := a.WebhookBodyLimit
	if limit <= 0 {
		limit = defaultWebhookBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.json(w, http.StatusRequestEntityTooLarge, webhookResponse{Error: "payload too large"})
			return
		}
		a.json(w, http.StatusBadRequest, webhookResponse{Error: "failed to read request body"})
		return
	}

	if !a.Verifier.Verify(body, r.Header.Get(webhook.SignatureHeader)) {
		metrics.SignatureFailuresTotal.Inc()
		a.log(r).Warn().Int("bytes", len(body)).Msg("webhook signature rejected")
		a.json(w, http.StatusUnauthorized, webhookResponse{Error: "invalid signature"})
		return
	}

	res, err := a.Dispatcher.Process(r.Context(), body)
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		a.log(r).Warn().Err(err).Msg("webhook payload rejected")
		a.json(w, http.StatusBadRequest, webhookResponse{Error: "invalid payload"})
	case err != nil:
		a.log(r).Error().Err(err).Str("event_id", res.EventID).Msg("webhook processing failed")
		a.json(w, http.StatusInternalServerError, webhookResponse{EventID: res.EventID, Error: "processing failed"})
	default:
		a.json(w, http.StatusOK, webhookResponse{Received: true, Status: string(res.Outcome), EventID: res.EventID})
	}
}
