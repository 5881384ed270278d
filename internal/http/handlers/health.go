package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Ledger.Store().Ping(ctx); err != nil {
		a.log(r).Warn().Err(err).Msg("store ping failed")
		a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
