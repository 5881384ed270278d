// Package reconciler periodically reports processed webhook events whose
// ledger effect is missing.
package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"specledger/internal/ledger"
	"specledger/internal/metrics"
)

// Source produces reconciliation findings. *ledger.Service implements it.
type Source interface {
	Reconcile(ctx context.Context, since time.Time, limit int) ([]ledger.Finding, error)
}

type Worker struct {
	source   Source
	interval time.Duration
	window   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func New(source Source, interval, window time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		source:   source,
		interval: interval,
		window:   window,
		logger:   logger.With().Str("component", "reconciler").Logger(),
		now:      time.Now,
	}
}

// Run scans once per interval until ctx is done. A failed scan is logged and
// retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.logger.Info().Msg("reconciler disabled")
		return nil
	}
	w.logger.Info().Dur("interval", w.interval).Dur("window", w.window).Msg("reconciler started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("reconciler stopped")
			return nil
		case <-ticker.C:
			if _, err := w.Scan(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("reconciliation scan failed")
			}
		}
	}
}

// Scan runs one reconciliation pass over the configured window.
func (w *Worker) Scan(ctx context.Context) ([]ledger.Finding, error) {
	findings, err := w.source.Reconcile(ctx, w.now().Add(-w.window), 0)
	if err != nil {
		return nil, err
	}
	metrics.ReconciliationFindings.Set(float64(len(findings)))
	for _, f := range findings {
		w.logger.Warn().
			Str("event_id", f.EventID).
			Str("event_name", f.EventName).
			Str("resource_id", f.ResourceID).
			Str("expected", f.Expected).
			Bool("error_logged", f.ErrorLogged).
			Time("processed_at", f.ProcessedAt).
			Msg("processed event missing its effect")
	}
	return findings, nil
}
