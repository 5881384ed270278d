// Package metrics exposes the ledger's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebhookEventsTotal counts webhook deliveries by event name and outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specledger",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Payment webhook deliveries by event name and outcome.",
	}, []string{"event_name", "outcome"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "specledger",
		Subsystem: "webhook",
		Name:      "duration_seconds",
		Help:      "Payment webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_name"})

	// SignatureFailuresTotal counts rejected webhook signatures.
	SignatureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "specledger",
		Subsystem: "webhook",
		Name:      "signature_failures_total",
		Help:      "Webhook requests rejected by signature verification.",
	})

	// LedgerMutationsTotal counts committed ledger mutations by operation.
	LedgerMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specledger",
		Subsystem: "ledger",
		Name:      "mutations_total",
		Help:      "Committed ledger mutations by operation.",
	}, []string{"operation"})

	// CreditConsumptionsTotal counts consumption gate decisions by pool.
	CreditConsumptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specledger",
		Subsystem: "gate",
		Name:      "consumptions_total",
		Help:      "Credit consumption decisions by charged pool; denied requests use pool=\"denied\".",
	}, []string{"pool"})

	// CreditRefundsTotal counts gate refunds by pool.
	CreditRefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "specledger",
		Subsystem: "gate",
		Name:      "refunds_total",
		Help:      "Credit refunds by pool.",
	}, []string{"pool"})

	// PendingClaimsTotal counts pending entitlements claimed at signup.
	PendingClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "specledger",
		Subsystem: "pending",
		Name:      "claims_total",
		Help:      "Pending entitlements claimed by newly registered users.",
	})

	// ReconciliationFindings is the size of the latest reconciliation scan.
	ReconciliationFindings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "specledger",
		Subsystem: "reconcile",
		Name:      "findings",
		Help:      "Processed events missing their effect in the last scan.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
