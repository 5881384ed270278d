package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"specledger/internal/domain"
)

func TestReconcileReportsMissingEffects(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	register(t, svc, "u1", "u1@example.com")
	grantOrder(t, svc, store, "u1", "ord-ok", 2)

	since := time.Now().Add(-time.Minute)
	now := time.Now().UTC()
	inTx(t, store, func(tx domain.Tx) error {
		events := []domain.ProcessedEvent{
			{EventID: "evt-ok", EventName: "order_created", ResourceID: "ord-ok"},
			{EventID: "evt-lost", EventName: "order_created", ResourceID: "ord-lost"},
			{EventID: "evt-unknown", EventName: "order_created", ResourceID: "ord-unknown"},
			{EventID: "evt-failed", EventName: "subscription_created", ResourceID: "sub-x"},
			{EventID: "evt-refund", EventName: "order_refunded", ResourceID: "ord-ok"},
			{EventID: "evt-other", EventName: "license_key_created", ResourceID: "lk-1"},
		}
		for i := range events {
			events[i].ProcessedAt = now
			if _, err := tx.InsertProcessedEvent(ctx, &events[i]); err != nil {
				return err
			}
		}
		for i, e := range []domain.AuditLogEntry{
			{Action: domain.ActionUnknownProduct, EventID: "evt-unknown"},
			{Action: domain.ActionError, EventID: "evt-failed"},
			{Action: domain.ActionUnhandledEvent, EventID: "evt-other"},
		} {
			e.ID = int64(i + 1)
			e.Source = domain.AuditSourceWebhook
			e.CreatedAt = now
			if err := tx.AppendAudit(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	})

	findings, err := svc.Reconcile(ctx, since, 0)
	require.NoError(t, err)

	byID := make(map[string]string)
	for _, f := range findings {
		byID[f.EventID] = f.Expected
		if f.EventID == "evt-failed" {
			assert.True(t, f.ErrorLogged)
		}
	}
	assert.Equal(t, map[string]string{
		"evt-lost":   "purchase",
		"evt-failed": "subscription",
		"evt-refund": "refunded_purchase",
	}, byID)

	later, err := svc.Reconcile(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, later)
}
