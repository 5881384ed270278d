package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"specledger/internal/domain"
)

// Finding is a processed event whose expected effect cannot be found.
type Finding struct {
	EventID     string
	EventName   string
	ResourceID  string
	ProcessedAt time.Time
	// Expected names what is missing: "purchase", "refunded_purchase", or
	// the decision for a "subscription" or other ("audit") event.
	Expected string
	// ErrorLogged is set when the dispatcher recorded a failure for the event.
	ErrorLogged bool
}

// Reconcile lists events marked processed since the given time that never
// reached a decision. The idempotency marker is written before the work and
// the dispatcher's decision is audited in the same transaction as the effect,
// so an event whose audit trail holds only error or duplicate rows was lost.
// Order events whose purchase row is in the expected state also count as
// settled, since another delivery may have applied the same order.
func (s *Service) Reconcile(ctx context.Context, since time.Time, limit int) ([]Finding, error) {
	if limit <= 0 {
		limit = 500
	}
	var findings []Finding
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		findings = nil
		events, err := tx.ListProcessedEvents(ctx, since, limit)
		if err != nil {
			return err
		}
		for _, ev := range events {
			entries, err := tx.ListAuditByEvent(ctx, ev.EventID)
			if err != nil {
				return err
			}
			decided, errorLogged := false, false
			for _, e := range entries {
				switch e.Action {
				case domain.ActionError:
					errorLogged = true
				case domain.ActionDuplicate:
				default:
					decided = true
				}
			}
			if decided {
				continue
			}
			expected, ok, err := effectPresent(ctx, tx, ev)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			findings = append(findings, Finding{
				EventID:     ev.EventID,
				EventName:   ev.EventName,
				ResourceID:  ev.ResourceID,
				ProcessedAt: ev.ProcessedAt,
				Expected:    expected,
				ErrorLogged: errorLogged,
			})
		}
		return nil
	})
	return findings, err
}

// effectPresent checks the row an order event should have left behind. Other
// events have no row that proves this particular delivery was applied.
func effectPresent(ctx context.Context, tx domain.Tx, ev domain.ProcessedEvent) (string, bool, error) {
	switch {
	case ev.EventName == "order_created":
		p, err := tx.GetPurchaseByOrder(ctx, ev.ResourceID)
		return "purchase", p != nil, ignoreNotFound(err)
	case ev.EventName == "order_refunded":
		p, err := tx.GetPurchaseByOrder(ctx, ev.ResourceID)
		return "refunded_purchase", p != nil && p.Status == domain.PurchaseStatusRefunded, ignoreNotFound(err)
	case strings.HasPrefix(ev.EventName, "subscription_"):
		return "subscription", false, nil
	default:
		return "audit", false, nil
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
