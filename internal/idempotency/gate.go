// Package idempotency guards against applying a provider event twice.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"specledger/internal/domain"
)

// Gate is backed by the processed-event set in the store.
//
// MarkProcessed must run before any side effect. A crash between marking and
// finishing the work loses the event instead of applying it twice; the audit
// log and the reconciliation report cover that gap.
type Gate struct {
	store domain.Store
	now   func() time.Time
}

func NewGate(store domain.Store) *Gate {
	return &Gate{store: store, now: time.Now}
}

// IsProcessed reports whether eventID has already been marked.
func (g *Gate) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := g.store.RunInTx(ctx, func(tx domain.Tx) error {
		var err error
		seen, err = tx.ProcessedEventExists(ctx, eventID)
		return err
	})
	return seen, err
}

// MarkProcessed records the event and reports whether this call was the
// first to do so. Check and mark happen in one insert-if-absent, so of any
// number of concurrent deliveries exactly one sees first=true.
func (g *Gate) MarkProcessed(ctx context.Context, eventID, eventName, resourceID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	var first bool
	err := g.store.RunInTx(ctx, func(tx domain.Tx) error {
		var err error
		first, err = tx.InsertProcessedEvent(ctx, &domain.ProcessedEvent{
			EventID:     eventID,
			EventName:   eventName,
			ResourceID:  resourceID,
			ProcessedAt: g.now().UTC(),
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return first, nil
}
