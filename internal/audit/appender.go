// Package audit appends decision records to the ledger's audit log.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"

	"specledger/internal/domain"
)

// Appender stamps entries with a time-ordered snowflake id and writes them.
// Entries are never updated or deleted.
type Appender struct {
	node   *snowflake.Node
	logger zerolog.Logger
	now    func() time.Time
}

func NewAppender(node *snowflake.Node, logger zerolog.Logger) *Appender {
	return &Appender{
		node:   node,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Append writes entry inside an existing transaction, so the record commits
// or rolls back together with the decision it describes.
func (a *Appender) Append(ctx context.Context, tx domain.Tx, entry domain.AuditLogEntry) error {
	if entry.Action == "" {
		return fmt.Errorf("audit entry without action")
	}
	entry.ID = a.node.Generate().Int64()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}
	if err := tx.AppendAudit(ctx, &entry); err != nil {
		return err
	}
	a.logger.Debug().
		Int64("audit_id", entry.ID).
		Str("action", entry.Action).
		Str("source", string(entry.Source)).
		Str("event_id", entry.EventID).
		Str("user_id", entry.UserID).
		Msg("audit appended")
	return nil
}

// Record writes entry in its own transaction. It is used for decisions that
// have no surrounding ledger transaction, such as duplicates and failures.
func (a *Appender) Record(ctx context.Context, store domain.Store, entry domain.AuditLogEntry) error {
	return store.RunInTx(ctx, func(tx domain.Tx) error {
		return a.Append(ctx, tx, entry)
	})
}
