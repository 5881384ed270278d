package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"specledger/internal/domain"
	"specledger/internal/sqlinline"
)

func (t *sqlTx) InsertProcessedEvent(ctx context.Context, e *domain.ProcessedEvent) (bool, error) {
	n, err := t.exec.Exec(ctx, sqlinline.QInsertProcessedEvent, e.EventID, e.EventName, e.ResourceID, toMillis(e.ProcessedAt))
	if err != nil {
		return false, fmt.Errorf("insert processed event: %w", err)
	}
	return n == 1, nil
}

func (t *sqlTx) ProcessedEventExists(ctx context.Context, eventID string) (bool, error) {
	var n int64
	if err := t.exec.QueryRow(ctx, sqlinline.QProcessedEventExists, eventID).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup processed event: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) ListProcessedEvents(ctx context.Context, since time.Time, limit int) ([]domain.ProcessedEvent, error) {
	rows, err := t.exec.Query(ctx, sqlinline.QListProcessedEvents, toMillis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list processed events: %w", err)
	}
	defer rows.Close()

	var out []domain.ProcessedEvent
	for rows.Next() {
		var (
			e  domain.ProcessedEvent
			at int64
		)
		if err := rows.Scan(&e.EventID, &e.EventName, &e.ResourceID, &at); err != nil {
			return nil, fmt.Errorf("scan processed event: %w", err)
		}
		e.ProcessedAt = fromMillis(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqlTx) AppendAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	payload := entry.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	if _, err := t.exec.Exec(ctx, sqlinline.QInsertAudit,
		entry.ID,
		entry.UserID,
		string(entry.Source),
		entry.Action,
		entry.EventID,
		string(raw),
		toMillis(entry.CreatedAt),
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (t *sqlTx) ListAuditByEvent(ctx context.Context, eventID string) ([]domain.AuditLogEntry, error) {
	rows, err := t.exec.Query(ctx, sqlinline.QListAuditByEvent, eventID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var (
			e         domain.AuditLogEntry
			userID    sql.NullString
			source    string
			evID      sql.NullString
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &userID, &source, &e.Action, &evID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload %d: %w", e.ID, err)
			}
		}
		e.UserID = userID.String
		e.Source = domain.AuditSource(source)
		e.EventID = evID.String
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
