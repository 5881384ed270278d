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

func (t *sqlTx) InsertPending(ctx context.Context, p *domain.PendingEntitlement) error {
	grants, err := json.Marshal(p.Grants)
	if err != nil {
		return fmt.Errorf("encode grants: %w", err)
	}
	_, err = t.exec.Exec(ctx, sqlinline.QInsertPending,
		p.ID,
		domain.NormalizeEmail(p.Email),
		p.CustomerID,
		p.EventID,
		p.RawPayload,
		string(grants),
		string(p.Reason),
		p.OrderID,
		p.ProductID,
		p.VariantID,
		p.AmountCents,
		p.Currency,
		p.SubscriptionID,
		nullableMillis(p.PeriodEnd),
		toMillis(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert pending entitlement: %w", err)
	}
	return nil
}

func (t *sqlTx) ListUnclaimedPending(ctx context.Context, email string) ([]domain.PendingEntitlement, error) {
	return t.listPending(ctx, sqlinline.QListUnclaimedPending, domain.NormalizeEmail(email))
}

func (t *sqlTx) ListUnclaimedPendingBySubscription(ctx context.Context, subscriptionID string) ([]domain.PendingEntitlement, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return t.listPending(ctx, sqlinline.QListUnclaimedPendingBySubscription, subscriptionID)
}

func (t *sqlTx) listPending(ctx context.Context, query, key string) ([]domain.PendingEntitlement, error) {
	rows, err := t.exec.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("list pending entitlements: %w", err)
	}
	defer rows.Close()

	var out []domain.PendingEntitlement
	for rows.Next() {
		var (
			p         domain.PendingEntitlement
			grants    []byte
			reason    string
			periodEnd sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(
			&p.ID, &p.Email, &p.CustomerID, &p.EventID, &p.RawPayload, &grants, &reason,
			&p.OrderID, &p.ProductID, &p.VariantID, &p.AmountCents, &p.Currency,
			&p.SubscriptionID, &periodEnd, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending entitlement: %w", err)
		}
		if err := json.Unmarshal(grants, &p.Grants); err != nil {
			return nil, fmt.Errorf("decode grants for pending %s: %w", p.ID, err)
		}
		p.Reason = domain.PendingReason(reason)
		p.PeriodEnd = fromNullMillis(periodEnd)
		p.CreatedAt = fromMillis(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *sqlTx) ClaimPending(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	n, err := t.exec.Exec(ctx, sqlinline.QClaimPending, id, userID, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("claim pending entitlement: %w", err)
	}
	return n == 1, nil
}

func (t *sqlTx) VoidPending(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := t.exec.Exec(ctx, sqlinline.QVoidPending, id, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("void pending entitlement: %w", err)
	}
	return n == 1, nil
}
