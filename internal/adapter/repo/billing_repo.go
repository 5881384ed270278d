package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"specledger/internal/domain"
	"specledger/internal/infra"
	"specledger/internal/sqlinline"
)

func (t *sqlTx) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	return scanSubscription(t.exec.QueryRow(ctx, sqlinline.QSelectSubscriptionByUser, userID))
}

func (t *sqlTx) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	if externalID == "" {
		return nil, domain.ErrNotFound
	}
	return scanSubscription(t.exec.QueryRow(ctx, sqlinline.QSelectSubscriptionByExternalID, externalID))
}

func (t *sqlTx) PutSubscription(ctx context.Context, s *domain.Subscription) error {
	if _, err := t.exec.Exec(ctx, sqlinline.QUpsertSubscription,
		s.UserID,
		s.ExternalSubscriptionID,
		s.VariantID,
		string(s.Status),
		nullableMillis(s.CurrentPeriodEnd),
		s.CancelAtPeriodEnd,
		toMillis(s.LastEventAt),
		toMillis(s.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (t *sqlTx) GetPurchaseByOrder(ctx context.Context, orderID string) (*domain.Purchase, error) {
	var (
		p                    domain.Purchase
		status               string
		createdAt, updatedAt int64
	)
	err := t.exec.QueryRow(ctx, sqlinline.QSelectPurchaseByOrder, orderID).Scan(
		&p.ID, &p.UserID, &p.ExternalOrderID, &p.ProductID, &p.VariantID,
		&p.CreditsGranted, &p.AmountCents, &p.Currency, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	p.Status = domain.PurchaseStatus(status)
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func (t *sqlTx) InsertPurchase(ctx context.Context, p *domain.Purchase) error {
	_, err := t.exec.Exec(ctx, sqlinline.QInsertPurchase,
		p.ID,
		p.UserID,
		p.ExternalOrderID,
		p.ProductID,
		p.VariantID,
		p.CreditsGranted,
		p.AmountCents,
		p.Currency,
		string(p.Status),
		toMillis(p.CreatedAt),
		toMillis(p.UpdatedAt),
	)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return fmt.Errorf("purchase for order %s: %w", p.ExternalOrderID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdatePurchaseStatus(ctx context.Context, id string, status domain.PurchaseStatus, at time.Time) error {
	n, err := t.exec.Exec(ctx, sqlinline.QUpdatePurchaseStatus, id, string(status), toMillis(at))
	if err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubscription(row infra.Row) (*domain.Subscription, error) {
	var (
		s                      domain.Subscription
		status                 string
		periodEnd              sql.NullInt64
		lastEventAt, updatedAt int64
	)
	if err := row.Scan(&s.UserID, &s.ExternalSubscriptionID, &s.VariantID, &status, &periodEnd, &s.CancelAtPeriodEnd, &lastEventAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	s.Status = domain.SubscriptionStatus(status)
	s.CurrentPeriodEnd = fromNullMillis(periodEnd)
	s.LastEventAt = fromMillis(lastEventAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}
