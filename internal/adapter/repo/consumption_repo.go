package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"specledger/internal/domain"
	"specledger/internal/sqlinline"
)

func (t *sqlTx) GetConsumption(ctx context.Context, id string) (*domain.Consumption, error) {
	var (
		c            domain.Consumption
		pool, status string
		createdAt    int64
		refundedAt   sql.NullInt64
	)
	err := t.exec.QueryRow(ctx, sqlinline.QSelectConsumption, id).Scan(&c.ID, &c.UserID, &pool, &status, &createdAt, &refundedAt)
	if err != nil {
		return nil, notFound(err)
	}
	c.Pool = domain.CreditPool(pool)
	c.Status = domain.ConsumptionStatus(status)
	c.CreatedAt = fromMillis(createdAt)
	c.RefundedAt = fromNullMillis(refundedAt)
	return &c, nil
}

func (t *sqlTx) InsertConsumption(ctx context.Context, c *domain.Consumption) error {
	if _, err := t.exec.Exec(ctx, sqlinline.QInsertConsumption,
		c.ID,
		c.UserID,
		string(c.Pool),
		string(c.Status),
		toMillis(c.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert consumption: %w", err)
	}
	return nil
}

func (t *sqlTx) MarkConsumptionRefunded(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := t.exec.Exec(ctx, sqlinline.QRefundConsumption, id, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("refund consumption: %w", err)
	}
	return n == 1, nil
}
