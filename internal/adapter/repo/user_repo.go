package repo

import (
	"context"
	"database/sql"
	"fmt"

	"specledger/internal/domain"
	"specledger/internal/infra"
	"specledger/internal/sqlinline"
)

func (t *sqlTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(t.exec.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

func (t *sqlTx) FindUserByCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	if customerID == "" {
		return nil, domain.ErrNotFound
	}
	return scanUser(t.exec.QueryRow(ctx, sqlinline.QSelectUserByCustomerID, customerID))
}

func (t *sqlTx) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	folded := domain.NormalizeEmail(email)
	if folded == "" {
		return nil, domain.ErrNotFound
	}
	return scanUser(t.exec.QueryRow(ctx, sqlinline.QSelectUserByEmail, folded))
}

func (t *sqlTx) InsertUser(ctx context.Context, u *domain.User) (bool, error) {
	n, err := t.exec.Exec(ctx, sqlinline.QInsertUser,
		u.ID,
		u.Email,
		domain.NormalizeEmail(u.Email),
		string(u.Plan),
		u.FreeSpecsRemaining,
		u.PaymentCustomerID,
		nullableMillis(u.LastEntitlementSyncAt),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return n == 1, nil
}

func (t *sqlTx) PutUser(ctx context.Context, u *domain.User) error {
	n, err := t.exec.Exec(ctx, sqlinline.QUpdateUser,
		u.ID,
		u.Email,
		domain.NormalizeEmail(u.Email),
		string(u.Plan),
		u.FreeSpecsRemaining,
		u.PaymentCustomerID,
		nullableMillis(u.LastEntitlementSyncAt),
		toMillis(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *sqlTx) GetEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error) {
	var (
		e         domain.Entitlement
		updatedAt int64
	)
	err := t.exec.QueryRow(ctx, sqlinline.QSelectEntitlement, userID).
		Scan(&e.UserID, &e.SpecCredits, &e.Unlimited, &e.CanEdit, &e.PreservedCredits, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	e.UpdatedAt = fromMillis(updatedAt)
	return &e, nil
}

func (t *sqlTx) PutEntitlement(ctx context.Context, e *domain.Entitlement) error {
	if _, err := t.exec.Exec(ctx, sqlinline.QUpsertEntitlement,
		e.UserID,
		e.SpecCredits,
		e.Unlimited,
		e.CanEdit,
		e.PreservedCredits,
		toMillis(e.UpdatedAt),
	); err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}
	return nil
}

func scanUser(row infra.Row) (*domain.User, error) {
	var (
		u                    domain.User
		plan                 string
		customerID           sql.NullString
		syncAt               sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &plan, &u.FreeSpecsRemaining, &customerID, &syncAt, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	u.Plan = domain.UserPlan(plan)
	u.PaymentCustomerID = customerID.String
	u.LastEntitlementSyncAt = fromNullMillis(syncAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}
