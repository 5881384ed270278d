// Package directory resolves payment-provider identities to ledger users.
package directory

import (
	"context"
	"errors"
	"strings"

	"specledger/internal/domain"
)

// Directory looks users up inside the caller's transaction so that the
// resolution and the mutation that follows see the same state.
type Directory struct{}

func New() *Directory { return &Directory{} }

// Resolve prefers the provider customer id and falls back to the folded email.
// It returns domain.ErrNotFound when neither matches.
func (d *Directory) Resolve(ctx context.Context, tx domain.Tx, customerID, email string) (*domain.User, error) {
	if id := strings.TrimSpace(customerID); id != "" {
		u, err := tx.FindUserByCustomerID(ctx, id)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if strings.TrimSpace(email) != "" {
		return tx.FindUserByEmail(ctx, email)
	}
	return nil, domain.ErrNotFound
}

// ByID loads a user by internal id.
func (d *Directory) ByID(ctx context.Context, tx domain.Tx, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.ErrNotFound
	}
	return tx.GetUser(ctx, userID)
}
