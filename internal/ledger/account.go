package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"specledger/internal/domain"
)

// account is one user's ledger state loaded inside a transaction. The
// mutation primitives below change it in memory; save writes it back.
type account struct {
	user *domain.User
	ent  *domain.Entitlement
	sub  *domain.Subscription

	subDirty      bool
	newPurchases  []*domain.Purchase
	refundedOrder *domain.Purchase
}

func (s *Service) loadAccount(ctx context.Context, tx domain.Tx, userID string) (*account, error) {
	user, err := s.dir.ByID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return s.loadAccountFor(ctx, tx, user)
}

func (s *Service) loadAccountFor(ctx context.Context, tx domain.Tx, user *domain.User) (*account, error) {
	ent, err := tx.GetEntitlement(ctx, user.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		ent = domain.NewEntitlement(user.ID)
	case err != nil:
		return nil, fmt.Errorf("load entitlement %s: %w", user.ID, err)
	}
	sub, err := tx.GetSubscription(ctx, user.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		sub = nil
	case err != nil:
		return nil, fmt.Errorf("load subscription %s: %w", user.ID, err)
	}
	return &account{user: user, ent: ent, sub: sub}, nil
}

// save checks the invariant and writes every changed document.
func (s *Service) save(ctx context.Context, tx domain.Tx, a *account) error {
	if err := a.ent.CheckInvariant(); err != nil {
		s.logger.Error().Err(err).Str("user_id", a.user.ID).Msg("refusing to persist entitlement")
		return err
	}
	now := s.now()
	a.ent.UpdatedAt = now
	a.user.UpdatedAt = now
	a.user.LastEntitlementSyncAt = &now

	if err := tx.PutUser(ctx, a.user); err != nil {
		return err
	}
	if err := tx.PutEntitlement(ctx, a.ent); err != nil {
		return err
	}
	if a.sub != nil && a.subDirty {
		a.sub.UpdatedAt = now
		if err := tx.PutSubscription(ctx, a.sub); err != nil {
			return err
		}
	}
	for _, p := range a.newPurchases {
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return err
		}
	}
	if a.refundedOrder != nil {
		if err := tx.UpdatePurchaseStatus(ctx, a.refundedOrder.ID, domain.PurchaseStatusRefunded, now); err != nil {
			return err
		}
	}
	return nil
}

// grantCredits adds purchased credits. While Pro is active they are kept in
// the preserved pool so that spec credits stay at zero.
func (a *account) grantCredits(n int) {
	if a.ent.Unlimited {
		a.ent.PreservedCredits += n
		return
	}
	a.ent.SpecCredits += n
}

// debitPurchased removes purchased credits from whichever pool holds them.
// The balance may go negative to flag an overdraft for manual review.
func (a *account) debitPurchased(n int) {
	if a.ent.Unlimited {
		a.ent.PreservedCredits -= n
		return
	}
	a.ent.SpecCredits -= n
}

// enableProSubscription moves spec credits into the preserved pool and turns
// on unlimited access. Running it again moves nothing, so renewals never
// double-preserve.
func (a *account) enableProSubscription(subscriptionID, variantID string, periodEnd *time.Time) {
	a.ent.PreservedCredits += a.ent.SpecCredits
	a.ent.SpecCredits = 0
	a.ent.Unlimited = true
	a.ent.CanEdit = true
	a.user.Plan = domain.UserPlanPro

	sub := a.ensureSubscription()
	if subscriptionID != "" {
		sub.ExternalSubscriptionID = subscriptionID
	}
	if variantID != "" {
		sub.VariantID = variantID
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = periodEnd
	}
	sub.Status = domain.SubscriptionActive
	a.subDirty = true
}

// revokeProSubscription restores preserved credits and drops unlimited access.
// An existing subscription that is still live is moved to status; a missing
// subscription is fine.
func (a *account) revokeProSubscription(status domain.SubscriptionStatus) {
	a.ent.SpecCredits += a.ent.PreservedCredits
	a.ent.PreservedCredits = 0
	a.ent.Unlimited = false
	a.ent.CanEdit = false
	a.user.Plan = domain.UserPlanFree

	if a.sub == nil {
		return
	}
	switch a.sub.Status {
	case domain.SubscriptionCancelled, domain.SubscriptionExpired:
	default:
		a.sub.Status = status
		a.subDirty = true
	}
}

// linkCustomer records the provider customer id on a user that was matched by
// email, so later events carrying only the customer id resolve. An existing
// link is never overwritten.
func (a *account) linkCustomer(customerID string) {
	if a.user.PaymentCustomerID == "" && customerID != "" {
		a.user.PaymentCustomerID = customerID
	}
}

func (a *account) ensureSubscription() *domain.Subscription {
	if a.sub == nil {
		a.sub = &domain.Subscription{UserID: a.user.ID, Status: domain.SubscriptionNone}
	}
	return a.sub
}

func (a *account) addPurchase(g Grant, now time.Time) {
	a.newPurchases = append(a.newPurchases, &domain.Purchase{
		ID:              uuid.NewString(),
		UserID:          a.user.ID,
		ExternalOrderID: g.OrderID,
		ProductID:       g.ProductID,
		VariantID:       g.VariantID,
		CreditsGranted:  g.Credits,
		AmountCents:     g.AmountCents,
		Currency:        g.Currency,
		Status:          domain.PurchaseStatusCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// snapshot copies the entitlement for callers outside the transaction.
func (a *account) snapshot() domain.Entitlement {
	return *a.ent
}
