package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"specledger/internal/domain"
	"specledger/internal/metrics"
)

// QueuePending stores a grant for a purchaser without an account inside tx.
func (s *Service) QueuePending(ctx context.Context, tx domain.Tx, p *domain.PendingEntitlement) error {
	if domain.NormalizeEmail(p.Email) == "" {
		return fmt.Errorf("%w: pending entitlement needs an email", domain.ErrInvalidPayload)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.Email = domain.NormalizeEmail(p.Email)
	p.Claimed = false
	return tx.InsertPending(ctx, p)
}

// VoidPendingSubscription closes the unclaimed grants queued for
// subscriptionID without applying them and reports how many it closed.
func (s *Service) VoidPendingSubscription(ctx context.Context, tx domain.Tx, subscriptionID string) (int, error) {
	rows, err := tx.ListUnclaimedPendingBySubscription(ctx, subscriptionID)
	if err != nil {
		return 0, err
	}
	now := s.now()
	voided := 0
	for _, p := range rows {
		ok, err := tx.VoidPending(ctx, p.ID, now)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("pending %s: %w", p.ID, domain.ErrClaimConflict)
		}
		voided++
	}
	if voided > 0 {
		s.logger.Info().Str("subscription_id", subscriptionID).Int("voided", voided).Msg("pending subscription grants voided")
	}
	return voided, nil
}

// ClaimResult summarizes what ClaimPending applied.
type ClaimResult struct {
	Claimed    int
	Credits    int
	ProEnabled bool
}

// ClaimPending applies every unclaimed pending entitlement for email to the
// user and marks each row claimed. Claims are conditional on the row still
// being unclaimed; if any claim loses a race the whole transaction aborts
// with domain.ErrClaimConflict, so a row is never applied twice. Calling it
// again with nothing pending is a no-op.
func (s *Service) ClaimPending(ctx context.Context, userID, email string) (ClaimResult, error) {
	var res ClaimResult
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		res = ClaimResult{}
		a, err := s.loadAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		rows, err := tx.ListUnclaimedPending(ctx, email)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		recorded := make(map[string]bool)
		for _, p := range rows {
			if p.OrderID == "" || recorded[p.OrderID] {
				continue
			}
			_, err := tx.GetPurchaseByOrder(ctx, p.OrderID)
			switch {
			case err == nil:
				recorded[p.OrderID] = true
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
		}

		now := s.now()
		for _, p := range rows {
			ok, err := tx.ClaimPending(ctx, p.ID, userID, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("pending %s: %w", p.ID, domain.ErrClaimConflict)
			}

			if n := p.Grants.SpecCredits; n > 0 {
				a.grantCredits(n)
				res.Credits += n
				if p.OrderID != "" && !recorded[p.OrderID] {
					a.addPurchase(Grant{
						Credits:     n,
						OrderID:     p.OrderID,
						ProductID:   p.ProductID,
						VariantID:   p.VariantID,
						AmountCents: p.AmountCents,
						Currency:    p.Currency,
					}, now)
					recorded[p.OrderID] = true
				}
			}
			if p.Grants.Unlimited {
				a.enableProSubscription(p.SubscriptionID, p.VariantID, p.PeriodEnd)
				res.ProEnabled = true
			}
			a.linkCustomer(p.CustomerID)
			res.Claimed++

			if err := s.audit.Append(ctx, tx, domain.AuditLogEntry{
				UserID:  userID,
				Source:  domain.AuditSourceAccount,
				Action:  domain.ActionPendingClaimed,
				EventID: p.EventID,
				Payload: map[string]any{
					"pending_id": p.ID,
					"reason":     string(p.Reason),
					"credits":    p.Grants.SpecCredits,
					"unlimited":  p.Grants.Unlimited,
				},
			}); err != nil {
				return err
			}
		}
		return s.save(ctx, tx, a)
	})
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim pending for %s: %w", userID, err)
	}
	if res.Claimed > 0 {
		metrics.PendingClaimsTotal.Add(float64(res.Claimed))
		s.logger.Info().Str("user_id", userID).Int("claimed", res.Claimed).Int("credits", res.Credits).Bool("pro", res.ProEnabled).Msg("pending entitlements claimed")
	}
	return res, nil
}

// Registration is what the account-creation hook knows about a new user.
type Registration struct {
	UserID     string
	Email      string
	CustomerID string
}

// RegisterResult reports the account and any pending grants it picked up.
type RegisterResult struct {
	Created bool
	Claim   ClaimResult
	Account AccountView
}

// RegisterUser creates the user with the free allowance if it does not exist
// yet and then claims pending entitlements for its email. Calling it for an
// existing user only runs the claim.
func (s *Service) RegisterUser(ctx context.Context, r Registration) (RegisterResult, error) {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" || domain.NormalizeEmail(r.Email) == "" {
		return RegisterResult{}, fmt.Errorf("%w: user id and email are required", domain.ErrInvalidPayload)
	}

	var res RegisterResult
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		_, err := tx.GetUser(ctx, r.UserID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		now := s.now()
		created, err := tx.InsertUser(ctx, &domain.User{
			ID:                 r.UserID,
			Email:              strings.TrimSpace(r.Email),
			Plan:               domain.UserPlanFree,
			FreeSpecsRemaining: s.opts.FreeSpecAllowance,
			PaymentCustomerID:  strings.TrimSpace(r.CustomerID),
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil || !created {
			return err
		}
		ent := domain.NewEntitlement(r.UserID)
		ent.UpdatedAt = now
		if err := tx.PutEntitlement(ctx, ent); err != nil {
			return err
		}
		res.Created = true
		return s.audit.Append(ctx, tx, domain.AuditLogEntry{
			UserID:  r.UserID,
			Source:  domain.AuditSourceAccount,
			Action:  domain.ActionUserRegistered,
			Payload: map[string]any{"free_specs": s.opts.FreeSpecAllowance},
		})
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register %s: %w", r.UserID, err)
	}

	res.Claim, err = s.ClaimPending(ctx, r.UserID, r.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	res.Account, err = s.GetEntitlements(ctx, r.UserID)
	if err != nil {
		return RegisterResult{}, err
	}
	return res, nil
}
