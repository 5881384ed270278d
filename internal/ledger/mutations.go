package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"specledger/internal/domain"
	"specledger/internal/metrics"
)

// Grant is one purchased-credit grant. A Purchase row is recorded only when
// OrderID is set; administrative grants leave it empty.
type Grant struct {
	UserID      string
	CustomerID  string
	Credits     int
	OrderID     string
	ProductID   string
	VariantID   string
	AmountCents int64
	Currency    string
}

// GrantCredits adds g.Credits to the user inside tx and records the purchase.
// It returns domain.ErrDuplicateOperation if the order was already recorded.
func (s *Service) GrantCredits(ctx context.Context, tx domain.Tx, g Grant) (domain.Entitlement, error) {
	if g.Credits <= 0 {
		return domain.Entitlement{}, fmt.Errorf("%w: grant of %d credits", domain.ErrInvalidAmount, g.Credits)
	}
	a, err := s.loadAccount(ctx, tx, g.UserID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	if g.OrderID != "" {
		_, err := tx.GetPurchaseByOrder(ctx, g.OrderID)
		switch {
		case err == nil:
			return domain.Entitlement{}, fmt.Errorf("order %s: %w", g.OrderID, domain.ErrDuplicateOperation)
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Entitlement{}, err
		}
	}

	a.grantCredits(g.Credits)
	a.linkCustomer(g.CustomerID)
	if g.OrderID != "" {
		a.addPurchase(g, s.now())
	}
	if err := s.save(ctx, tx, a); err != nil {
		return domain.Entitlement{}, err
	}
	return a.snapshot(), nil
}

// RefundStatus describes what RefundCredits did.
type RefundStatus string

const (
	RefundApplied         RefundStatus = "applied"
	RefundPurchaseMissing RefundStatus = "purchase_missing"
	RefundAlreadyRefunded RefundStatus = "already_refunded"
)

// RefundResult is the outcome of an order refund.
type RefundResult struct {
	Status      RefundStatus
	UserID      string
	Credits     int
	Entitlement domain.Entitlement
}

// RefundCredits reverses the credits granted by orderID and marks the purchase
// refunded. The balance is not clamped. A second refund of the same order
// changes nothing.
func (s *Service) RefundCredits(ctx context.Context, tx domain.Tx, orderID string) (RefundResult, error) {
	p, err := tx.GetPurchaseByOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return RefundResult{Status: RefundPurchaseMissing}, nil
	}
	if err != nil {
		return RefundResult{}, err
	}
	if p.Status == domain.PurchaseStatusRefunded {
		return RefundResult{Status: RefundAlreadyRefunded, UserID: p.UserID, Credits: p.CreditsGranted}, nil
	}

	a, err := s.loadAccount(ctx, tx, p.UserID)
	if err != nil {
		return RefundResult{}, err
	}
	a.debitPurchased(p.CreditsGranted)
	a.refundedOrder = p
	if err := s.save(ctx, tx, a); err != nil {
		return RefundResult{}, err
	}
	if a.ent.PurchasedBalance() < 0 {
		s.logger.Warn().
			Str("user_id", p.UserID).
			Str("order_id", orderID).
			Int("balance", a.ent.PurchasedBalance()).
			Msg("refund left purchased balance negative")
	}
	return RefundResult{Status: RefundApplied, UserID: p.UserID, Credits: p.CreditsGranted, Entitlement: a.snapshot()}, nil
}

// SubscriptionChange is one subscription lifecycle event for a known user.
type SubscriptionChange struct {
	Kind                   domain.SubscriptionEventKind
	CustomerID             string
	ExternalSubscriptionID string
	VariantID              string
	// Reported is the provider status carried by update events.
	Reported          domain.SubscriptionStatus
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
	OccurredAt        time.Time
}

// SubscriptionResult reports the transition that was applied.
type SubscriptionResult struct {
	Transition  domain.Transition
	Stale       bool
	Entitlement domain.Entitlement
}

// ApplySubscriptionEvent runs the subscription state machine for the user and
// applies the resulting Pro effect in the same transaction. Events older than
// the last applied one are reported as stale and change nothing.
func (s *Service) ApplySubscriptionEvent(ctx context.Context, tx domain.Tx, userID string, ch SubscriptionChange) (SubscriptionResult, error) {
	a, err := s.loadAccount(ctx, tx, userID)
	if err != nil {
		return SubscriptionResult{}, err
	}
	if a.sub.IsStale(ch.OccurredAt) {
		return SubscriptionResult{Stale: true, Entitlement: a.snapshot()}, nil
	}
	a.linkCustomer(ch.CustomerID)

	current := domain.SubscriptionNone
	if a.sub != nil {
		current = a.sub.Status
	}
	t, err := domain.NextSubscriptionState(current, ch.Kind, ch.Reported)
	if err != nil {
		return SubscriptionResult{}, err
	}

	sub := a.ensureSubscription()
	if ch.ExternalSubscriptionID != "" {
		sub.ExternalSubscriptionID = ch.ExternalSubscriptionID
	}
	if ch.VariantID != "" {
		sub.VariantID = ch.VariantID
	}
	if ch.PeriodEnd != nil {
		sub.CurrentPeriodEnd = ch.PeriodEnd
	}
	switch {
	case ch.Kind == domain.SubEventCancelled:
		sub.CancelAtPeriodEnd = true
	case ch.CancelAtPeriodEnd != nil:
		sub.CancelAtPeriodEnd = *ch.CancelAtPeriodEnd
	case t.Effect == domain.EffectEnablePro:
		sub.CancelAtPeriodEnd = false
	}
	sub.Status = t.To
	if ch.OccurredAt.After(sub.LastEventAt) {
		sub.LastEventAt = ch.OccurredAt
	}
	a.subDirty = true

	switch t.Effect {
	case domain.EffectEnablePro:
		a.enableProSubscription(ch.ExternalSubscriptionID, ch.VariantID, ch.PeriodEnd)
	case domain.EffectRevokePro:
		a.revokeProSubscription(domain.SubscriptionExpired)
	}

	if err := s.save(ctx, tx, a); err != nil {
		return SubscriptionResult{}, err
	}
	return SubscriptionResult{Transition: t, Entitlement: a.snapshot()}, nil
}

// EnableProSubscription turns on Pro for the user inside tx without running
// the state machine. Calling it again for a renewal preserves nothing new.
func (s *Service) EnableProSubscription(ctx context.Context, tx domain.Tx, userID, subscriptionID, variantID string, periodEnd *time.Time) (domain.Entitlement, error) {
	a, err := s.loadAccount(ctx, tx, userID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	a.enableProSubscription(subscriptionID, variantID, periodEnd)
	if err := s.save(ctx, tx, a); err != nil {
		return domain.Entitlement{}, err
	}
	return a.snapshot(), nil
}

// RevokeProSubscription drops Pro for the user inside tx and moves a live
// subscription to status. It tolerates users that never subscribed.
func (s *Service) RevokeProSubscription(ctx context.Context, tx domain.Tx, userID string, status domain.SubscriptionStatus) (domain.Entitlement, error) {
	a, err := s.loadAccount(ctx, tx, userID)
	if err != nil {
		return domain.Entitlement{}, err
	}
	a.revokeProSubscription(status)
	if err := s.save(ctx, tx, a); err != nil {
		return domain.Entitlement{}, err
	}
	return a.snapshot(), nil
}

// AdminGrant is a manual top-up.
type AdminGrant struct {
	UserID   string
	Amount   int
	Source   string
	Metadata map[string]any
}

// AdminGrantCredits tops up a user through the same primitive as purchases and
// records the reason in the audit log.
func (s *Service) AdminGrantCredits(ctx context.Context, g AdminGrant) (domain.Entitlement, error) {
	var ent domain.Entitlement
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		var err error
		ent, err = s.GrantCredits(ctx, tx, Grant{UserID: g.UserID, Credits: g.Amount})
		if err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, domain.AuditLogEntry{
			UserID: g.UserID,
			Source: domain.AuditSourceAdmin,
			Action: domain.ActionCreditsGranted,
			Payload: map[string]any{
				"credits":  g.Amount,
				"source":   g.Source,
				"metadata": g.Metadata,
			},
		})
	})
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("admin grant for %s: %w", g.UserID, err)
	}
	metrics.LedgerMutationsTotal.WithLabelValues("admin_grant").Inc()
	s.logger.Info().Str("user_id", g.UserID).Int("credits", g.Amount).Str("source", g.Source).Msg("admin credits granted")
	return ent, nil
}

// RevokePro is the manual revocation path. A live subscription is marked
// cancelled.
func (s *Service) RevokePro(ctx context.Context, userID, reason string) (domain.Entitlement, error) {
	var ent domain.Entitlement
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		var err error
		ent, err = s.RevokeProSubscription(ctx, tx, userID, domain.SubscriptionCancelled)
		if err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, domain.AuditLogEntry{
			UserID:  userID,
			Source:  domain.AuditSourceAdmin,
			Action:  domain.ActionProRevoked,
			Payload: map[string]any{"reason": reason, "restored_credits": ent.SpecCredits},
		})
	})
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("revoke pro for %s: %w", userID, err)
	}
	metrics.LedgerMutationsTotal.WithLabelValues("revoke_pro").Inc()
	return ent, nil
}

// AccountView is the read model returned to the generation flow.
type AccountView struct {
	User         domain.User
	Entitlement  domain.Entitlement
	Subscription *domain.Subscription
}

// GetEntitlements returns the user's current ledger state.
func (s *Service) GetEntitlements(ctx context.Context, userID string) (AccountView, error) {
	var view AccountView
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		a, err := s.loadAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		view = AccountView{User: *a.user, Entitlement: a.snapshot(), Subscription: a.sub}
		return nil
	})
	return view, err
}
