package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"specledger/internal/domain"
	"specledger/internal/metrics"
)

// Reasons reported by CheckCanConsume.
const (
	ReasonUnlimited = "unlimited"
	ReasonPurchased = "purchased"
	ReasonFree      = "free"
	ReasonNoCredits = "no_credits"
)

// Decision says whether the user may start paid work and which pool would be
// charged.
type Decision struct {
	Allowed bool
	Pool    domain.CreditPool
	Reason  string
	// Remaining is the balance of the pool that would be charged, before the
	// charge. It is meaningless when Pool is unlimited.
	Remaining int
}

// ConsumeResult reports the charged pool. The caller must hand ConsumptionID
// back to Refund if the paid work fails.
type ConsumeResult struct {
	Success       bool
	ConsumptionID string
	Pool          domain.CreditPool
	Remaining     int
}

// decide applies the fixed precedence: unlimited, then purchased credits,
// then the free allowance.
func decide(a *account) Decision {
	switch {
	case a.ent.Unlimited:
		return Decision{Allowed: true, Pool: domain.CreditPoolUnlimited, Reason: ReasonUnlimited}
	case a.ent.SpecCredits > 0:
		return Decision{Allowed: true, Pool: domain.CreditPoolPurchased, Reason: ReasonPurchased, Remaining: a.ent.SpecCredits}
	case a.user.FreeSpecsRemaining > 0:
		return Decision{Allowed: true, Pool: domain.CreditPoolFree, Reason: ReasonFree, Remaining: a.user.FreeSpecsRemaining}
	default:
		return Decision{Allowed: false, Pool: domain.CreditPoolNone, Reason: ReasonNoCredits}
	}
}

// CheckCanConsume reports what Consume would do without charging anything.
func (s *Service) CheckCanConsume(ctx context.Context, userID string) (Decision, error) {
	var d Decision
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		a, err := s.loadAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		d = decide(a)
		return nil
	})
	return d, err
}

// Consume charges one credit from the highest-precedence pool that has one.
// A denial is a normal outcome with Success=false.
func (s *Service) Consume(ctx context.Context, userID string) (ConsumeResult, error) {
	var res ConsumeResult
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		a, err := s.loadAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		d := decide(a)
		if !d.Allowed {
			res = ConsumeResult{Success: false, Pool: domain.CreditPoolNone}
			return s.audit.Append(ctx, tx, domain.AuditLogEntry{
				UserID: userID,
				Source: domain.AuditSourceGate,
				Action: domain.ActionCreditDenied,
			})
		}

		switch d.Pool {
		case domain.CreditPoolPurchased:
			a.ent.SpecCredits--
			res.Remaining = a.ent.SpecCredits
		case domain.CreditPoolFree:
			a.user.FreeSpecsRemaining--
			res.Remaining = a.user.FreeSpecsRemaining
		}
		res.Success = true
		res.Pool = d.Pool
		res.ConsumptionID = uuid.NewString()

		if err := s.save(ctx, tx, a); err != nil {
			return err
		}
		if err := tx.InsertConsumption(ctx, &domain.Consumption{
			ID:        res.ConsumptionID,
			UserID:    userID,
			Pool:      d.Pool,
			Status:    domain.ConsumptionCharged,
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		return s.audit.Append(ctx, tx, domain.AuditLogEntry{
			UserID:  userID,
			Source:  domain.AuditSourceGate,
			Action:  domain.ActionCreditConsumed,
			Payload: map[string]any{"pool": string(d.Pool), "consumption_id": res.ConsumptionID},
		})
	})
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("consume for %s: %w", userID, err)
	}
	if res.Success {
		metrics.CreditConsumptionsTotal.WithLabelValues(string(res.Pool)).Inc()
	} else {
		metrics.CreditConsumptionsTotal.WithLabelValues("denied").Inc()
	}
	return res, nil
}

// RefundRequest names the consumption to reverse. Pool is optional; when set
// it must match the pool recorded by Consume.
type RefundRequest struct {
	UserID        string
	ConsumptionID string
	Pool          domain.CreditPool
}

// Refund gives back the credit charged by one Consume, into the pool that
// Consume recorded. Purchased credits land in the preserved pool if Pro became
// active in the meantime. A consumption is refunded at most once, and only for
// the user it charged.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (domain.CreditPool, error) {
	if req.ConsumptionID == "" {
		return domain.CreditPoolNone, fmt.Errorf("%w: consumption id is required", domain.ErrInvalidPayload)
	}
	if req.Pool != domain.CreditPoolNone {
		if _, err := domain.ParseCreditPool(string(req.Pool)); err != nil {
			return domain.CreditPoolNone, err
		}
	}

	var pool domain.CreditPool
	err := s.store.RunInTx(ctx, func(tx domain.Tx) error {
		c, err := tx.GetConsumption(ctx, req.ConsumptionID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && c.UserID != req.UserID) {
			return fmt.Errorf("consumption %s: %w", req.ConsumptionID, domain.ErrUnknownConsumption)
		}
		if err != nil {
			return err
		}
		if c.Status == domain.ConsumptionRefunded {
			return fmt.Errorf("consumption %s: %w", c.ID, domain.ErrAlreadyRefunded)
		}
		if req.Pool != domain.CreditPoolNone && req.Pool != c.Pool {
			return fmt.Errorf("%w: consumption %s charged %s, not %s", domain.ErrInvalidPool, c.ID, c.Pool, req.Pool)
		}
		pool = c.Pool

		a, err := s.loadAccount(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		ok, err := tx.MarkConsumptionRefunded(ctx, c.ID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("consumption %s: %w", c.ID, domain.ErrAlreadyRefunded)
		}
		switch pool {
		case domain.CreditPoolPurchased:
			a.grantCredits(1)
		case domain.CreditPoolFree:
			a.user.FreeSpecsRemaining++
		}
		if pool != domain.CreditPoolUnlimited {
			if err := s.save(ctx, tx, a); err != nil {
				return err
			}
		}
		return s.audit.Append(ctx, tx, domain.AuditLogEntry{
			UserID:  req.UserID,
			Source:  domain.AuditSourceGate,
			Action:  domain.ActionCreditRestored,
			Payload: map[string]any{"pool": string(pool), "consumption_id": c.ID},
		})
	})
	if err != nil {
		return domain.CreditPoolNone, fmt.Errorf("refund consumption for %s: %w", req.UserID, err)
	}
	metrics.CreditRefundsTotal.WithLabelValues(string(pool)).Inc()
	return pool, nil
}
