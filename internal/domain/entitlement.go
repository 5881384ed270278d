package domain

import (
	"fmt"
	"time"
)

// Entitlement is the per-user ledger record. While Unlimited is set, purchased
// credits live in PreservedCredits and SpecCredits stays at zero.
type Entitlement struct {
	UserID           string
	SpecCredits      int
	Unlimited        bool
	CanEdit          bool
	PreservedCredits int
	UpdatedAt        time.Time
}

// NewEntitlement returns the zero entitlement for a user without any purchases.
func NewEntitlement(userID string) *Entitlement {
	return &Entitlement{UserID: userID}
}

// CheckInvariant rejects states the ledger must never persist.
func (e *Entitlement) CheckInvariant() error {
	if e == nil {
		return nil
	}
	if e.Unlimited && e.SpecCredits > 0 {
		return fmt.Errorf("%w: user %s unlimited with %d spec credits", ErrInvariantViolation, e.UserID, e.SpecCredits)
	}
	if e.CanEdit != e.Unlimited {
		return fmt.Errorf("%w: user %s can_edit=%t unlimited=%t", ErrInvariantViolation, e.UserID, e.CanEdit, e.Unlimited)
	}
	return nil
}

// PurchasedBalance is the number of purchased credits the user owns, wherever
// they are currently held.
func (e *Entitlement) PurchasedBalance() int {
	return e.SpecCredits + e.PreservedCredits
}

// Grants describes what a product or pending row hands out.
type Grants struct {
	SpecCredits int  `json:"specCredits" yaml:"spec_credits" firestore:"specCredits"`
	Unlimited   bool `json:"unlimited" yaml:"unlimited" firestore:"unlimited"`
	CanEdit     bool `json:"canEdit" yaml:"can_edit" firestore:"canEdit"`
}

// IsZero reports whether the grants hand out nothing.
func (g Grants) IsZero() bool {
	return g.SpecCredits == 0 && !g.Unlimited && !g.CanEdit
}

// CreditPool identifies which source a consumption was charged to.
type CreditPool string

const (
	CreditPoolNone      CreditPool = ""
	CreditPoolUnlimited CreditPool = "unlimited"
	CreditPoolPurchased CreditPool = "purchased"
	CreditPoolFree      CreditPool = "free"
)

// ParseCreditPool validates a pool name coming from a caller.
func ParseCreditPool(v string) (CreditPool, error) {
	switch CreditPool(v) {
	case CreditPoolUnlimited, CreditPoolPurchased, CreditPoolFree:
		return CreditPool(v), nil
	default:
		return CreditPoolNone, fmt.Errorf("%w: %q", ErrInvalidPool, v)
	}
}
