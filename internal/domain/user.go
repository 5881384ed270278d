package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// UserPlan enumerates billing plans.
type UserPlan string

const (
	UserPlanFree UserPlan = "free"
	UserPlanPro  UserPlan = "pro"
)

// User represents an account as seen by the ledger. Accounts are created by the
// user-management collaborator; the ledger only mutates plan and allowance fields.
type User struct {
	ID                    string
	Email                 string
	Plan                  UserPlan
	FreeSpecsRemaining    int
	PaymentCustomerID     string
	LastEntitlementSyncAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// IsFree reports whether the user is using the free plan.
func (u User) IsFree() bool {
	return u.Plan != UserPlanPro
}

// NormalizeEmail folds an address for lookups so that provider payloads and
// signup forms agree regardless of case. A Caser is stateful, so one is built per call.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}
