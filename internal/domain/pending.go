package domain

import "time"

// PendingReason explains why a grant could not be applied immediately.
type PendingReason string

const (
	PendingOrderBeforeSignup        PendingReason = "order_created_before_signup"
	PendingSubscriptionBeforeSignup PendingReason = "subscription_created_before_signup"
)

// PendingEntitlement holds a grant for a purchaser without an account. It is
// claimed exactly once when the matching account registers. A subscription
// that expires before signup voids its rows instead; Claimed is set either way
// and VoidedAt tells the two apart.
type PendingEntitlement struct {
	ID              string
	Email           string
	CustomerID      string
	EventID         string
	RawPayload      string
	Grants          Grants
	Reason          PendingReason
	OrderID         string
	ProductID       string
	VariantID       string
	AmountCents     int64
	Currency        string
	SubscriptionID  string
	PeriodEnd       *time.Time
	Claimed         bool
	ClaimedAt       *time.Time
	ClaimedByUserID string
	VoidedAt        *time.Time
	CreatedAt       time.Time
}
