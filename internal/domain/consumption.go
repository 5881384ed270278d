package domain

import "time"

// ConsumptionStatus enumerates the lifecycle of one charged credit.
type ConsumptionStatus string

const (
	ConsumptionCharged  ConsumptionStatus = "charged"
	ConsumptionRefunded ConsumptionStatus = "refunded"
)

// Consumption records one successful Consume. A refund must name it, and it
// can be refunded once, into the pool stored here.
type Consumption struct {
	ID         string
	UserID     string
	Pool       CreditPool
	Status     ConsumptionStatus
	CreatedAt  time.Time
	RefundedAt *time.Time
}
