package domain

import (
	"context"
	"time"
)

// Store is the ledger's transactional document store. Every ledger mutation
// runs inside RunInTx so that a failure of any write discards all of them.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of reads and writes available inside one transaction.
//
// Reads lock or track the documents they return until the transaction ends.
// Callers perform all reads before the first write and must not rely on
// reading back their own writes, since document stores do not allow it.
// Single-document lookups return ErrNotFound when nothing matches.
type Tx interface {
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByCustomerID(ctx context.Context, customerID string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error)
	GetPurchaseByOrder(ctx context.Context, orderID string) (*Purchase, error)
	ListUnclaimedPending(ctx context.Context, email string) ([]PendingEntitlement, error)
	ListUnclaimedPendingBySubscription(ctx context.Context, subscriptionID string) ([]PendingEntitlement, error)
	GetConsumption(ctx context.Context, id string) (*Consumption, error)
	ProcessedEventExists(ctx context.Context, eventID string) (bool, error)
	ListProcessedEvents(ctx context.Context, since time.Time, limit int) ([]ProcessedEvent, error)
	ListAuditByEvent(ctx context.Context, eventID string) ([]AuditLogEntry, error)

	// InsertUser creates the user and reports false when the id already exists.
	InsertUser(ctx context.Context, u *User) (bool, error)
	PutUser(ctx context.Context, u *User) error
	PutEntitlement(ctx context.Context, e *Entitlement) error
	PutSubscription(ctx context.Context, s *Subscription) error
	InsertPurchase(ctx context.Context, p *Purchase) error
	UpdatePurchaseStatus(ctx context.Context, id string, status PurchaseStatus, at time.Time) error
	InsertPending(ctx context.Context, p *PendingEntitlement) error
	// ClaimPending marks an unclaimed row as claimed and reports false when the
	// row was already claimed.
	ClaimPending(ctx context.Context, id, userID string, at time.Time) (bool, error)
	// VoidPending closes an unclaimed row without applying it and reports
	// false when the row was already closed.
	VoidPending(ctx context.Context, id string, at time.Time) (bool, error)
	InsertConsumption(ctx context.Context, c *Consumption) error
	// MarkConsumptionRefunded moves a charged consumption to refunded and
	// reports false when it was already refunded.
	MarkConsumptionRefunded(ctx context.Context, id string, at time.Time) (bool, error)
	// InsertProcessedEvent reports whether this call created the marker.
	InsertProcessedEvent(ctx context.Context, e *ProcessedEvent) (bool, error)
	AppendAudit(ctx context.Context, entry *AuditLogEntry) error
}
