package domain

import "time"

// AuditSource identifies which path produced an audit entry.
type AuditSource string

const (
	AuditSourceWebhook AuditSource = "webhook"
	AuditSourceGate    AuditSource = "credit_gate"
	AuditSourceAccount AuditSource = "account"
	AuditSourceAdmin   AuditSource = "admin"
)

// Audit actions.
const (
	ActionCreditsGranted        = "credits_granted"
	ActionCreditsRefunded       = "credits_refunded"
	ActionPendingCreated        = "pending_created"
	ActionPendingClaimed        = "pending_claimed"
	ActionPendingVoided         = "pending_voided"
	ActionProEnabled            = "pro_enabled"
	ActionProRevoked            = "pro_revoked"
	ActionSubscriptionUpdated   = "subscription_updated"
	ActionSubscriptionCancelled = "subscription_cancelled"
	ActionSubscriptionFailed    = "subscription_payment_failed"
	ActionUnknownProduct        = "unknown_product"
	ActionUserNotFound          = "user_not_found"
	ActionPurchaseNotFound      = "purchase_not_found"
	ActionAlreadyRefunded       = "already_refunded"
	ActionStaleEvent            = "stale_event"
	ActionUnhandledEvent        = "unhandled_event"
	ActionDuplicate             = "duplicate"
	ActionOrderRecorded         = "order_already_recorded"
	ActionError                 = "error"
	ActionCreditConsumed        = "credit_consumed"
	ActionCreditDenied          = "credit_denied"
	ActionCreditRestored        = "credit_restored"
	ActionUserRegistered        = "user_registered"
)

// AuditLogEntry is an append-only decision record.
type AuditLogEntry struct {
	ID        int64
	UserID    string
	Source    AuditSource
	Action    string
	EventID   string
	Payload   map[string]any
	CreatedAt time.Time
}

// ProcessedEvent marks an external event id as consumed. Existence alone is the
// idempotency marker.
type ProcessedEvent struct {
	EventID     string
	EventName   string
	ResourceID  string
	ProcessedAt time.Time
}
