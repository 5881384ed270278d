package domain

import (
	"fmt"
	"time"
)

// SubscriptionStatus is the persisted lifecycle state of a Pro subscription.
type SubscriptionStatus string

const (
	SubscriptionNone          SubscriptionStatus = ""
	SubscriptionActive        SubscriptionStatus = "active"
	SubscriptionCancelled     SubscriptionStatus = "cancelled"
	SubscriptionPaymentFailed SubscriptionStatus = "payment_failed"
	SubscriptionExpired       SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus maps provider status strings onto the internal
// states. Unknown values map to none so that callers keep the current state.
func ParseSubscriptionStatus(v string) SubscriptionStatus {
	switch v {
	case "active", "on_trial", "trialing":
		return SubscriptionActive
	case "cancelled", "canceled":
		return SubscriptionCancelled
	case "past_due", "unpaid", "payment_failed":
		return SubscriptionPaymentFailed
	case "expired":
		return SubscriptionExpired
	default:
		return SubscriptionNone
	}
}

// Subscription is the single per-user subscription document.
type Subscription struct {
	UserID                 string
	ExternalSubscriptionID string
	VariantID              string
	Status                 SubscriptionStatus
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	LastEventAt            time.Time
	UpdatedAt              time.Time
}

// SubscriptionEventKind is the lifecycle signal fed into the state machine.
type SubscriptionEventKind string

const (
	SubEventCreated        SubscriptionEventKind = "created"
	SubEventPaymentSuccess SubscriptionEventKind = "payment_success"
	SubEventUpdated        SubscriptionEventKind = "updated"
	SubEventCancelled      SubscriptionEventKind = "cancelled"
	SubEventExpired        SubscriptionEventKind = "expired"
	SubEventPaymentFailed  SubscriptionEventKind = "payment_failed"
)

// ProEffect is the entitlement side effect a transition requires.
type ProEffect int

const (
	EffectNone ProEffect = iota
	EffectEnablePro
	EffectRevokePro
)

func (e ProEffect) String() string {
	switch e {
	case EffectEnablePro:
		return "enable_pro"
	case EffectRevokePro:
		return "revoke_pro"
	default:
		return "none"
	}
}

// Transition is the result of feeding one event into the state machine.
type Transition struct {
	From   SubscriptionStatus
	To     SubscriptionStatus
	Effect ProEffect
}

// NextSubscriptionState is the pure subscription state machine:
//
//	none -> active -> cancelled (entitled until period end) -> expired
//	active -> payment_failed -> active | expired
//	expired -> active on a new subscription or payment
//
// reported is the provider status carried by an "updated" event; it is ignored
// for the other kinds.
func NextSubscriptionState(current SubscriptionStatus, kind SubscriptionEventKind, reported SubscriptionStatus) (Transition, error) {
	t := Transition{From: current, To: current, Effect: EffectNone}
	switch kind {
	case SubEventCreated, SubEventPaymentSuccess:
		t.To = SubscriptionActive
		t.Effect = EffectEnablePro
	case SubEventCancelled:
		if current == SubscriptionExpired {
			return t, nil
		}
		t.To = SubscriptionCancelled
	case SubEventPaymentFailed:
		if current == SubscriptionExpired || current == SubscriptionCancelled {
			return t, nil
		}
		t.To = SubscriptionPaymentFailed
	case SubEventExpired:
		t.To = SubscriptionExpired
		t.Effect = EffectRevokePro
	case SubEventUpdated:
		// Updates only move the status field. Expiry revokes Pro, so it is
		// left to the dedicated expired event.
		if reported == SubscriptionNone || reported == SubscriptionExpired || current == SubscriptionExpired {
			return t, nil
		}
		t.To = reported
	default:
		return t, fmt.Errorf("%w: subscription event %q", ErrInvalidPayload, kind)
	}
	return t, nil
}

// IsStale reports whether an event that occurred at eventAt is older than the
// last transition already applied to this subscription.
func (s *Subscription) IsStale(eventAt time.Time) bool {
	if s == nil || s.LastEventAt.IsZero() || eventAt.IsZero() {
		return false
	}
	return eventAt.Before(s.LastEventAt)
}
