package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"specledger/internal/domain"
)

// Provider event names.
const (
	EventOrderCreated               = "order_created"
	EventOrderRefunded              = "order_refunded"
	EventSubscriptionCreated        = "subscription_created"
	EventSubscriptionPaymentSuccess = "subscription_payment_success"
	EventSubscriptionUpdated        = "subscription_updated"
	EventSubscriptionCancelled      = "subscription_cancelled"
	EventSubscriptionExpired        = "subscription_expired"
	EventSubscriptionPaymentFailed  = "subscription_payment_failed"
)

var subscriptionKinds = map[string]domain.SubscriptionEventKind{
	EventSubscriptionCreated:        domain.SubEventCreated,
	EventSubscriptionPaymentSuccess: domain.SubEventPaymentSuccess,
	EventSubscriptionUpdated:        domain.SubEventUpdated,
	EventSubscriptionCancelled:      domain.SubEventCancelled,
	EventSubscriptionExpired:        domain.SubEventExpired,
	EventSubscriptionPaymentFailed:  domain.SubEventPaymentFailed,
}

// Event is one validated webhook delivery: *OrderEvent, *SubscriptionEvent or
// *UnknownEvent.
type Event interface {
	Meta() EventMeta
	// ResourceID is the provider object the event is about.
	ResourceID() string
}

// EventMeta is common to every event.
type EventMeta struct {
	EventID   string
	EventName string
	// OccurredAt is the provider's update time; zero when the payload has none.
	OccurredAt time.Time
}

func (m EventMeta) Meta() EventMeta { return m }

// OrderEvent is order_created or order_refunded.
type OrderEvent struct {
	EventMeta
	OrderID    string
	CustomerID string
	Email      string
	VariantID  string
	ProductID  string
	TotalCents int64
	Currency   string
}

func (e *OrderEvent) ResourceID() string { return e.OrderID }

// SubscriptionEvent is any subscription_* event the ledger understands.
type SubscriptionEvent struct {
	EventMeta
	Kind              domain.SubscriptionEventKind
	SubscriptionID    string
	CustomerID        string
	Email             string
	VariantID         string
	Status            domain.SubscriptionStatus
	PeriodEnd         *time.Time
	CancelAtPeriodEnd *bool
}

func (e *SubscriptionEvent) ResourceID() string { return e.SubscriptionID }

// UnknownEvent is a well-formed delivery of a type the ledger ignores.
type UnknownEvent struct {
	EventMeta
	Resource string
}

func (e *UnknownEvent) ResourceID() string { return e.Resource }

type envelope struct {
	Meta struct {
		EventName string     `json:"event_name"`
		EventID   flexString `json:"event_id"`
		WebhookID flexString `json:"webhook_id"`
	} `json:"meta"`
	Data struct {
		Type       string     `json:"type"`
		ID         flexString `json:"id"`
		Attributes attributes `json:"attributes"`
	} `json:"data"`
}

type attributes struct {
	ID                flexString `json:"id"`
	OrderID           flexString `json:"order_id"`
	SubscriptionID    flexString `json:"subscription_id"`
	CustomerID        flexString `json:"customer_id"`
	UserEmail         string     `json:"user_email"`
	VariantID         flexString `json:"variant_id"`
	ProductID         flexString `json:"product_id"`
	Total             flexInt    `json:"total"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  flexTime   `json:"current_period_end"`
	RenewsAt          flexTime   `json:"renews_at"`
	EndsAt            flexTime   `json:"ends_at"`
	CancelAtPeriodEnd *bool      `json:"cancel_at_period_end"`
	Cancelled         *bool      `json:"cancelled"`
	CreatedAt         flexTime   `json:"created_at"`
	UpdatedAt         flexTime   `json:"updated_at"`
	FirstOrderItem    *struct {
		VariantID flexString `json:"variant_id"`
		ProductID flexString `json:"product_id"`
	} `json:"first_order_item"`
}

// Parse decodes and validates a raw webhook body. Every failure wraps
// domain.ErrInvalidPayload.
func Parse(raw []byte) (Event, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	meta := EventMeta{
		EventID:   firstNonEmpty(env.Meta.EventID.String(), env.Meta.WebhookID.String()),
		EventName: strings.TrimSpace(env.Meta.EventName),
	}
	if meta.EventID == "" {
		return nil, fmt.Errorf("%w: meta.event_id is required", domain.ErrInvalidPayload)
	}
	if meta.EventName == "" {
		return nil, fmt.Errorf("%w: meta.event_name is required", domain.ErrInvalidPayload)
	}
	attr := env.Data.Attributes
	meta.OccurredAt = attr.UpdatedAt.Time
	if meta.OccurredAt.IsZero() {
		meta.OccurredAt = attr.CreatedAt.Time
	}
	objectID := firstNonEmpty(attr.ID.String(), env.Data.ID.String())

	switch meta.EventName {
	case EventOrderCreated, EventOrderRefunded:
		return parseOrder(meta, objectID, attr)
	}
	if kind, ok := subscriptionKinds[meta.EventName]; ok {
		return parseSubscription(meta, kind, objectID, attr)
	}
	return &UnknownEvent{EventMeta: meta, Resource: objectID}, nil
}

func parseOrder(meta EventMeta, orderID string, attr attributes) (*OrderEvent, error) {
	ev := &OrderEvent{
		EventMeta:  meta,
		OrderID:    orderID,
		CustomerID: attr.CustomerID.String(),
		Email:      strings.TrimSpace(attr.UserEmail),
		VariantID:  attr.VariantID.String(),
		ProductID:  attr.ProductID.String(),
		TotalCents: int64(attr.Total),
		Currency:   strings.ToUpper(strings.TrimSpace(attr.Currency)),
	}
	if item := attr.FirstOrderItem; item != nil {
		ev.VariantID = firstNonEmpty(ev.VariantID, item.VariantID.String())
		ev.ProductID = firstNonEmpty(ev.ProductID, item.ProductID.String())
	}
	if ev.OrderID == "" {
		return nil, fmt.Errorf("%w: %s without order id", domain.ErrInvalidPayload, meta.EventName)
	}
	if meta.EventName == EventOrderCreated {
		if ev.VariantID == "" {
			return nil, fmt.Errorf("%w: order %s without variant id", domain.ErrInvalidPayload, ev.OrderID)
		}
		if ev.CustomerID == "" && ev.Email == "" {
			return nil, fmt.Errorf("%w: order %s without customer id or email", domain.ErrInvalidPayload, ev.OrderID)
		}
		if ev.TotalCents < 0 {
			return nil, fmt.Errorf("%w: order %s with negative total", domain.ErrInvalidPayload, ev.OrderID)
		}
	}
	return ev, nil
}

func parseSubscription(meta EventMeta, kind domain.SubscriptionEventKind, objectID string, attr attributes) (*SubscriptionEvent, error) {
	ev := &SubscriptionEvent{
		EventMeta:      meta,
		Kind:           kind,
		SubscriptionID: objectID,
		CustomerID:     attr.CustomerID.String(),
		Email:          strings.TrimSpace(attr.UserEmail),
		VariantID:      attr.VariantID.String(),
		Status:         domain.ParseSubscriptionStatus(strings.ToLower(strings.TrimSpace(attr.Status))),
	}
	// Payment events describe an invoice; the subscription is referenced.
	if kind == domain.SubEventPaymentSuccess || kind == domain.SubEventPaymentFailed {
		if id := attr.SubscriptionID.String(); id != "" {
			ev.SubscriptionID = id
		}
		ev.Status = domain.SubscriptionNone
	}
	for _, t := range []flexTime{attr.CurrentPeriodEnd, attr.RenewsAt, attr.EndsAt} {
		if !t.IsZero() {
			end := t.Time
			ev.PeriodEnd = &end
			break
		}
	}
	switch {
	case attr.CancelAtPeriodEnd != nil:
		ev.CancelAtPeriodEnd = attr.CancelAtPeriodEnd
	case attr.Cancelled != nil:
		ev.CancelAtPeriodEnd = attr.Cancelled
	}

	if ev.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: %s without subscription id", domain.ErrInvalidPayload, meta.EventName)
	}
	if ev.CustomerID == "" && ev.Email == "" {
		return nil, fmt.Errorf("%w: subscription %s without customer id or email", domain.ErrInvalidPayload, ev.SubscriptionID)
	}
	return ev, nil
}

// flexString accepts a JSON string or number. The provider sends numeric ids.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

func (s flexString) String() string { return strings.TrimSpace(string(s)) }

// flexInt accepts an integer as a JSON number or numeric string.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s.String() == "" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(s.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*i = flexInt(n)
	return nil
}

// flexTime accepts an RFC 3339 timestamp, an empty string or null.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s.String() == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s.String())
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
