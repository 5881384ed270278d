// Package webhooktest builds provider-shaped webhook bodies for tests.
package webhooktest

import (
	"encoding/json"
	"time"
)

// Order describes an order_created or order_refunded delivery.
type Order struct {
	OrderID    int64
	CustomerID int64
	Email      string
	VariantID  int64
	TotalCents int64
	UpdatedAt  time.Time
}

// Subscription describes a subscription_* delivery. For payment events the
// object is an invoice and SubscriptionID is sent as subscription_id.
type Subscription struct {
	SubscriptionID int64
	InvoiceID      int64
	CustomerID     int64
	Email          string
	VariantID      int64
	Status         string
	RenewsAt       time.Time
	Cancelled      bool
	UpdatedAt      time.Time
}

func OrderBody(eventID, eventName string, o Order) []byte {
	attrs := map[string]any{
		"customer_id": o.CustomerID,
		"user_email":  o.Email,
		"total":       o.TotalCents,
		"currency":    "usd",
		"status":      "paid",
		"first_order_item": map[string]any{
			"order_id":   o.OrderID,
			"variant_id": o.VariantID,
			"product_id": 900,
		},
	}
	if !o.UpdatedAt.IsZero() {
		attrs["updated_at"] = o.UpdatedAt.Format(time.RFC3339)
	}
	return envelope(eventID, eventName, "orders", o.OrderID, attrs)
}

func SubscriptionBody(eventID, eventName string, s Subscription) []byte {
	attrs := map[string]any{
		"customer_id": s.CustomerID,
		"user_email":  s.Email,
		"status":      s.Status,
		"cancelled":   s.Cancelled,
	}
	id, kind := s.SubscriptionID, "subscriptions"
	switch eventName {
	case "subscription_payment_success", "subscription_payment_failed":
		id, kind = s.InvoiceID, "subscription-invoices"
		attrs["subscription_id"] = s.SubscriptionID
	default:
		attrs["variant_id"] = s.VariantID
		attrs["product_id"] = 901
	}
	if !s.RenewsAt.IsZero() {
		attrs["renews_at"] = s.RenewsAt.Format(time.RFC3339)
	}
	if !s.UpdatedAt.IsZero() {
		attrs["updated_at"] = s.UpdatedAt.Format(time.RFC3339)
	}
	return envelope(eventID, eventName, kind, id, attrs)
}

func envelope(eventID, eventName, kind string, id int64, attrs map[string]any) []byte {
	body, err := json.Marshal(map[string]any{
		"meta": map[string]any{
			"event_name": eventName,
			"event_id":   eventID,
		},
		"data": map[string]any{
			"type":       kind,
			"id":         id,
			"attributes": attrs,
		},
	})
	if err != nil {
		panic(err)
	}
	return body
}
