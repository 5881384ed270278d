package domain

import "time"

// PurchaseStatus enumerates the lifecycle of a one-time order.
type PurchaseStatus string

const (
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// Purchase records a completed one-time order. Rows are never deleted; only
// Status moves from completed to refunded.
type Purchase struct {
	ID              string
	UserID          string
	ExternalOrderID string
	ProductID       string
	VariantID       string
	CreditsGranted  int
	AmountCents     int64
	Currency        string
	Status          PurchaseStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Product is one entry of the static catalog, keyed by provider variant id.
type Product struct {
	VariantID string  `yaml:"variant_id"`
	ProductID string  `yaml:"product_id"`
	Name      string  `yaml:"name"`
	PriceUSD  float64 `yaml:"price_usd"`
	Grants    Grants  `yaml:"grants"`
}
