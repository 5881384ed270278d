package fsstore

import (
	"time"

	"specledger/internal/domain"
)

type userDoc struct {
	ID                    string     `firestore:"id"`
	Email                 string     `firestore:"email"`
	EmailNormalized       string     `firestore:"emailNormalized"`
	Plan                  string     `firestore:"plan"`
	FreeSpecsRemaining    int        `firestore:"freeSpecsRemaining"`
	PaymentCustomerID     string     `firestore:"paymentCustomerId"`
	LastEntitlementSyncAt *time.Time `firestore:"lastEntitlementSyncAt"`
	CreatedAt             time.Time  `firestore:"createdAt"`
	UpdatedAt             time.Time  `firestore:"updatedAt"`
}

func fromUser(u *domain.User) userDoc {
	return userDoc{
		ID:                    u.ID,
		Email:                 u.Email,
		EmailNormalized:       domain.NormalizeEmail(u.Email),
		Plan:                  string(u.Plan),
		FreeSpecsRemaining:    u.FreeSpecsRemaining,
		PaymentCustomerID:     u.PaymentCustomerID,
		LastEntitlementSyncAt: u.LastEntitlementSyncAt,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:                    d.ID,
		Email:                 d.Email,
		Plan:                  domain.UserPlan(d.Plan),
		FreeSpecsRemaining:    d.FreeSpecsRemaining,
		PaymentCustomerID:     d.PaymentCustomerID,
		LastEntitlementSyncAt: d.LastEntitlementSyncAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

type entitlementDoc struct {
	SpecCredits      int       `firestore:"specCredits"`
	Unlimited        bool      `firestore:"unlimited"`
	CanEdit          bool      `firestore:"canEdit"`
	PreservedCredits int       `firestore:"preservedCredits"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

type subscriptionDoc struct {
	UserID                 string     `firestore:"userId"`
	ExternalSubscriptionID string     `firestore:"externalSubscriptionId"`
	VariantID              string     `firestore:"variantId"`
	Status                 string     `firestore:"status"`
	CurrentPeriodEnd       *time.Time `firestore:"currentPeriodEnd"`
	CancelAtPeriodEnd      bool       `firestore:"cancelAtPeriodEnd"`
	LastEventAt            time.Time  `firestore:"lastEventAt"`
	UpdatedAt              time.Time  `firestore:"updatedAt"`
}

func (d subscriptionDoc) toDomain() *domain.Subscription {
	return &domain.Subscription{
		UserID:                 d.UserID,
		ExternalSubscriptionID: d.ExternalSubscriptionID,
		VariantID:              d.VariantID,
		Status:                 domain.SubscriptionStatus(d.Status),
		CurrentPeriodEnd:       d.CurrentPeriodEnd,
		CancelAtPeriodEnd:      d.CancelAtPeriodEnd,
		LastEventAt:            d.LastEventAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// purchaseDoc is keyed by the external order id so that the order id stays
// unique without a secondary index.
type purchaseDoc struct {
	ID              string    `firestore:"id"`
	UserID          string    `firestore:"userId"`
	ExternalOrderID string    `firestore:"externalOrderId"`
	ProductID       string    `firestore:"productId"`
	VariantID       string    `firestore:"variantId"`
	CreditsGranted  int       `firestore:"creditsGranted"`
	AmountCents     int64     `firestore:"amountCents"`
	Currency        string    `firestore:"currency"`
	Status          string    `firestore:"status"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

type pendingDoc struct {
	ID              string        `firestore:"id"`
	Email           string        `firestore:"email"`
	CustomerID      string        `firestore:"customerId"`
	EventID         string        `firestore:"eventId"`
	RawPayload      string        `firestore:"rawPayload"`
	Grants          domain.Grants `firestore:"grants"`
	Reason          string        `firestore:"reason"`
	OrderID         string        `firestore:"orderId"`
	ProductID       string        `firestore:"productId"`
	VariantID       string        `firestore:"variantId"`
	AmountCents     int64         `firestore:"amountCents"`
	Currency        string        `firestore:"currency"`
	SubscriptionID  string        `firestore:"subscriptionId"`
	PeriodEnd       *time.Time    `firestore:"periodEnd"`
	Claimed         bool          `firestore:"claimed"`
	ClaimedAt       *time.Time    `firestore:"claimedAt"`
	ClaimedByUserID string        `firestore:"claimedByUserId"`
	VoidedAt        *time.Time    `firestore:"voidedAt"`
	CreatedAt       time.Time     `firestore:"createdAt"`
}

func (d pendingDoc) toDomain() domain.PendingEntitlement {
	return domain.PendingEntitlement{
		ID:              d.ID,
		Email:           d.Email,
		CustomerID:      d.CustomerID,
		EventID:         d.EventID,
		RawPayload:      d.RawPayload,
		Grants:          d.Grants,
		Reason:          domain.PendingReason(d.Reason),
		OrderID:         d.OrderID,
		ProductID:       d.ProductID,
		VariantID:       d.VariantID,
		AmountCents:     d.AmountCents,
		Currency:        d.Currency,
		SubscriptionID:  d.SubscriptionID,
		PeriodEnd:       d.PeriodEnd,
		Claimed:         d.Claimed,
		ClaimedAt:       d.ClaimedAt,
		ClaimedByUserID: d.ClaimedByUserID,
		VoidedAt:        d.VoidedAt,
		CreatedAt:       d.CreatedAt,
	}
}

type consumptionDoc struct {
	ID         string     `firestore:"id"`
	UserID     string     `firestore:"userId"`
	Pool       string     `firestore:"pool"`
	Status     string     `firestore:"status"`
	CreatedAt  time.Time  `firestore:"createdAt"`
	RefundedAt *time.Time `firestore:"refundedAt"`
}

func (d consumptionDoc) toDomain() *domain.Consumption {
	return &domain.Consumption{
		ID:         d.ID,
		UserID:     d.UserID,
		Pool:       domain.CreditPool(d.Pool),
		Status:     domain.ConsumptionStatus(d.Status),
		CreatedAt:  d.CreatedAt,
		RefundedAt: d.RefundedAt,
	}
}

type processedEventDoc struct {
	EventID     string    `firestore:"eventId"`
	EventName   string    `firestore:"eventName"`
	ResourceID  string    `firestore:"resourceId"`
	ProcessedAt time.Time `firestore:"processedAt"`
}

type auditDoc struct {
	ID        int64          `firestore:"id"`
	UserID    string         `firestore:"userId"`
	Source    string         `firestore:"source"`
	Action    string         `firestore:"action"`
	EventID   string         `firestore:"eventId"`
	Payload   map[string]any `firestore:"payload"`
	CreatedAt time.Time      `firestore:"createdAt"`
}
