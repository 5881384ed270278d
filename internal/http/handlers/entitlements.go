package handlers

import (
	"net/http"
	"time"

	"specledger/internal/domain"
	"specledger/internal/ledger"
)

type userDTO struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Plan                  string     `json:"plan"`
	FreeSpecsRemaining    int        `json:"freeSpecsRemaining"`
	PaymentCustomerID     string     `json:"paymentCustomerId,omitempty"`
	LastEntitlementSyncAt *time.Time `json:"lastEntitlementSyncAt,omitempty"`
}

type entitlementDTO struct {
	SpecCredits      int  `json:"specCredits"`
	Unlimited        bool `json:"unlimited"`
	CanEdit          bool `json:"canEdit"`
	PreservedCredits int  `json:"preservedCredits"`
}

type subscriptionDTO struct {
	ID                string     `json:"id"`
	VariantID         string     `json:"variantId,omitempty"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
}

type accountDTO struct {
	User         userDTO          `json:"user"`
	Entitlements entitlementDTO   `json:"entitlements"`
	Subscription *subscriptionDTO `json:"subscription"`
}

func toEntitlementDTO(e domain.Entitlement) entitlementDTO {
	return entitlementDTO{
		SpecCredits:      e.SpecCredits,
		Unlimited:        e.Unlimited,
		CanEdit:          e.CanEdit,
		PreservedCredits: e.PreservedCredits,
	}
}

func toAccountDTO(v ledger.AccountView) accountDTO {
	out := accountDTO{
		User: userDTO{
			ID:                    v.User.ID,
			Email:                 v.User.Email,
			Plan:                  string(v.User.Plan),
			FreeSpecsRemaining:    v.User.FreeSpecsRemaining,
			PaymentCustomerID:     v.User.PaymentCustomerID,
			LastEntitlementSyncAt: v.User.LastEntitlementSyncAt,
		},
		Entitlements: toEntitlementDTO(v.Entitlement),
	}
	if s := v.Subscription; s != nil {
		out.Subscription = &subscriptionDTO{
			ID:                s.ExternalSubscriptionID,
			VariantID:         s.VariantID,
			Status:            string(s.Status),
			CurrentPeriodEnd:  s.CurrentPeriodEnd,
			CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		}
	}
	return out
}

func (a *App) Entitlements(w http.ResponseWriter, r *http.Request) {
	view, err := a.Ledger.GetEntitlements(r.Context(), a.currentUserID(r))
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toAccountDTO(view))
}

type checkResponse struct {
	CanCreate        bool   `json:"canCreate"`
	Reason           string `json:"reason"`
	CreditsRemaining any    `json:"creditsRemaining"`
}

func (a *App) CreditsCheck(w http.ResponseWriter, r *http.Request) {
	d, err := a.Ledger.CheckCanConsume(r.Context(), a.currentUserID(r))
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	resp := checkResponse{CanCreate: d.Allowed, Reason: d.Reason, CreditsRemaining: d.Remaining}
	if d.Pool == domain.CreditPoolUnlimited {
		resp.CreditsRemaining = "unlimited"
	}
	a.json(w, http.StatusOK, resp)
}

type paywallOption struct {
	VariantID   string  `json:"variantId"`
	ProductID   string  `json:"productId"`
	Name        string  `json:"name"`
	PriceUSD    float64 `json:"priceUsd"`
	SpecCredits int     `json:"specCredits,omitempty"`
	Unlimited   bool    `json:"unlimited,omitempty"`
}

type paywallResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Reason  string          `json:"reason"`
	Options []paywallOption `json:"options"`
}

// CreditsConsume charges one credit. A denial is answered with 402 and the
// purchase options so the caller can show a paywall.
func (a *App) CreditsConsume(w http.ResponseWriter, r *http.Request) {
	res, err := a.Ledger.Consume(r.Context(), a.currentUserID(r))
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	if !res.Success {
		resp := paywallResponse{Error: "payment_required", Reason: ledger.ReasonNoCredits, Options: []paywallOption{}}
		for _, p := range a.Catalog.Products() {
			resp.Options = append(resp.Options, paywallOption{
				VariantID:   p.VariantID,
				ProductID:   p.ProductID,
				Name:        p.Name,
				PriceUSD:    p.PriceUSD,
				SpecCredits: p.Grants.SpecCredits,
				Unlimited:   p.Grants.Unlimited,
			})
		}
		a.json(w, http.StatusPaymentRequired, resp)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":          true,
		"consumptionId":    res.ConsumptionID,
		"creditType":       res.Pool,
		"creditsRemaining": res.Remaining,
	})
}

type refundRequest struct {
	ConsumptionID string `json:"consumptionId"`
	CreditType    string `json:"creditType,omitempty"`
}

// CreditsRefund reverses one earlier consume of the caller. The credit goes
// back to the pool that consume charged.
func (a *App) CreditsRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !a.decode(w, r, &req) {
		return
	}
	pool, err := a.Ledger.Refund(r.Context(), ledger.RefundRequest{
		UserID:        a.currentUserID(r),
		ConsumptionID: req.ConsumptionID,
		Pool:          domain.CreditPool(req.CreditType),
	})
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "consumptionId": req.ConsumptionID, "creditType": pool})
}
