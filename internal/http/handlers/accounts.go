package handlers

import (
	"net/http"

	"specledger/internal/ledger"
)

type accountCreateRequest struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	CustomerID string `json:"customerId"`
}

type accountCreateResponse struct {
	Created    bool       `json:"created"`
	Claimed    int        `json:"claimed"`
	Credits    int        `json:"creditsClaimed"`
	ProEnabled bool       `json:"proEnabled"`
	Account    accountDTO `json:"account"`
}

// AccountsCreate is the account-creation hook. It is safe to call on every
// login: an existing user is left alone and only pending grants are claimed.
func (a *App) AccountsCreate(w http.ResponseWriter, r *http.Request) {
	var req accountCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Ledger.RegisterUser(r.Context(), ledger.Registration{
		UserID:     req.UserID,
		Email:      req.Email,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		a.ledgerError(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	a.json(w, code, accountCreateResponse{
		Created:    res.Created,
		Claimed:    res.Claim.Claimed,
		Credits:    res.Claim.Credits,
		ProEnabled: res.Claim.ProEnabled,
		Account:    toAccountDTO(res.Account),
	})
}
