package api

import "github.com/mihaimyh/gocredits/pkg/gocredits"

// TiersResponse lists the purchasable tiers
type TiersResponse struct {
	CatalogVersion string                  `json:"catalogVersion"`
	Tiers          []gocredits.PricingTier `json:"tiers"`
}

// StatusResponse reports whether billing is available
type StatusResponse struct {
	Enabled bool `json:"enabled"`
}

// CheckoutRequest is the body of POST /checkout. The user comes from the
// request, never from the body.
type CheckoutRequest struct {
	TierID     string `json:"tierId" validate:"required,max=64"`
	SuccessURL string `json:"successUrl" validate:"required,url,max=2048"`
	CancelURL  string `json:"cancelUrl" validate:"required,url,max=2048"`
}

// HistoryResponse lists the user's paid checkout sessions
type HistoryResponse struct {
	UserID  string                   `json:"userId"`
	Entries []gocredits.HistoryEntry `json:"entries"`
}

// BalanceResponse is the user's credit balance in the ledger
type BalanceResponse struct {
	UserID  string `json:"userId"`
	Credits int64  `json:"credits"`
}
