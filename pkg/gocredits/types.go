package gocredits

import "time"

// Metadata keys embedded into checkout sessions at creation time and read back
// from the completion event.
const (
	MetadataUserID = "userId"
	MetadataTierID = "tierId"
)

// Session states reported by the payment provider.
const (
	SessionStatusComplete = "complete"
	SessionStatusOpen     = "open"
	SessionStatusExpired  = "expired"

	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Billing intervals for recurring tiers.
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// PricingTier is an immutable catalog entry.
type PricingTier struct {
	// ID is the stable short identifier embedded into session metadata
	ID string `json:"id"`

	// Name and Description are display text sent to the checkout page
	Name        string `json:"name"`
	Description string `json:"description"`

	// PriceMinorUnits is the price in the smallest unit of Currency (e.g. cents)
	PriceMinorUnits int64 `json:"priceMinorUnits"`

	// Currency is the lowercase ISO 4217 code the price is charged in (default: usd)
	Currency string `json:"currency"`

	// CreditsGranted is the account credit granted per successful charge
	CreditsGranted int64 `json:"creditsGranted"`

	// Interval is the recurring billing interval (default: month)
	Interval string `json:"interval"`
}

// CheckoutSession is the provider-neutral view of a checkout session as echoed
// back on the completion event. The provider owns the session; this is a copy.
type CheckoutSession struct {
	ID            string
	Metadata      map[string]string
	Status        string
	PaymentStatus string

	// AmountTotal is what the provider actually charged, in minor units.
	// Authoritative for fraud checking, never for the credit amount.
	AmountTotal int64
	Currency    string

	// Provider references kept for audit
	PaymentIntentID string
	SubscriptionID  string
	CustomerID      string
	CustomerEmail   string
	CreatedAt       time.Time
}

// IsComplete reports whether the provider considers the session fully paid.
func (s *CheckoutSession) IsComplete() bool {
	return s.Status == SessionStatusComplete && s.PaymentStatus == PaymentStatusPaid
}

// CreditGrant is the validated, de-duplicated instruction sent to the ledger.
type CreditGrant struct {
	UserID         string    `json:"userId"`
	TierID         string    `json:"tierId"`
	CreditsGranted int64     `json:"creditsGranted"`
	SessionID      string    `json:"sessionId"`
	CatalogVersion string    `json:"catalogVersion"`
	GrantedAt      time.Time `json:"grantedAt"`

	// Audit fields copied from the provider session
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	SubscriptionID  string `json:"subscriptionId,omitempty"`
	CustomerID      string `json:"customerId,omitempty"`
	AmountTotal     int64  `json:"amountTotal"`
	Currency        string `json:"currency"`
}

// CheckoutRequest asks the provider for a new checkout session.
type CheckoutRequest struct {
	UserID     string
	UserEmail  string
	TierID     string
	SuccessURL string
	CancelURL  string
}

// CheckoutResult is the handle returned to the caller after session creation.
type CheckoutResult struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// HistoryEntry is one row of a user's payment history. It is a convenience
// view built from the provider's session listing, not accounting data.
type HistoryEntry struct {
	SessionID string    `json:"sessionId"`
	TierID    string    `json:"tierId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
