package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Provider is the generic interface a payment backend implements.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// IsEnabled reports whether the provider has both credentials configured.
	// A disabled provider keeps the host running but rejects every operation.
	IsEnabled() bool

	// CreateCheckoutSession creates a hosted checkout session for a catalog tier.
	CreateCheckoutSession(ctx context.Context, req gocredits.CheckoutRequest) (*gocredits.CheckoutResult, error)

	// PaymentHistory returns the user's paid sessions among the most recent ones.
	PaymentHistory(ctx context.Context, userID string, limit int) ([]gocredits.HistoryEntry, error)

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles verification, validation and grant dispatch internally.
	WebhookHandler() http.Handler
}
