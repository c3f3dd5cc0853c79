package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Billing is the subset of a billing provider the HTTP API needs. Catalog must
// be the table checkout sessions are created from.
type Billing interface {
	IsEnabled() bool
	Catalog() *gocredits.Catalog
	CreateCheckoutSession(ctx context.Context, req gocredits.CheckoutRequest) (*gocredits.CheckoutResult, error)
	PaymentHistory(ctx context.Context, userID string, limit int) ([]gocredits.HistoryEntry, error)
}

// Config holds configuration for the billing API handler
type Config struct {
	// Billing is the payment provider (required)
	Billing Billing

	// GetUserID extracts user ID from HTTP request (required)
	// Similar to middleware/http pattern
	GetUserID func(*http.Request) string

	// GetUserEmail optionally extracts the user's email to prefill checkout
	GetUserEmail func(*http.Request) string

	// Balances optionally serves GET /balance from the credit ledger
	Balances gocredits.BalanceReader

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is used for structured logging (default: gocredits.NoopLogger)
	Logger gocredits.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Billing == nil {
		return fmt.Errorf("billing is required")
	}
	if c.Billing.Catalog() == nil {
		return fmt.Errorf("billing catalog is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	return nil
}

// NewHandler creates a new billing API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &gocredits.NoopLogger{}
	}
	return &Handler{
		config:   config,
		validate: newValidator(),
	}, nil
}

// Helper functions for common UserID extraction patterns

// FromHeader returns a GetUserID function that extracts user ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts user ID from request context
// Uses the same context key pattern as middleware/http
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}
