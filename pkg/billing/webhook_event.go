package billing

import (
	"context"
	"time"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Outcomes reported in webhook responses and events.
const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomePending      = "pending"
	OutcomeRejected     = "rejected"
	OutcomeAcknowledged = "acknowledged"
	OutcomeIgnored      = "ignored"
)

// WebhookEvent describes a handled webhook delivery. It is passed to the
// WebhookCallback after the outcome has been decided.
type WebhookEvent struct {
	// Provider is the billing provider name ("stripe")
	Provider string

	// EventID and EventType are the provider's identifiers for the delivery
	EventID   string
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// Outcome is one of the Outcome* constants
	Outcome string

	// SessionID is the checkout session the event refers to, if any
	SessionID string

	// Grant is set when Outcome is OutcomeProcessed
	Grant *gocredits.CreditGrant

	// Reason is the rejection or failure reason, if any
	Reason string
}

// WebhookCallback receives handled webhook events.
type WebhookCallback func(ctx context.Context, event WebhookEvent) error
