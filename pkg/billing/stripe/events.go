package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Stripe event types handled by the webhook.
const (
	EventCheckoutCompleted          = "checkout.session.completed"
	EventCheckoutAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
)

// Event is a verified webhook event decoded into one of
// SubscriptionCompleted, PaymentFailed or Ignored.
type Event interface {
	Meta() EventMeta
}

// EventMeta carries the envelope fields shared by every event.
type EventMeta struct {
	ID      string
	Type    string
	Created time.Time
}

// Meta returns the event envelope.
func (m EventMeta) Meta() EventMeta { return m }

// SubscriptionCompleted reports a checkout session that may entitle the user
// to a grant. Whether it does is decided by gocredits.Processor.
type SubscriptionCompleted struct {
	EventMeta
	Session *gocredits.CheckoutSession
}

// PaymentFailed reports a failed charge. Reference is the checkout session or
// invoice id.
type PaymentFailed struct {
	EventMeta
	Reference  string
	CustomerID string
	UserID     string
}

// Ignored is any event type the webhook does not act on.
type Ignored struct {
	EventMeta
}

func decodeEvent(event *stripe.Event) (Event, error) {
	meta := EventMeta{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}

	switch meta.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentOK:
		session, err := decodeSession(event)
		if err != nil {
			return nil, err
		}
		return SubscriptionCompleted{EventMeta: meta, Session: toCheckoutSession(session)}, nil

	case EventCheckoutAsyncPaymentFailed:
		session, err := decodeSession(event)
		if err != nil {
			return nil, err
		}
		failed := PaymentFailed{EventMeta: meta, Reference: session.ID, UserID: session.Metadata[gocredits.MetadataUserID]}
		if session.Customer != nil {
			failed.CustomerID = session.Customer.ID
		}
		return failed, nil

	case EventInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := unmarshalObject(event, &invoice); err != nil {
			return nil, err
		}
		failed := PaymentFailed{EventMeta: meta, Reference: invoice.ID}
		if invoice.Customer != nil {
			failed.CustomerID = invoice.Customer.ID
		}
		return failed, nil

	default:
		return Ignored{EventMeta: meta}, nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := unmarshalObject(event, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: event %s carries no session id", billing.ErrInvalidWebhookPayload, event.ID)
	}
	return &session, nil
}

func unmarshalObject(event *stripe.Event, v interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", billing.ErrInvalidWebhookPayload, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: event %s: %v", billing.ErrInvalidWebhookPayload, event.ID, err)
	}
	return nil
}

// toCheckoutSession copies the fields the processor needs out of the Stripe object.
func toCheckoutSession(s *stripe.CheckoutSession) *gocredits.CheckoutSession {
	session := &gocredits.CheckoutSession{
		ID:            s.ID,
		Metadata:      s.Metadata,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
	}
	if s.Created > 0 {
		session.CreatedAt = time.Unix(s.Created, 0).UTC()
	}
	if s.PaymentIntent != nil {
		session.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Subscription != nil {
		session.SubscriptionID = s.Subscription.ID
	}
	if s.Customer != nil {
		session.CustomerID = s.Customer.ID
	}
	if session.CustomerEmail == "" && s.CustomerDetails != nil {
		session.CustomerEmail = s.CustomerDetails.Email
	}
	return session
}
