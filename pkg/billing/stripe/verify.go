package stripe

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gocredits/pkg/billing"
)

// VerifyWebhook authenticates a raw webhook payload against its
// Stripe-Signature header and decodes it into a typed Event.
//
// The signature is checked over the exact bytes received, before the payload
// is interpreted. API version mismatches are tolerated because the account may
// be pinned to an older API version than the client library.
func (p *Provider) VerifyWebhook(payload []byte, header string) (Event, error) {
	if p.webhookSecret == "" {
		return nil, billing.ErrMisconfiguredSecret
	}
	if header == "" {
		return nil, fmt.Errorf("%w: missing %s header", billing.ErrInvalidWebhookSignature, signatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, header, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
		}
		// The signature matched but the envelope is not an event
		return nil, &UndecodableEventError{Err: fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)}
	}

	decoded, err := decodeEvent(&event)
	if err != nil {
		return nil, &UndecodableEventError{EventID: event.ID, EventType: string(event.Type), Err: err}
	}
	return decoded, nil
}

// UndecodableEventError is returned for an authentic event whose object
// cannot be decoded. A redelivery carries the same bytes, so it is permanent.
type UndecodableEventError struct {
	EventID   string
	EventType string
	Err       error
}

func (e *UndecodableEventError) Error() string {
	if e.EventID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("event %s (%s): %v", e.EventID, e.EventType, e.Err)
}

func (e *UndecodableEventError) Unwrap() error {
	return e.Err
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
