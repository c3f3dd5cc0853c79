package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/billing/internal"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

type webhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// handleWebhook processes incoming Stripe webhook events.
//
// Only transient failures (store or ledger unavailable, callback error) answer
// 5xx so that Stripe redelivers. Every permanent outcome answers 200, since a
// redelivery of the same event cannot change it.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !p.IsEnabled() {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		p.metrics.RecordWebhookError(providerName, "not_configured")
		return
	}

	select {
	case <-r.Context().Done():
		http.Error(w, "request timeout", http.StatusRequestTimeout)
		return
	default:
	}

	body, err := internal.ReadBodyStrict(w, r, internal.MaxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	event, err := p.VerifyWebhook(body, r.Header.Get(signatureHeader))
	if err != nil {
		var undecodable *UndecodableEventError
		switch {
		case errors.As(err, &undecodable):
			p.logger.Warn("Signed webhook event could not be decoded",
				gocredits.Field{Key: "event_id", Value: undecodable.EventID},
				gocredits.Field{Key: "event_type", Value: undecodable.EventType},
				gocredits.Field{Key: "error", Value: undecodable.Err.Error()})
			p.metrics.RecordWebhookEvent(providerName, undecodable.EventType, billing.OutcomeRejected)
			_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: billing.OutcomeRejected})
		case errors.Is(err, billing.ErrMisconfiguredSecret):
			http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
			p.metrics.RecordWebhookError(providerName, "not_configured")
		case errors.Is(err, billing.ErrInvalidWebhookSignature):
			p.logger.Warn("Webhook signature verification failed",
				gocredits.Field{Key: "ip", Value: internal.GetClientIP(r)},
				gocredits.Field{Key: "error", Value: err.Error()})
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			p.metrics.RecordWebhookError(providerName, "auth_failed")
		default:
			p.logger.Warn("Webhook payload rejected", gocredits.Field{Key: "error", Value: err.Error()})
			http.Error(w, "invalid payload", http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	meta := event.Meta()
	result, err := p.processEvent(r.Context(), event)
	if err == nil && p.callback != nil {
		err = p.callback(r.Context(), result)
		if err != nil {
			p.logger.Error("Webhook callback failed",
				gocredits.Field{Key: "event_id", Value: meta.ID},
				gocredits.Field{Key: "session_id", Value: result.SessionID},
				gocredits.Field{Key: "error", Value: err.Error()})
		}
	}
	p.metrics.RecordWebhookProcessingDuration(providerName, meta.Type, time.Since(startTime))

	if err != nil {
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, meta.Type, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		return
	}

	p.metrics.RecordWebhookEvent(providerName, meta.Type, result.Outcome)
	_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: result.Outcome})
}

// processEvent acts on a verified event and reports the outcome. A non-nil
// error means the delivery should be retried.
func (p *Provider) processEvent(ctx context.Context, event Event) (billing.WebhookEvent, error) {
	meta := event.Meta()
	result := billing.WebhookEvent{
		Provider:       providerName,
		EventID:        meta.ID,
		EventType:      meta.Type,
		EventTimestamp: meta.Created,
	}

	switch ev := event.(type) {
	case SubscriptionCompleted:
		result.SessionID = ev.Session.ID
		grant, err := p.processor.Process(ctx, ev.Session)
		switch {
		case err == nil:
			result.Outcome = billing.OutcomeProcessed
			result.Grant = grant
		case errors.Is(err, gocredits.ErrDuplicateSession):
			result.Outcome = billing.OutcomeDuplicate
		case errors.Is(err, gocredits.ErrPaymentIncomplete):
			result.Outcome = billing.OutcomePending
		case gocredits.IsValidationFailure(err):
			result.Outcome = billing.OutcomeRejected
			result.Reason = err.Error()
		default:
			return result, err
		}

	case PaymentFailed:
		result.SessionID = ev.Reference
		result.Outcome = billing.OutcomeAcknowledged
		p.logger.Warn("Payment failed",
			gocredits.Field{Key: "event_id", Value: meta.ID},
			gocredits.Field{Key: "event_type", Value: meta.Type},
			gocredits.Field{Key: "reference", Value: ev.Reference},
			gocredits.Field{Key: "customer_id", Value: ev.CustomerID},
			gocredits.Field{Key: "user_id", Value: ev.UserID},
		)

	default:
		result.Outcome = billing.OutcomeIgnored
		p.logger.Debug("Webhook event ignored",
			gocredits.Field{Key: "event_id", Value: meta.ID},
			gocredits.Field{Key: "event_type", Value: meta.Type})
	}

	return result, nil
}
