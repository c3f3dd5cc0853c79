package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

const checkoutEndpoint = "/checkout/sessions"

// CreateCheckoutSession creates a Stripe Checkout Session for a catalog tier
// and returns its id and hosted URL.
//
// Price, currency, product text and interval come from the catalog. The user and tier
// ids are written into the session and subscription metadata, which is the
// only link the completion webhook has back to the user.
func (p *Provider) CreateCheckoutSession(ctx context.Context, req gocredits.CheckoutRequest) (*gocredits.CheckoutResult, error) {
	if !p.IsEnabled() {
		return nil, billing.ErrProviderNotConfigured
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", gocredits.ErrInvalidMetadata)
	}

	tier, ok := p.catalog.TierByID(req.TierID)
	if !ok {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "tier_not_found")
		return nil, fmt.Errorf("%w: %q", gocredits.ErrInvalidTier, req.TierID)
	}

	startTime := time.Now()

	metadata := map[string]string{
		gocredits.MetadataUserID: userID,
		gocredits.MetadataTierID: tier.ID,
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice(p.paymentMethodTypes),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(tier.Currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String(tier.Name),
						Description: stripe.String(tier.Description),
					},
					UnitAmount: stripe.Int64(tier.PriceMinorUnits),
					Recurring: &stripe.CheckoutSessionCreateLineItemPriceDataRecurringParams{
						Interval: stripe.String(tier.Interval),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata:          metadata,
		SubscriptionData:  &stripe.CheckoutSessionCreateSubscriptionDataParams{},
	}
	for k, v := range metadata {
		params.SubscriptionData.AddMetadata(k, v)
	}
	if email := strings.TrimSpace(req.UserEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, checkoutEndpoint, time.Since(startTime))
	if err != nil {
		p.metrics.RecordAPICall(providerName, checkoutEndpoint, "error")
		p.logger.Error("Checkout session creation failed",
			gocredits.Field{Key: "user_id", Value: userID},
			gocredits.Field{Key: "tier_id", Value: tier.ID},
			gocredits.Field{Key: "error", Value: err.Error()},
		)
		return nil, fmt.Errorf("%w: failed to create checkout session: %w", billing.ErrProviderAPIError, err)
	}

	p.metrics.RecordAPICall(providerName, checkoutEndpoint, "success")
	p.logger.Info("Checkout session created",
		gocredits.Field{Key: "session_id", Value: session.ID},
		gocredits.Field{Key: "user_id", Value: userID},
		gocredits.Field{Key: "tier_id", Value: tier.ID},
	)

	return &gocredits.CheckoutResult{
		SessionID:   session.ID,
		RedirectURL: session.URL,
	}, nil
}
