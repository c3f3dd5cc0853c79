package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocredits/pkg/billing"
	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

const (
	historyEndpoint     = "/checkout/sessions/list"
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// PaymentHistory returns the user's paid sessions among the most recent
// `limit` checkout sessions on the account (limit defaults to 10, max 100).
//
// This is a convenience view: sessions outside the window are not seen, and
// the credit ledger remains the record of what was granted.
func (p *Provider) PaymentHistory(ctx context.Context, userID string, limit int) ([]gocredits.HistoryEntry, error) {
	if !p.IsEnabled() {
		return nil, billing.ErrProviderNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	limit = clampHistoryLimit(limit)

	startTime := time.Now()
	params := &stripe.CheckoutSessionListParams{}
	params.Limit = stripe.Int64(int64(limit))

	entries := make([]gocredits.HistoryEntry, 0)
	seen := 0
	for session, err := range p.stripeClient.V1CheckoutSessions.List(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, historyEndpoint, "error")
			p.metrics.RecordAPICallDuration(providerName, historyEndpoint, time.Since(startTime))
			return nil, fmt.Errorf("%w: failed to list checkout sessions: %w", billing.ErrProviderAPIError, err)
		}

		if session.Metadata[gocredits.MetadataUserID] == userID &&
			session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			entries = append(entries, gocredits.HistoryEntry{
				SessionID: session.ID,
				TierID:    session.Metadata[gocredits.MetadataTierID],
				Amount:    session.AmountTotal,
				Currency:  string(session.Currency),
				Status:    string(session.Status),
				CreatedAt: time.Unix(session.Created, 0).UTC(),
			})
		}

		// One page only; the iterator would otherwise walk the whole account.
		seen++
		if seen >= limit {
			break
		}
	}

	p.metrics.RecordAPICall(providerName, historyEndpoint, "success")
	p.metrics.RecordAPICallDuration(providerName, historyEndpoint, time.Since(startTime))
	return entries, nil
}

func clampHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}
