package gocredits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Rejection reasons reported to logs and metrics.
const (
	ReasonInvalidMetadata   = "invalid_metadata"
	ReasonUnknownTier       = "unknown_tier"
	ReasonPaymentIncomplete = "payment_incomplete"
	ReasonDuplicateSession  = "duplicate_session"
	ReasonAmountMismatch    = "amount_mismatch"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive failures before opening the circuit (default: 5)
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from Open to Half-Open (default: 30 seconds)
	ResetTimeout time.Duration
}

// Config configures a Processor
type Config struct {
	// Catalog is the pricing catalog (default: DefaultCatalog())
	Catalog *Catalog

	// Ledger receives grants from Process. Optional for HandleSubscriptionCompleted.
	Ledger Ledger

	// Metrics is used for tracking grant processing (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// CircuitBreakerConfig wraps the session store with a circuit breaker when enabled
	CircuitBreakerConfig *CircuitBreakerConfig

	// Now returns the grant timestamp (default: time.Now)
	Now func() time.Time
}

// Processor validates completed checkout sessions and turns each one into at
// most one CreditGrant.
type Processor struct {
	catalog *Catalog
	store   SessionStore
	ledger  Ledger
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewProcessor creates a processor over the given session store.
func NewProcessor(store SessionStore, config Config) (*Processor, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	if config.Catalog == nil {
		config.Catalog = DefaultCatalog()
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	if cbc := config.CircuitBreakerConfig; cbc != nil && cbc.Enabled {
		metrics := config.Metrics
		cb := NewDefaultCircuitBreaker(cbc.FailureThreshold, cbc.ResetTimeout, func(state CircuitBreakerState) {
			metrics.RecordCircuitBreakerStateChange(string(state))
		})
		store = NewCircuitBreakerStore(store, cb, metrics)
	}

	return &Processor{
		catalog: config.Catalog,
		store:   store,
		ledger:  config.Ledger,
		metrics: config.Metrics,
		logger:  config.Logger,
		now:     config.Now,
	}, nil
}

// Catalog returns the catalog the processor validates against.
func (p *Processor) Catalog() *Catalog {
	return p.catalog
}

// HandleSubscriptionCompleted validates a completed session and returns the
// grant it entitles the user to. It must only be called with sessions taken
// from a signature-verified event.
//
// Any failure aborts the grant. A session is recorded as processed only after
// it passed every check, and a session recorded as processed is never granted
// again.
func (p *Processor) HandleSubscriptionCompleted(ctx context.Context, session *CheckoutSession) (*CreditGrant, error) {
	if session == nil || session.ID == "" {
		return nil, p.reject("", ReasonInvalidMetadata, fmt.Errorf("%w: session id missing", ErrInvalidMetadata))
	}

	// 1. Metadata presence
	userID := session.Metadata[MetadataUserID]
	tierID := session.Metadata[MetadataTierID]
	if userID == "" || tierID == "" {
		return nil, p.reject(session.ID, ReasonInvalidMetadata,
			fmt.Errorf("%w: session %s requires %s and %s", ErrInvalidMetadata, session.ID, MetadataUserID, MetadataTierID))
	}

	// 2. Tier resolution against the live catalog
	tier, ok := p.catalog.TierByID(tierID)
	if !ok {
		return nil, p.reject(session.ID, ReasonUnknownTier,
			fmt.Errorf("%w: %q on session %s", ErrUnknownTier, tierID, session.ID))
	}

	// 3. Payment status. Incomplete sessions are not recorded so that a later
	// paid event for the same session can still be processed.
	if !session.IsComplete() {
		return nil, p.reject(session.ID, ReasonPaymentIncomplete,
			fmt.Errorf("%w: session %s status=%s payment_status=%s",
				ErrPaymentIncomplete, session.ID, session.Status, session.PaymentStatus))
	}

	// 4. Idempotency check
	seen, err := p.store.Contains(ctx, session.ID)
	if err != nil {
		p.logger.Error("Session store lookup failed",
			Field{"session_id", session.ID}, Field{"error", err.Error()})
		return nil, fmt.Errorf("failed to check session %s: %w", session.ID, err)
	}
	if seen {
		return nil, p.reject(session.ID, ReasonDuplicateSession,
			fmt.Errorf("%w: %s", ErrDuplicateSession, session.ID))
	}

	// 5. Amount consistency. Minor units are only comparable within one
	// currency. Surcharges such as tax are accepted, deficits are not.
	if !strings.EqualFold(session.Currency, tier.Currency) {
		return nil, p.reject(session.ID, ReasonAmountMismatch,
			fmt.Errorf("%w: session %s charged in %q, tier %s is priced in %q",
				ErrAmountMismatch, session.ID, session.Currency, tier.ID, tier.Currency))
	}
	if session.AmountTotal < tier.PriceMinorUnits {
		return nil, p.reject(session.ID, ReasonAmountMismatch,
			fmt.Errorf("%w: session %s charged %d, tier %s costs %d",
				ErrAmountMismatch, session.ID, session.AmountTotal, tier.ID, tier.PriceMinorUnits))
	}

	// 6. Commit the marker. The insert-if-absent is the atomic half of step 4:
	// of two concurrent deliveries only one can win it.
	inserted, err := p.store.MarkProcessed(ctx, session.ID)
	if err != nil {
		p.logger.Error("Session store commit failed",
			Field{"session_id", session.ID}, Field{"error", err.Error()})
		return nil, fmt.Errorf("failed to mark session %s processed: %w", session.ID, err)
	}
	if !inserted {
		return nil, p.reject(session.ID, ReasonDuplicateSession,
			fmt.Errorf("%w: %s", ErrDuplicateSession, session.ID))
	}

	// 7. Credits come from the catalog only, whatever the metadata says.
	grant := &CreditGrant{
		UserID:          userID,
		TierID:          tier.ID,
		CreditsGranted:  tier.CreditsGranted,
		SessionID:       session.ID,
		CatalogVersion:  p.catalog.Version(),
		GrantedAt:       p.now().UTC(),
		PaymentIntentID: session.PaymentIntentID,
		SubscriptionID:  session.SubscriptionID,
		CustomerID:      session.CustomerID,
		AmountTotal:     session.AmountTotal,
		Currency:        session.Currency,
	}

	p.metrics.RecordGrant(tier.ID, tier.CreditsGranted)
	p.logger.Info("Session validated",
		Field{"session_id", session.ID},
		Field{"user_id", userID},
		Field{"tier_id", tier.ID},
		Field{"credits", tier.CreditsGranted},
	)

	return grant, nil
}

// Process validates the session and dispatches the resulting grant to the
// configured ledger. A ledger failure happens after the session marker is
// committed, so it is logged with the whole grant for manual reconciliation.
func (p *Processor) Process(ctx context.Context, session *CheckoutSession) (*CreditGrant, error) {
	if p.ledger == nil {
		return nil, errors.New("gocredits: processor has no ledger configured")
	}

	grant, err := p.HandleSubscriptionCompleted(ctx, session)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = p.ledger.Grant(ctx, grant)
	p.metrics.RecordLedgerOperation(time.Since(start), err)
	if err != nil {
		p.logger.Error("Credit grant dispatch failed; manual reconciliation required",
			Field{"session_id", grant.SessionID},
			Field{"user_id", grant.UserID},
			Field{"tier_id", grant.TierID},
			Field{"credits", grant.CreditsGranted},
			Field{"payment_intent_id", grant.PaymentIntentID},
			Field{"error", err.Error()},
		)
		return grant, fmt.Errorf("failed to dispatch grant for session %s: %w", grant.SessionID, err)
	}

	return grant, nil
}

func (p *Processor) reject(sessionID, reason string, err error) error {
	p.metrics.RecordRejection(reason)

	// Incomplete and duplicate deliveries are routine; the rest need a human.
	fields := []Field{{"session_id", sessionID}, {"reason", reason}, {"error", err.Error()}}
	switch reason {
	case ReasonPaymentIncomplete, ReasonDuplicateSession:
		p.logger.Info("Session not granted", fields...)
	default:
		p.logger.Warn("Session rejected", fields...)
	}
	return err
}
