package gocredits

import "time"

// Metrics defines the interface for tracking grant processing.
type Metrics interface {
	// RecordGrant records a credit grant emitted for a tier.
	RecordGrant(tierID string, credits int64)

	// RecordRejection records a session rejected by the validation pipeline.
	// reason is one of "invalid_metadata", "unknown_tier", "payment_incomplete",
	// "duplicate_session", "amount_mismatch".
	RecordRejection(reason string)

	// RecordStoreOperation records the duration and status of a session store operation.
	RecordStoreOperation(operation string, duration time.Duration, err error)

	// RecordLedgerOperation records the duration and status of a ledger dispatch.
	RecordLedgerOperation(duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordGrant(tierID string, credits int64)                                 {}
func (n *NoopMetrics) RecordRejection(reason string)                                            {}
func (n *NoopMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordLedgerOperation(duration time.Duration, err error)                  {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                             {}
