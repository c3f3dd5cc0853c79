package gocredits

import (
	"context"
	"time"
)

// CircuitBreakerStore wraps a SessionStore with circuit breaker protection.
// An open circuit surfaces as an error, so the processor keeps failing closed
// instead of granting without an idempotency record.
type CircuitBreakerStore struct {
	store   SessionStore
	cb      CircuitBreaker
	metrics Metrics
}

// NewCircuitBreakerStore creates a new store wrapper with circuit breaker.
func NewCircuitBreakerStore(store SessionStore, cb CircuitBreaker, metrics Metrics) *CircuitBreakerStore {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &CircuitBreakerStore{
		store:   store,
		cb:      cb,
		metrics: metrics,
	}
}

func (s *CircuitBreakerStore) Contains(ctx context.Context, sessionID string) (bool, error) {
	start := time.Now()
	var found bool
	err := s.cb.Execute(ctx, func() error {
		var e error
		found, e = s.store.Contains(ctx, sessionID)
		return e
	})
	s.metrics.RecordStoreOperation("contains", time.Since(start), err)
	return found, err
}

func (s *CircuitBreakerStore) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	start := time.Now()
	var inserted bool
	err := s.cb.Execute(ctx, func() error {
		var e error
		inserted, e = s.store.MarkProcessed(ctx, sessionID)
		return e
	})
	s.metrics.RecordStoreOperation("mark_processed", time.Since(start), err)
	return inserted, err
}
