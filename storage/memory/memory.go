// Package memory provides in-memory implementations of gocredits.SessionStore
// and gocredits.Ledger.
// The session store is a bounded single-instance set: use it alone for tests
// and development, or as the hot tier in front of a durable store.
package memory

import (
	"context"
	"sync"
)

const (
	defaultMaxEntries = 1000
	defaultTrimCount  = 100
)

// Config holds in-memory session store configuration
type Config struct {
	// MaxEntries is the size above which old entries are evicted (default: 1000)
	MaxEntries int

	// TrimCount is how many of the oldest entries are evicted at once (default: 100)
	TrimCount int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxEntries: defaultMaxEntries,
		TrimCount:  defaultTrimCount,
	}
}

// Storage implements gocredits.SessionStore using a map and an insertion-ordered queue
type Storage struct {
	mu        sync.Mutex
	processed map[string]struct{}
	order     []string
	config    Config
}

// New creates a new in-memory session store with the default retention policy
func New() *Storage {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new in-memory session store
func NewWithConfig(config Config) *Storage {
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaultMaxEntries
	}
	if config.TrimCount <= 0 {
		config.TrimCount = defaultTrimCount
	}
	return &Storage{
		processed: make(map[string]struct{}),
		order:     make([]string, 0, config.MaxEntries+1),
		config:    config,
	}
}

// Contains implements gocredits.SessionStore
func (s *Storage) Contains(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.processed[sessionID]
	return ok, nil
}

// MarkProcessed implements gocredits.SessionStore.
// The check and the insert share one critical section.
func (s *Storage) MarkProcessed(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[sessionID]; ok {
		return false, nil
	}

	s.processed[sessionID] = struct{}{}
	s.order = append(s.order, sessionID)

	if len(s.order) > s.config.MaxEntries {
		s.evictOldest()
	}

	return true, nil
}

// evictOldest drops the oldest TrimCount entries. The newest entry always survives.
func (s *Storage) evictOldest() {
	n := s.config.TrimCount
	if n > len(s.order)-1 {
		n = len(s.order) - 1
	}
	for _, id := range s.order[:n] {
		delete(s.processed, id)
	}
	remaining := make([]string, len(s.order)-n, s.config.MaxEntries+1)
	copy(remaining, s.order[n:])
	s.order = remaining
}

// Len returns the number of retained session ids
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// Clear removes all entries (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = make(map[string]struct{})
	s.order = s.order[:0]
}
