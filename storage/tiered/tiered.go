// Package tiered provides a Hot/Cold session store that puts a fast cache
// (Hot) in front of a durable store (Cold).
//
// Cold is the source of truth for MarkProcessed: the atomic insert-if-absent
// always runs there. Hot only answers positive Contains lookups early, so a
// replayed delivery is rejected without a round trip to Cold.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Config configures the tiered store behavior
type Config struct {
	// Hot is the L1 cache store (e.g., Memory, Redis)
	Hot gocredits.SessionStore

	// Cold is the L2 persistence store (e.g., Postgres, DynamoDB) and the source of truth
	Cold gocredits.SessionStore

	// AsyncHotFill fills Hot in the background after a Cold write. If false,
	// Hot is filled before MarkProcessed returns.
	AsyncHotFill bool

	// SyncBufferSize is the size of the buffered channel for async fills.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when filling Hot fails.
	AsyncErrorHandler func(error)
}

// Storage implements gocredits.SessionStore over two stores.
// - Read-Through: Contains (Hot → Cold → Populate Hot)
// - Cold-Primary: MarkProcessed (Cold atomic, then Hot fill)
type Storage struct {
	hot  gocredits.SessionStore
	cold gocredits.SessionStore
	conf Config

	// Channel for async hot fills
	syncQueue chan func() error
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// New creates a new tiered session store.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncHotFill {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncHotFill {
		select {
		case <-s.shutdown:
			// Already closed
		default:
			close(s.shutdown)
			s.wg.Wait()
		}
	}
	return nil
}

// startWorker runs the background fill loop.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				if err := job(); err != nil {
					s.reportError(fmt.Errorf("tiered hot fill failed: %w", err))
				}
			case <-s.shutdown:
				// Drain queue on shutdown (best effort)
				for {
					select {
					case job := <-s.syncQueue:
						_ = job() //nolint:errcheck // Best effort during shutdown
					default:
						return
					}
				}
			}
		}
	}()
}

// Contains implements gocredits.SessionStore with a read-through strategy.
// A Hot miss or Hot error falls through to Cold.
func (s *Storage) Contains(ctx context.Context, sessionID string) (bool, error) {
	// 1. Try Hot
	if seen, err := s.hot.Contains(ctx, sessionID); err == nil && seen {
		return true, nil
	}

	// 2. Try Cold (Source of Truth)
	seen, err := s.cold.Contains(ctx, sessionID)
	if err != nil {
		return false, err
	}

	// 3. Populate Hot (Read-Repair)
	if seen {
		s.fillHot(ctx, sessionID)
	}
	return seen, nil
}

// MarkProcessed implements gocredits.SessionStore. Only Cold decides whether
// the insert won. Hot is filled either way so later lookups stay local.
func (s *Storage) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	inserted, err := s.cold.MarkProcessed(ctx, sessionID)
	if err != nil {
		return false, err
	}

	s.fillHot(ctx, sessionID)
	return inserted, nil
}

func (s *Storage) fillHot(ctx context.Context, sessionID string) {
	if !s.conf.AsyncHotFill {
		if _, err := s.hot.MarkProcessed(ctx, sessionID); err != nil {
			s.reportError(fmt.Errorf("tiered storage: hot fill failed: %w", err))
		}
		return
	}

	// Attempt to enqueue non-blocking
	select {
	case s.syncQueue <- func() error {
		// Context background ensures completion even if request cancels
		_, err := s.hot.MarkProcessed(context.Background(), sessionID)
		return err
	}:
	default:
		s.reportError(errors.New("tiered storage: sync queue full, dropping hot fill"))
	}
}

func (s *Storage) reportError(err error) {
	if s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(err)
	}
}
