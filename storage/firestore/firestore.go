// Package firestore provides a Firestore implementation of gocredits.SessionStore.
// A processed session is a document keyed by session id. Create fails with
// AlreadyExists when the document is present, which makes the insert atomic.
//
// Expired markers count as absent. Deleting them is left to a Firestore TTL
// policy on the expiresAt field.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection = "billing_processed_sessions"
	defaultSessionTTL = 30 * 24 * time.Hour
)

// Storage implements gocredits.SessionStore using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
	now        func() time.Time
}

// Config holds Firestore storage configuration
type Config struct {
	// SessionsCollection is the Firestore collection for processed sessions
	// Default: "billing_processed_sessions"
	SessionsCollection string

	// SessionTTL is how long a processed-session marker is retained (default: 30 days)
	SessionTTL time.Duration
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.SessionsCollection == "" {
		config.SessionsCollection = defaultCollection
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaultSessionTTL
	}

	return &Storage{
		client:     client,
		collection: config.SessionsCollection,
		ttl:        config.SessionTTL,
		now:        time.Now,
	}, nil
}

// Contains implements gocredits.SessionStore
func (s *Storage) Contains(ctx context.Context, sessionID string) (bool, error) {
	snap, err := s.client.Collection(s.collection).Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get session: %w", err)
	}
	if !snap.Exists() {
		return false, nil
	}
	return !s.expired(snap.Data()), nil
}

// MarkProcessed implements gocredits.SessionStore
func (s *Storage) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	ref := s.client.Collection(s.collection).Doc(sessionID)

	_, err := ref.Create(ctx, s.record())
	if err == nil {
		return true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}

	// The document exists. Replace it only if it has expired, inside a
	// transaction so two revivals cannot both win.
	inserted := false
	err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		inserted = false
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if snap != nil && snap.Exists() && !s.expired(snap.Data()) {
			return nil
		}
		inserted = true
		return tx.Set(ref, s.record())
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}
	return inserted, nil
}

// Ping checks that the sessions collection can be read
func (s *Storage) Ping(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *Storage) record() map[string]interface{} {
	now := s.now().UTC()
	return map[string]interface{}{
		"processedAt": now,
		"expiresAt":   now.Add(s.ttl),
	}
}

func (s *Storage) expired(data map[string]interface{}) bool {
	expiresAt, ok := data["expiresAt"].(time.Time)
	if !ok || expiresAt.IsZero() {
		return false
	}
	return !s.now().UTC().Before(expiresAt)
}
