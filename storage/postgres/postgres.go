// Package postgres provides a PostgreSQL implementation of gocredits.SessionStore
// and gocredits.Ledger.
// Session markers are inserted with INSERT ... ON CONFLICT so that of two
// concurrent inserts only one affects a row. Grants and balance updates share
// one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Schema creates the tables used by Storage. Migrate applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS processed_sessions (
	session_id   TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS processed_sessions_expires_at_idx ON processed_sessions (expires_at);

CREATE TABLE IF NOT EXISTS credit_grants (
	id                UUID PRIMARY KEY,
	session_id        TEXT NOT NULL UNIQUE,
	user_id           TEXT NOT NULL,
	tier_id           TEXT NOT NULL,
	credits           BIGINT NOT NULL,
	catalog_version   TEXT NOT NULL,
	payment_intent_id TEXT NOT NULL DEFAULT '',
	subscription_id   TEXT NOT NULL DEFAULT '',
	customer_id       TEXT NOT NULL DEFAULT '',
	amount_total      BIGINT NOT NULL,
	currency          TEXT NOT NULL,
	granted_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS credit_grants_user_id_idx ON credit_grants (user_id);

CREATE TABLE IF NOT EXISTS credit_balances (
	user_id    TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Storage implements gocredits.SessionStore, gocredits.Ledger and
// gocredits.BalanceReader using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
	now    func() time.Time

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// SessionTTL is how long a processed-session marker is retained (default: 30 days)
	SessionTTL time.Duration

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often expired markers are deleted

	// Logger reports background cleanup failures (default: gocredits.NoopLogger)
	Logger gocredits.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		SessionTTL:      30 * 24 * time.Hour,
		CleanupEnabled:  true,
		CleanupInterval: time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * 24 * time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.Logger == nil {
		config.Logger = &gocredits.NoopLogger{}
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())

	s := &Storage{
		pool:        pool,
		config:      config,
		now:         time.Now,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Migrate creates the tables if they do not exist
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// Contains implements gocredits.SessionStore. Expired markers count as absent.
func (s *Storage) Contains(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM processed_sessions WHERE session_id = $1 AND expires_at > $2
		)`, sessionID, s.now().UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists, nil
}

// MarkProcessed implements gocredits.SessionStore.
// A live marker blocks the insert; an expired one that cleanup has not yet
// removed is replaced in the same statement.
func (s *Storage) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO processed_sessions (session_id, processed_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE
			SET processed_at = EXCLUDED.processed_at, expires_at = EXCLUDED.expires_at
			WHERE processed_sessions.expires_at <= EXCLUDED.processed_at`,
		sessionID, now, now.Add(s.config.SessionTTL))
	if err != nil {
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Grant implements gocredits.Ledger. Applying the same session twice is a no-op.
func (s *Storage) Grant(ctx context.Context, grant *gocredits.CreditGrant) error {
	if grant == nil || grant.UserID == "" || grant.SessionID == "" {
		return fmt.Errorf("invalid grant")
	}
	if grant.CreditsGranted <= 0 {
		return fmt.Errorf("invalid grant amount %d", grant.CreditsGranted)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx,
		`INSERT INTO credit_grants (
			id, session_id, user_id, tier_id, credits, catalog_version,
			payment_intent_id, subscription_id, customer_id, amount_total, currency, granted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO NOTHING`,
		uuid.New(), grant.SessionID, grant.UserID, grant.TierID, grant.CreditsGranted, grant.CatalogVersion,
		grant.PaymentIntentID, grant.SubscriptionID, grant.CustomerID, grant.AmountTotal, grant.Currency,
		grant.GrantedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_balances (user_id, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		grant.UserID, grant.CreditsGranted, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit grant: %w", err)
	}
	return nil
}

// Balance implements gocredits.BalanceReader
func (s *Storage) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM credit_balances WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GrantsForUser returns the user's recorded grants, newest first
func (s *Storage) GrantsForUser(ctx context.Context, userID string, limit int) ([]gocredits.CreditGrant, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id, user_id, tier_id, credits, catalog_version,
			payment_intent_id, subscription_id, customer_id, amount_total, currency, granted_at
		FROM credit_grants WHERE user_id = $1
		ORDER BY granted_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []gocredits.CreditGrant
	for rows.Next() {
		var g gocredits.CreditGrant
		if err := rows.Scan(&g.SessionID, &g.UserID, &g.TierID, &g.CreditsGranted, &g.CatalogVersion,
			&g.PaymentIntentID, &g.SubscriptionID, &g.CustomerID, &g.AmountTotal, &g.Currency, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}
	return grants, nil
}

// startCleanup runs periodic deletion of expired session markers
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Cleanup(ctx); err != nil && ctx.Err() == nil {
				s.config.Logger.Warn("Processed session cleanup failed", gocredits.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}

// Cleanup deletes expired session markers. It can also be called manually.
func (s *Storage) Cleanup(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM processed_sessions WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cleanup processed sessions: %w", err)
	}
	return nil
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
