// Package redis provides a Redis implementation of gocredits.SessionStore and
// gocredits.Ledger.
// Session markers use SET NX with a TTL; grants are applied by a Lua script so
// the grant record and the balance increment are one atomic step.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

const (
	defaultKeyPrefix  = "gocredits:"
	defaultSessionTTL = 30 * 24 * time.Hour
)

// Storage implements gocredits.SessionStore, gocredits.Ledger and
// gocredits.BalanceReader using Redis
type Storage struct {
	client  redis.UniversalClient
	config  Config
	scripts map[string]*redis.Script
	now     func() time.Time
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gocredits:")
	KeyPrefix string

	// SessionTTL is how long a processed-session marker is retained (default: 30 days)
	SessionTTL time.Duration

	// GrantTTL is how long ledger grant records are retained (0 = no expiration)
	GrantTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  defaultKeyPrefix,
		SessionTTL: defaultSessionTTL,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaultSessionTTL
	}

	s := &Storage{
		client:  client,
		config:  config,
		scripts: make(map[string]*redis.Script),
		now:     time.Now,
	}

	s.loadScripts()

	return s, nil
}

// loadScripts loads and compiles Lua scripts for atomic operations
func (s *Storage) loadScripts() {
	// Record the grant once and credit the balance in the same step.
	// Returns {applied, balance}.
	s.scripts["grant"] = redis.NewScript(`
		local grantKey = KEYS[1]
		local balanceKey = KEYS[2]
		local record = ARGV[1]
		local credits = tonumber(ARGV[2])
		local ttl = tonumber(ARGV[3])

		local created
		if ttl > 0 then
			created = redis.call('SET', grantKey, record, 'NX', 'EX', ttl)
		else
			created = redis.call('SET', grantKey, record, 'NX')
		end

		if not created then
			local current = redis.call('GET', balanceKey)
			if current then
				return {0, tonumber(current)}
			end
			return {0, 0}
		end

		local balance = redis.call('INCRBY', balanceKey, credits)
		return {1, balance}
	`)
}

// Contains implements gocredits.SessionStore
func (s *Storage) Contains(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed implements gocredits.SessionStore with SET NX EX.
// Retention is the key TTL, so the inserted marker is never evicted early.
func (s *Storage) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	processedAt := s.now().UTC().Format(time.RFC3339Nano)
	ok, err := s.client.SetNX(ctx, s.sessionKey(sessionID), processedAt, s.config.SessionTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}
	return ok, nil
}

// Grant implements gocredits.Ledger. Applying the same session twice is a no-op.
func (s *Storage) Grant(ctx context.Context, grant *gocredits.CreditGrant) error {
	if grant == nil || grant.UserID == "" || grant.SessionID == "" {
		return fmt.Errorf("invalid grant")
	}
	if grant.CreditsGranted <= 0 {
		return fmt.Errorf("invalid grant amount %d", grant.CreditsGranted)
	}

	record, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}

	keys := []string{s.grantKey(grant.UserID, grant.SessionID), s.balanceKey(grant.UserID)}
	result, err := s.scripts["grant"].Run(ctx, s.client, keys,
		string(record), grant.CreditsGranted, int64(s.config.GrantTTL.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("failed to apply grant: %w", err)
	}

	if _, _, err := parseGrantResult(result); err != nil {
		return err
	}
	return nil
}

// Balance implements gocredits.BalanceReader
func (s *Storage) Balance(ctx context.Context, userID string) (int64, error) {
	val, err := s.client.Get(ctx, s.balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}
	return balance, nil
}

// GetGrant returns the recorded grant for a session, or nil when none exists
func (s *Storage) GetGrant(ctx context.Context, userID, sessionID string) (*gocredits.CreditGrant, error) {
	val, err := s.client.Get(ctx, s.grantKey(userID, sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	var grant gocredits.CreditGrant
	if err := json.Unmarshal([]byte(val), &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &grant, nil
}

// Ping checks the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// parseGrantResult parses the {applied, balance} reply of the grant script
func parseGrantResult(result interface{}) (applied bool, balance int64, err error) {
	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected grant script result: %v", result)
	}
	flag, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected grant flag: %v", values[0])
	}
	balance, ok = values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected balance: %v", values[1])
	}
	return flag == 1, balance, nil
}

func (s *Storage) sessionKey(sessionID string) string {
	return s.config.KeyPrefix + "session:" + sessionID
}

// Grant and balance keys share the {userID} hash tag so the grant script
// touches a single cluster slot.
func (s *Storage) grantKey(userID, sessionID string) string {
	return s.config.KeyPrefix + "grant:{" + userID + "}:" + sessionID
}

func (s *Storage) balanceKey(userID string) string {
	return s.config.KeyPrefix + "balance:{" + userID + "}"
}
