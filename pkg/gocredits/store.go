package gocredits

import "context"

// SessionStore records which checkout sessions have already produced a grant.
// Implementations must make MarkProcessed an atomic insert-if-absent: for any
// session id at most one call ever returns true.
type SessionStore interface {
	// Contains reports whether the session has already been processed.
	Contains(ctx context.Context, sessionID string) (bool, error)

	// MarkProcessed records the session. It returns false, nil when the session
	// was already present. Retention eviction, if any, happens here and must
	// never evict the id being inserted.
	MarkProcessed(ctx context.Context, sessionID string) (bool, error)
}

// Ledger persists credit balances. It receives validated, de-duplicated grants.
type Ledger interface {
	// Grant applies the grant to the user's balance.
	Grant(ctx context.Context, grant *CreditGrant) error
}

// BalanceReader is implemented by ledgers that can report a user's balance.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}
