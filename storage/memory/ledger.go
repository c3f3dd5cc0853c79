package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

// Ledger implements gocredits.Ledger using in-memory maps.
// Applying the same session twice is a no-op.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]int64
	grants   map[string]gocredits.CreditGrant
}

// NewLedger creates a new in-memory ledger
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]int64),
		grants:   make(map[string]gocredits.CreditGrant),
	}
}

// Grant implements gocredits.Ledger
func (l *Ledger) Grant(_ context.Context, grant *gocredits.CreditGrant) error {
	if grant == nil || grant.UserID == "" || grant.SessionID == "" {
		return fmt.Errorf("invalid grant")
	}
	if grant.CreditsGranted <= 0 {
		return fmt.Errorf("invalid grant amount %d", grant.CreditsGranted)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.grants[grant.SessionID]; ok {
		return nil
	}
	l.grants[grant.SessionID] = *grant
	l.balances[grant.UserID] += grant.CreditsGranted
	return nil
}

// Balance implements gocredits.BalanceReader
func (l *Ledger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[userID], nil
}

// Grants returns a copy of all applied grants (useful for testing)
func (l *Ledger) Grants() []gocredits.CreditGrant {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]gocredits.CreditGrant, 0, len(l.grants))
	for _, g := range l.grants {
		out = append(out, g)
	}
	return out
}
