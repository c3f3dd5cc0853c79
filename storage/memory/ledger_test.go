package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gocredits/pkg/gocredits"
)

var (
	_ gocredits.Ledger        = (*Ledger)(nil)
	_ gocredits.BalanceReader = (*Ledger)(nil)
)

func TestLedger_Grant(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	grant := &gocredits.CreditGrant{UserID: "u1", TierID: "explorer", CreditsGranted: 5_000_000, SessionID: "cs_1"}
	require.NoError(t, ledger.Grant(ctx, grant))

	balance, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), balance)

	// Same session applied twice does not double the balance
	require.NoError(t, ledger.Grant(ctx, grant))
	balance, err = ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), balance)

	second := &gocredits.CreditGrant{UserID: "u1", TierID: "artisan", CreditsGranted: 16_000_000, SessionID: "cs_2"}
	require.NoError(t, ledger.Grant(ctx, second))
	balance, err = ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(21_000_000), balance)
	assert.Len(t, ledger.Grants(), 2)
}

func TestLedger_GrantInvalid(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	tests := []struct {
		name  string
		grant *gocredits.CreditGrant
	}{
		{name: "nil grant", grant: nil},
		{name: "missing user", grant: &gocredits.CreditGrant{SessionID: "cs_1", CreditsGranted: 1}},
		{name: "missing session", grant: &gocredits.CreditGrant{UserID: "u1", CreditsGranted: 1}},
		{name: "zero credits", grant: &gocredits.CreditGrant{UserID: "u1", SessionID: "cs_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ledger.Grant(ctx, tt.grant))
		})
	}
}
