package economy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/model"
)

func TestComputeTax(t *testing.T) {
	cfg := config.TaxConfig{FreeAmount: 10000, Brackets: config.DefaultTaxBrackets()}

	tests := []struct {
		name    string
		balance float64
		want    float64
	}{
		{"negative", -500, 0},
		{"below threshold", 9999, 0},
		{"at threshold", 10000, 0},
		{"first bracket", 20000, 100},
		{"second bracket", 60000, 600},
		{"third bracket", 150000, 2900},
		{"top bracket", 600000, 18400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeTax(tt.balance, cfg))
		})
	}
}

func TestComputeTax_FreeAmountAboveFirstBracket(t *testing.T) {
	cfg := config.TaxConfig{FreeAmount: 30000, Brackets: []config.TaxBracket{{From: 50000, Rate: 0.02}, {From: 10000, Rate: 0.01}}}
	// 30000..50000 at 1%, 50000..60000 at 2%
	assert.Equal(t, 400.0, ComputeTax(60000, cfg))
	assert.Equal(t, 0.01, EffectiveTaxRate(40000, config.TaxConfig{FreeAmount: 0, Brackets: []config.TaxBracket{{From: 0, Rate: 0.01}}}))
	assert.Equal(t, 0.0, EffectiveTaxRate(0, cfg))
}

func TestTreasury_CollectTax(t *testing.T) {
	ledger, history := newTestLedger(t)
	ctx := context.Background()
	notifier := newRecordingNotifier()
	treasury := NewTreasury(ledger, config.TaxConfig{FreeAmount: 10000, Brackets: config.DefaultTaxBrackets()}, notifier)

	require.NoError(t, ledger.SetBalance(ctx, "alice", 60000))
	require.NoError(t, ledger.SetBalance(ctx, "bob", 5000))
	require.NoError(t, treasury.SetBalance(ctx, 1000000))

	collected, total := treasury.CollectAllTax(ctx)
	assert.Equal(t, 600.0, total)
	require.Len(t, collected, 1)
	assert.Equal(t, "alice", collected[0].AccountID)

	assert.Equal(t, 59400.0, ledger.GetBalance("alice"))
	assert.Equal(t, 5000.0, ledger.GetBalance("bob"))
	assert.Equal(t, 1000600.0, treasury.Balance())
	assert.Len(t, history.GetTransactionsByType("alice", model.TransactionTax), 1)
	assert.Len(t, notifier.For("alice"), 1)

	assert.True(t, treasury.Withdraw(ctx, 600))
	assert.False(t, treasury.Withdraw(ctx, 2000000))
	assert.Equal(t, 0.0, treasury.TaxOwed(TreasuryAccountID))
}
