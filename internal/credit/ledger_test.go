package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

func insightTypes(costs ...int) []model.InsightType {
	out := make([]model.InsightType, len(costs))
	for i, c := range costs {
		out[i] = model.InsightType{ID: string(rune('a' + i)), CreditCost: c, Active: true}
	}
	return out
}

func TestLedger_DeductUnlock(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLedger(s, logger.NewNop())
	ctx := context.Background()

	_, err := l.GrantSignupBonus(ctx, "u1", 100)
	require.NoError(t, err)

	txn, err := l.DeductUnlock(ctx, "u1", "chat-1", insightTypes(5, 5, 5))
	require.NoError(t, err)

	assert.Equal(t, -15, txn.Amount)
	assert.Equal(t, 85, txn.BalanceAfter)
	assert.Equal(t, model.TransactionInsightUnlock, txn.Type)
	require.NotNil(t, txn.ChatID)
	assert.Equal(t, "chat-1", *txn.ChatID)
	assert.Equal(t, 3, txn.Metadata["insight_count"])

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 85, balance)
}

func TestLedger_DeductUnlock_Insufficient(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLedger(s, logger.NewNop())
	ctx := context.Background()

	_, err := l.GrantSignupBonus(ctx, "u1", 5)
	require.NoError(t, err)

	_, err = l.DeductUnlock(ctx, "u1", "chat-1", insightTypes(5, 5, 5))

	var insufficient *model.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 15, insufficient.Required)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, 10, insufficient.Deficit)

	// No partial charge.
	history, err := l.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_RefundUnlock_FullAmountReferencesCharge(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLedger(s, logger.NewNop())
	ctx := context.Background()

	_, err := l.GrantSignupBonus(ctx, "u1", 100)
	require.NoError(t, err)
	charge, err := l.DeductUnlock(ctx, "u1", "chat-1", insightTypes(5, 5, 5))
	require.NoError(t, err)

	refund, err := l.RefundUnlock(ctx, charge.ID, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 15, refund.Amount, "full refund even for a single failure")
	assert.Equal(t, model.TransactionRefund, refund.Type)
	require.NotNil(t, refund.ReferenceID)
	assert.Equal(t, charge.ID, *refund.ReferenceID)
	assert.Equal(t, "refund: 1 of 3 insights failed", refund.Description)

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestLedger_ReplayConsistency(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLedger(s, logger.NewNop())
	ctx := context.Background()

	_, err := l.GrantSignupBonus(ctx, "u1", 50)
	require.NoError(t, err)
	_, err = l.Purchase(ctx, "u1", 100, "provider-ref-1")
	require.NoError(t, err)
	charge, err := l.DeductUnlock(ctx, "u1", "chat-1", insightTypes(10, 10))
	require.NoError(t, err)
	_, err = l.RefundUnlock(ctx, charge.ID, 2, 2)
	require.NoError(t, err)
	_, err = l.AdminAdjust(ctx, "u1", -25, "support correction")
	require.NoError(t, err)

	history, err := l.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 5)

	running := 0
	for _, txn := range history {
		running += txn.Amount
		assert.Equal(t, running, txn.BalanceAfter)
	}

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, running, balance)
}

func TestLedger_RefundTransaction(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLedger(s, logger.NewNop())
	ctx := context.Background()

	purchase, err := l.Purchase(ctx, "u1", 40, "ref")
	require.NoError(t, err)

	refund, err := l.RefundTransaction(ctx, purchase.ID, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, -40, refund.Amount)
	require.NotNil(t, refund.ReferenceID)
	assert.Equal(t, purchase.ID, *refund.ReferenceID)

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}
