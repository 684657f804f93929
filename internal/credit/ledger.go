// Package credit implements the credit ledger: immediate deduction at unlock
// time, full refund on partial failure, and the supporting grant/purchase/
// adjustment operations. Every operation mutates the balance and appends an
// immutable log row in one unit of work.
package credit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
	"github.com/chatlens-ai/insight-platform/pkg/metrics"
)

// Ledger performs credit operations against the store.
type Ledger struct {
	store  store.CreditStore
	logger *logger.Logger
}

// NewLedger creates a ledger service.
func NewLedger(s store.CreditStore, log *logger.Logger) *Ledger {
	return &Ledger{store: s, logger: log}
}

// UnlockCost sums the credit cost of the given insight types.
func UnlockCost(types []model.InsightType) int {
	total := 0
	for _, it := range types {
		total += it.CreditCost
	}
	return total
}

// DeductUnlock charges the full cost of a category unlock in one
// transaction. Either the whole amount is deducted or nothing is: an
// insufficient balance returns *model.InsufficientCreditsError and writes
// no rows.
func (l *Ledger) DeductUnlock(ctx context.Context, userID, chatID string, types []model.InsightType) (*model.CreditTransaction, error) {
	cost := UnlockCost(types)

	breakdown := make(map[string]any, len(types))
	for _, it := range types {
		breakdown[it.ID] = it.CreditCost
	}

	txn, err := l.store.ApplyTransaction(ctx, &model.CreditTransaction{
		UserID:      userID,
		Amount:      -cost,
		Type:        model.TransactionInsightUnlock,
		ChatID:      &chatID,
		Description: fmt.Sprintf("unlocked %d insights", len(types)),
		Metadata: map[string]any{
			"insight_count":  len(types),
			"cost_breakdown": breakdown,
		},
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditTransactions.WithLabelValues(string(model.TransactionInsightUnlock)).Inc()
	l.logger.Info("credits deducted for unlock",
		zap.String("user_id", userID),
		zap.String("chat_id", chatID),
		zap.Int("amount", cost),
		zap.Int("balance_after", txn.BalanceAfter),
	)
	return txn, nil
}

// RefundUnlock credits the full original unlock amount back after a job
// finishes with failures. Always the whole charge, never pro-rated: the
// deduction was one lump sum, so the refund is too.
func (l *Ledger) RefundUnlock(ctx context.Context, chargeID string, failed, total int) (*model.CreditTransaction, error) {
	charge, err := l.store.GetTransaction(ctx, chargeID)
	if err != nil {
		return nil, fmt.Errorf("load unlock charge: %w", err)
	}

	txn, err := l.store.ApplyTransaction(ctx, &model.CreditTransaction{
		UserID:      charge.UserID,
		Amount:      -charge.Amount,
		Type:        model.TransactionRefund,
		ChatID:      charge.ChatID,
		ReferenceID: &charge.ID,
		Description: fmt.Sprintf("refund: %d of %d insights failed", failed, total),
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditTransactions.WithLabelValues(string(model.TransactionRefund)).Inc()
	l.logger.Info("unlock refunded",
		zap.String("user_id", charge.UserID),
		zap.String("charge_id", charge.ID),
		zap.Int("amount", -charge.Amount),
		zap.Int("failed", failed),
		zap.Int("total", total),
	)
	return txn, nil
}

// GrantSignupBonus credits the signup bonus to a new user.
func (l *Ledger) GrantSignupBonus(ctx context.Context, userID string, amount int) (*model.CreditTransaction, error) {
	return l.apply(ctx, &model.CreditTransaction{
		UserID:      userID,
		Amount:      amount,
		Type:        model.TransactionSignupBonus,
		Description: "signup bonus",
	})
}

// Purchase credits a provider-verified credit purchase.
func (l *Ledger) Purchase(ctx context.Context, userID string, amount int, providerRef string) (*model.CreditTransaction, error) {
	return l.apply(ctx, &model.CreditTransaction{
		UserID:      userID,
		Amount:      amount,
		Type:        model.TransactionPurchase,
		Description: "credit purchase",
		Metadata:    map[string]any{"provider_ref": providerRef},
	})
}

// AdminAdjust applies a signed manual adjustment.
func (l *Ledger) AdminAdjust(ctx context.Context, userID string, amount int, reason string) (*model.CreditTransaction, error) {
	return l.apply(ctx, &model.CreditTransaction{
		UserID:      userID,
		Amount:      amount,
		Type:        model.TransactionAdminAdjustment,
		Description: reason,
	})
}

// RefundTransaction reverses an arbitrary prior transaction in full.
func (l *Ledger) RefundTransaction(ctx context.Context, transactionID, reason string) (*model.CreditTransaction, error) {
	original, err := l.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, &model.CreditTransaction{
		UserID:      original.UserID,
		Amount:      -original.Amount,
		Type:        model.TransactionRefund,
		ChatID:      original.ChatID,
		ReferenceID: &original.ID,
		Description: reason,
	})
}

// Balance returns the user's current balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	return l.store.GetBalance(ctx, userID)
}

// History returns the user's ledger rows in creation order.
func (l *Ledger) History(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	return l.store.ListTransactions(ctx, userID)
}

func (l *Ledger) apply(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) {
	applied, err := l.store.ApplyTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}
	metrics.CreditTransactions.WithLabelValues(string(txn.Type)).Inc()
	return applied, nil
}
