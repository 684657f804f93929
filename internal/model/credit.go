package model

import (
	"time"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionSignupBonus     TransactionType = "signup_bonus"
	TransactionPurchase        TransactionType = "purchase"
	TransactionInsightUnlock   TransactionType = "insight_unlock"
	TransactionRefund          TransactionType = "refund"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPendingTS TransactionStatus = "pending"
)

// CreditTransaction is an immutable ledger entry. Amount is signed; the
// BalanceAfter snapshots form a consistent running total when a user's rows
// are replayed in creation order.
type CreditTransaction struct {
	ID           string            `json:"id" gorm:"primaryKey"`
	UserID       string            `json:"user_id" gorm:"index"`
	Amount       int               `json:"amount"`
	BalanceAfter int               `json:"balance_after"`
	Type         TransactionType   `json:"type"`
	Status       TransactionStatus `json:"status"`
	ChatID       *string           `json:"chat_id,omitempty"`
	ReferenceID  *string           `json:"reference_id,omitempty"`
	Description  string            `json:"description"`
	Metadata     map[string]any    `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt    time.Time         `json:"created_at"`
}

// UserBalance is the authoritative current balance for a user. The ledger is
// the audit trail; this row is the value every mutation reads and writes
// inside its critical section.
type UserBalance struct {
	UserID    string    `json:"user_id" gorm:"primaryKey"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
