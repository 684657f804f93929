// Package store provides the persistence interfaces for the insight
// platform, an in-memory implementation, and a GORM/Postgres implementation.
// Every operation described as atomic is all-or-nothing in both.
package store

import (
	"context"
	"time"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

// ChatStore persists chats and their status projections.
type ChatStore interface {
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	SaveChat(ctx context.Context, chat *model.Chat) error
	SetIndexingStatus(ctx context.Context, chatID string, status model.IndexingStatus) error
	SetGenerationStatus(ctx context.Context, chatID string, status model.GenerationStatus) error
}

// MessageStore persists immutable chat messages.
type MessageStore interface {
	SaveMessages(ctx context.Context, messages []model.Message) error
	// ListMessages returns a chat's messages ordered by timestamp.
	ListMessages(ctx context.Context, chatID string) ([]model.Message, error)
}

// ChunkStore persists conversation chunks. Chunks are superseded wholesale,
// never mutated.
type ChunkStore interface {
	// ReplaceChunks atomically discards a chat's chunks and stores the new set.
	ReplaceChunks(ctx context.Context, chatID string, chunks []model.ConversationChunk) error
	ListChunks(ctx context.Context, chatID string) ([]model.ConversationChunk, error)
}

// InsightTypeStore reads insight type reference data.
type InsightTypeStore interface {
	GetInsightType(ctx context.Context, id string) (*model.InsightType, error)
	ListActiveInsightTypes(ctx context.Context, categoryID string) ([]model.InsightType, error)
	ListCategoryIDs(ctx context.Context) ([]string, error)
	SaveInsightType(ctx context.Context, it *model.InsightType) error
}

// InsightStore persists generated insights, unique per (chat, insight type).
type InsightStore interface {
	GetInsight(ctx context.Context, id string) (*model.Insight, error)
	FindInsightByChatAndType(ctx context.Context, chatID, insightTypeID string) (*model.Insight, error)
	SaveInsight(ctx context.Context, insight *model.Insight) error
	ListInsightsByChat(ctx context.Context, chatID string) ([]model.Insight, error)
}

// JobStore persists generation jobs. Progress mutation is serialized per job:
// two concurrent ApplyJobProgress calls for the same job never observe the
// same pre-increment counters.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.InsightGenerationJob) error
	GetJob(ctx context.Context, id string) (*model.InsightGenerationJob, error)
	HasUnresolvedJob(ctx context.Context, chatID string) (bool, error)

	// MarkJobStarted transitions queued -> running. Any other starting
	// state is model.ErrInvalidTransition.
	MarkJobStarted(ctx context.Context, jobID string, at time.Time) error

	// ApplyJobProgress applies one work item's delta under a per-job lock
	// and returns the post-delta snapshot. The first failure's error text
	// wins; later error text for the same job is discarded. Applying to a
	// terminal job is model.ErrInvalidTransition.
	ApplyJobProgress(ctx context.Context, jobID string, delta model.ProgressDelta) (*model.InsightGenerationJob, error)

	// FinalizeJob transitions running -> status exactly once. Returns
	// false without error if the job is already terminal, which is what
	// makes finalization idempotent under racing progress updates.
	FinalizeJob(ctx context.Context, jobID string, status model.JobStatus, at time.Time) (bool, error)
}

// CreditStore persists the credit ledger. ApplyTransaction mutates the
// balance and appends the log row in one unit of work; a mutation that would
// drive the balance negative fails with *model.InsufficientCreditsError and
// writes nothing.
type CreditStore interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	ApplyTransaction(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error)
	GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error)
	// ListTransactions returns a user's ledger rows in creation order.
	ListTransactions(ctx context.Context, userID string) ([]model.CreditTransaction, error)
}

// Store bundles every persistence concern the core touches.
type Store interface {
	ChatStore
	MessageStore
	ChunkStore
	InsightTypeStore
	InsightStore
	JobStore
	CreditStore
}
