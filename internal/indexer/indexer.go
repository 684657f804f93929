// Package indexer turns a chat's raw messages into stored conversation
// chunks and a searchable vector index. Re-indexing supersedes the previous
// chunk set wholesale and invalidates any cached retrieval context built on
// it.
package indexer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/chunker"
	"github.com/chatlens-ai/insight-platform/internal/embedding"
	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/internal/vectorindex"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
	"github.com/chatlens-ai/insight-platform/pkg/metrics"
)

// Invalidator drops cached retrieval context for a (chat, category) pair.
type Invalidator interface {
	Invalidate(ctx context.Context, chatID, categoryID string) error
}

// Indexer chunks, embeds, and indexes chat transcripts.
type Indexer struct {
	chats       store.ChatStore
	messages    store.MessageStore
	chunks      store.ChunkStore
	types       store.InsightTypeStore
	embedder    embedding.Embedder
	index       vectorindex.Index
	invalidator Invalidator
	logger      *logger.Logger
	opts        chunker.Options
}

// New creates an indexer. A nil invalidator skips cache invalidation.
func New(
	chats store.ChatStore,
	messages store.MessageStore,
	chunks store.ChunkStore,
	types store.InsightTypeStore,
	embedder embedding.Embedder,
	index vectorindex.Index,
	invalidator Invalidator,
	log *logger.Logger,
	opts chunker.Options,
) *Indexer {
	if opts.MaxChunkTokens == 0 {
		opts = chunker.DefaultOptions()
	}
	return &Indexer{
		chats:       chats,
		messages:    messages,
		chunks:      chunks,
		types:       types,
		embedder:    embedder,
		index:       index,
		invalidator: invalidator,
		logger:      log,
		opts:        opts,
	}
}

// IndexChat chunks the chat's transcript, replaces its stored chunks, and
// rebuilds its vector index entries. The chat's indexing status moves
// pending -> indexing -> completed, or failed if any step errors; a failed
// run leaves no partial index visible to retrieval because the old entries
// are only dropped after embedding succeeds.
func (ix *Indexer) IndexChat(ctx context.Context, chatID string) error {
	if _, err := ix.chats.GetChat(ctx, chatID); err != nil {
		return err
	}
	if err := ix.chats.SetIndexingStatus(ctx, chatID, model.IndexingRunning); err != nil {
		return err
	}

	if err := ix.indexChat(ctx, chatID); err != nil {
		metrics.ChunkingRuns.WithLabelValues("failed").Inc()
		if statusErr := ix.chats.SetIndexingStatus(ctx, chatID, model.IndexingFailed); statusErr != nil {
			ix.logger.Error("failed to mark chat indexing failed",
				zap.String("chat_id", chatID),
				zap.Error(statusErr),
			)
		}
		return err
	}

	metrics.ChunkingRuns.WithLabelValues("completed").Inc()
	return ix.chats.SetIndexingStatus(ctx, chatID, model.IndexingCompleted)
}

func (ix *Indexer) indexChat(ctx context.Context, chatID string) error {
	messages, err := ix.messages.ListMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	chunks := chunker.Chunk(messages, ix.opts)
	for i := range chunks {
		chunks[i].ID = uuid.Must(uuid.NewV7()).String()
		chunks[i].ChatID = chatID
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		vec, err := ix.embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", c.Index, err)
		}
		records[i] = vectorindex.Record{
			ID:              c.ID,
			ChatID:          c.ChatID,
			Vector:          vec,
			Text:            c.Text,
			ChunkIndex:      c.Index,
			Speakers:        c.Speakers,
			MessageCount:    c.MessageCount,
			TimeSpanMinutes: c.TimeSpanMinutes,
		}
	}

	if err := ix.chunks.ReplaceChunks(ctx, chatID, chunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	if err := ix.index.DeleteChat(ctx, chatID); err != nil {
		return fmt.Errorf("clear vector index: %w", err)
	}
	if len(records) > 0 {
		if err := ix.index.Upsert(ctx, records); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
	}

	ix.invalidateContexts(ctx, chatID)

	metrics.ChunksCreated.Add(float64(len(chunks)))
	ix.logger.Info("chat indexed",
		zap.String("chat_id", chatID),
		zap.Int("messages", len(messages)),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// invalidateContexts drops every category's cached retrieval context for the
// chat. Invalidation failures are logged and tolerated; TTL expiry is the
// backstop.
func (ix *Indexer) invalidateContexts(ctx context.Context, chatID string) {
	if ix.invalidator == nil {
		return
	}
	categories, err := ix.types.ListCategoryIDs(ctx)
	if err != nil {
		ix.logger.Warn("failed to list categories for cache invalidation",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		return
	}
	for _, categoryID := range categories {
		if err := ix.invalidator.Invalidate(ctx, chatID, categoryID); err != nil {
			ix.logger.Warn("context cache invalidation failed",
				zap.String("chat_id", chatID),
				zap.String("category_id", categoryID),
				zap.Error(err),
			)
		}
	}
}
