// Package vectorindex defines the vector index boundary and an in-memory
// implementation for tests and single-node deployments. External stores
// (Pinecone, Qdrant, pgvector) implement the same interface; their wire
// protocols live outside this module.
package vectorindex

import (
	"context"

	"github.com/chatlens-ai/insight-platform/internal/embedding"
)

// Record is one chunk's entry in the index: the vector plus the chunk text
// and metadata needed to assemble retrieval results without a second lookup.
type Record struct {
	ID              string
	ChatID          string
	Vector          embedding.Vector
	Text            string
	ChunkIndex      int
	Speakers        []string
	MessageCount    int
	TimeSpanMinutes int
}

// Match is a scored search hit. Higher scores are better.
type Match struct {
	ID              string
	Score           float64
	Text            string
	ChunkIndex      int
	Speakers        []string
	MessageCount    int
	TimeSpanMinutes int
}

// Index is the nearest-neighbor store, filtered by chat.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, chatID string, query embedding.Vector, limit int) ([]Match, error)
	// DeleteChat removes every record for a chat. Called when a chat's
	// chunks are invalidated by a reindex.
	DeleteChat(ctx context.Context, chatID string) error
}
