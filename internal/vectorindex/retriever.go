package vectorindex

import (
	"context"
	"fmt"

	"github.com/chatlens-ai/insight-platform/internal/embedding"
	"github.com/chatlens-ai/insight-platform/internal/model"
)

// Retriever turns keyword queries into ranked chunks: it embeds the query and
// searches the index filtered to one chat.
type Retriever struct {
	embedder embedding.Embedder
	index    Index
}

// NewRetriever creates a retriever over an embedder and an index.
func NewRetriever(embedder embedding.Embedder, index Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Search embeds query and returns up to limit ranked chunks for the chat.
func (r *Retriever) Search(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.index.Search(ctx, chatID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	chunks := make([]model.RankedChunk, len(matches))
	for i, m := range matches {
		chunks[i] = model.RankedChunk{
			ChunkID:         m.ID,
			Score:           m.Score,
			Text:            m.Text,
			ChunkIndex:      m.ChunkIndex,
			Speakers:        m.Speakers,
			MessageCount:    m.MessageCount,
			TimeSpanMinutes: m.TimeSpanMinutes,
		}
	}
	return chunks, nil
}
