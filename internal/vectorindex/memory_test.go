package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlens-ai/insight-platform/internal/embedding"
)

func TestMemoryIndex_SearchRanksByCosine(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{
		{ID: "a", ChatID: "chat-1", Vector: embedding.Vector{1, 0, 0}, Text: "exact"},
		{ID: "b", ChatID: "chat-1", Vector: embedding.Vector{0.7, 0.7, 0}, Text: "close"},
		{ID: "c", ChatID: "chat-1", Vector: embedding.Vector{0, 0, 1}, Text: "orthogonal"},
		{ID: "d", ChatID: "chat-2", Vector: embedding.Vector{1, 0, 0}, Text: "other chat"},
	}))

	matches, err := idx.Search(ctx, "chat-1", embedding.Vector{1, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemoryIndex_SearchFiltersByChat(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{
		{ID: "a", ChatID: "chat-1", Vector: embedding.Vector{1, 0}},
		{ID: "b", ChatID: "chat-2", Vector: embedding.Vector{1, 0}},
	}))

	matches, err := idx.Search(ctx, "chat-2", embedding.Vector{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestMemoryIndex_DeleteChat(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{
		{ID: "a", ChatID: "chat-1", Vector: embedding.Vector{1, 0}},
		{ID: "b", ChatID: "chat-1", Vector: embedding.Vector{0, 1}},
	}))
	require.NoError(t, idx.DeleteChat(ctx, "chat-1"))

	matches, err := idx.Search(ctx, "chat-1", embedding.Vector{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryIndex_UpsertReplacesByID(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{{ID: "a", ChatID: "chat-1", Vector: embedding.Vector{1, 0}, Text: "old"}}))
	require.NoError(t, idx.Upsert(ctx, []Record{{ID: "a", ChatID: "chat-1", Vector: embedding.Vector{1, 0}, Text: "new"}}))

	matches, err := idx.Search(ctx, "chat-1", embedding.Vector{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Text)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity(embedding.Vector{1, 0}, embedding.Vector{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(embedding.Vector{1, 0}, embedding.Vector{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(embedding.Vector{1}, embedding.Vector{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}
