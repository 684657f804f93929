package ragcontext

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

type fakeRetriever struct {
	calls   int
	failFor map[string]bool
	chunks  map[string][]model.RankedChunk
}

func (f *fakeRetriever) Search(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error) {
	f.calls++
	if f.failFor[query] {
		return nil, errors.New("retrieval backend unavailable")
	}
	if chunks, ok := f.chunks[query]; ok {
		return chunks, nil
	}
	return []model.RankedChunk{{
		ChunkID:         "chunk-" + query,
		Score:           0.9,
		Text:            "text for " + query,
		ChunkIndex:      1,
		Speakers:        []string{"alice", "bob"},
		MessageCount:    4,
		TimeSpanMinutes: 12,
	}}, nil
}

func newTestExtractor(r Retriever, opts Options) *Extractor {
	return NewExtractor(NewMemoryCache(), r, logger.NewNop(), opts)
}

func TestExtractor_MissThenHit(t *testing.T) {
	retriever := &fakeRetriever{}
	e := newTestExtractor(retriever, Options{})
	ctx := context.Background()

	configs := []TypeKeywords{
		{ID: "type-a", Keywords: "communication style"},
		{ID: "type-b", Keywords: "emotional tone"},
	}

	first, err := e.ExtractCategoryContext(ctx, "chat-1", "cat-1", configs)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 2, retriever.calls)

	second, err := e.ExtractCategoryContext(ctx, "chat-1", "cat-1", configs)
	require.NoError(t, err)
	assert.Equal(t, 2, retriever.calls, "cache hit must not call retrieval")
	assert.Equal(t, first, second)
}

func TestExtractor_CacheRoundTripLossless(t *testing.T) {
	retriever := &fakeRetriever{}
	e := newTestExtractor(retriever, Options{})
	ctx := context.Background()

	configs := []TypeKeywords{{ID: "type-a", Keywords: "trust patterns"}}

	first, err := e.ExtractCategoryContext(ctx, "chat-1", "cat-1", configs)
	require.NoError(t, err)
	cached, err := e.ExtractCategoryContext(ctx, "chat-1", "cat-1", configs)
	require.NoError(t, err)

	require.Len(t, cached["type-a"], 1)
	got := cached["type-a"][0]
	want := first["type-a"][0]
	assert.Equal(t, want.ChunkID, got.ChunkID)
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Text, got.Text)
	assert.Equal(t, want.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, want.Speakers, got.Speakers)
	assert.Equal(t, want.MessageCount, got.MessageCount)
	assert.Equal(t, want.TimeSpanMinutes, got.TimeSpanMinutes)
}

func TestExtractor_FailedGroupOmitted(t *testing.T) {
	retriever := &fakeRetriever{failFor: map[string]bool{"broken keywords": true}}
	e := newTestExtractor(retriever, Options{})
	ctx := context.Background()

	result, err := e.ExtractCategoryContext(ctx, "chat-1", "cat-1", []TypeKeywords{
		{ID: "type-ok", Keywords: "fine keywords"},
		{ID: "type-broken", Keywords: "broken keywords"},
	})
	require.NoError(t, err)

	assert.Contains(t, result, "type-ok")
	_, present := result["type-broken"]
	assert.False(t, present, "failed group must be omitted, not empty")
}

func TestExtractor_InvalidateForcesRefetch(t *testing.T) {
	retriever := &fakeRetriever{}
	e := newTestExtractor(retriever, Options{})
	ctx := context.Background()

	configs := []TypeKeywords{{ID: "type-a", Keywords: "k"}}

	_, err := e.ExtractCategoryContext(ctx, "chat-1", "cat-1", configs)
	require.NoError(t, err)
	require.NoError(t, e.Invalidate(ctx, "chat-1", "cat-1"))

	_, err = e.ExtractCategoryContext(ctx, "chat-1", "cat-1", configs)
	require.NoError(t, err)
	assert.Equal(t, 2, retriever.calls)
}

func TestExtractor_RespectsGroupLimit(t *testing.T) {
	many := make([]model.RankedChunk, 80)
	for i := range many {
		many[i] = model.RankedChunk{ChunkID: fmt.Sprintf("c%d", i)}
	}
	retriever := &fakeRetriever{chunks: map[string][]model.RankedChunk{"k": many}}

	var gotLimit int
	e := newTestExtractor(retrieverFunc(func(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error) {
		gotLimit = limit
		return retriever.Search(ctx, chatID, query, limit)
	}), Options{ChunksPerGroup: 25})

	_, err := e.ExtractCategoryContext(context.Background(), "chat-1", "cat-1", []TypeKeywords{{ID: "t", Keywords: "k"}})
	require.NoError(t, err)
	assert.Equal(t, 25, gotLimit)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "chat-1", "cat-1", ContextMap{"t": nil}, 10*time.Millisecond))

	_, hit, err := cache.Get(ctx, "chat-1", "cat-1")
	require.NoError(t, err)
	assert.True(t, hit)

	time.Sleep(20 * time.Millisecond)

	_, hit, err = cache.Get(ctx, "chat-1", "cat-1")
	require.NoError(t, err)
	assert.False(t, hit)

	// The expired read evicts the entry, so the map does not accumulate
	// dead keys between TTL cycles.
	cache.mu.RLock()
	remaining := len(cache.entries)
	cache.mu.RUnlock()
	assert.Zero(t, remaining)
}

func TestMemoryCache_ExpiredEvictionKeepsLiveEntries(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "chat-1", "cat-1", ContextMap{"t": nil}, 10*time.Millisecond))
	require.NoError(t, cache.Set(ctx, "chat-2", "cat-1", ContextMap{"t": nil}, time.Hour))

	time.Sleep(20 * time.Millisecond)

	_, hit, err := cache.Get(ctx, "chat-1", "cat-1")
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = cache.Get(ctx, "chat-2", "cat-1")
	require.NoError(t, err)
	assert.True(t, hit)

	cache.mu.RLock()
	remaining := len(cache.entries)
	cache.mu.RUnlock()
	assert.Equal(t, 1, remaining)
}

type retrieverFunc func(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error)

func (f retrieverFunc) Search(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error) {
	return f(ctx, chatID, query, limit)
}
