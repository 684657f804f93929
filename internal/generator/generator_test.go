package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlens-ai/insight-platform/internal/llm"
	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

type fakeLLM struct {
	calls    int
	failWith error
	content  string
	prompt   string
}

func (f *fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.prompt = req.Messages[0].Content
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &llm.CompletionResponse{
		Content:   f.content,
		Model:     "test-model",
		TokensIn:  100,
		TokensOut: 50,
	}, nil
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return nil }

func testType() model.InsightType {
	return model.InsightType{
		ID:             "type-1",
		CategoryID:     "cat-1",
		Name:           "Communication Style",
		PromptTemplate: "Analyze the communication style.\n\n{context}",
		Keywords:       "communication style tone",
		CreditCost:     5,
		Active:         true,
	}
}

func TestGenerator_Success(t *testing.T) {
	s := store.NewMemoryStore()
	client := &fakeLLM{content: `{"summary":"direct"}`}
	g := New(s, client, logger.NewNop(), Options{})
	ctx := context.Background()

	chunks := []model.RankedChunk{{ChunkID: "c1", Score: 0.8, Text: "alice: hello"}}
	result := g.Generate(ctx, "chat-1", testType(), chunks)

	assert.Equal(t, model.InsightCompleted, result.Status)
	assert.Equal(t, 150, result.TokensUsed)
	assert.Equal(t, 1, result.ChunksUsed)
	assert.Empty(t, result.Error)
	assert.True(t, strings.Contains(client.prompt, "alice: hello"))

	insight, err := s.FindInsightByChatAndType(ctx, "chat-1", "type-1")
	require.NoError(t, err)
	assert.Equal(t, model.InsightCompleted, insight.Status)
	require.NotNil(t, insight.Content)
	assert.Equal(t, `{"summary":"direct"}`, *insight.Content)
	require.NotNil(t, insight.ChunksUsed)
	assert.Equal(t, 1, *insight.ChunksUsed)
}

func TestGenerator_LLMFailureMarksInsightFailed(t *testing.T) {
	s := store.NewMemoryStore()
	client := &fakeLLM{failWith: errors.New("rate limited")}
	g := New(s, client, logger.NewNop(), Options{})
	ctx := context.Background()

	result := g.Generate(ctx, "chat-1", testType(), nil)

	assert.Equal(t, model.InsightFailed, result.Status)
	assert.Contains(t, result.Error, "rate limited")

	insight, err := s.FindInsightByChatAndType(ctx, "chat-1", "type-1")
	require.NoError(t, err)
	assert.Equal(t, model.InsightFailed, insight.Status)
	require.NotNil(t, insight.ErrorMessage)
	assert.Contains(t, *insight.ErrorMessage, "rate limited")
	assert.Nil(t, insight.Content)
}

func TestGenerator_IdempotentOnCompletedInsight(t *testing.T) {
	s := store.NewMemoryStore()
	client := &fakeLLM{content: "{}"}
	g := New(s, client, logger.NewNop(), Options{})
	ctx := context.Background()

	first := g.Generate(ctx, "chat-1", testType(), nil)
	require.Equal(t, model.InsightCompleted, first.Status)

	second := g.Generate(ctx, "chat-1", testType(), nil)
	assert.Equal(t, model.InsightCompleted, second.Status)
	assert.Equal(t, first.InsightID, second.InsightID)
	assert.Equal(t, 1, client.calls, "completed insight must not trigger another LLM call")
}

func TestGenerator_RetryReusesFailedRow(t *testing.T) {
	s := store.NewMemoryStore()
	client := &fakeLLM{failWith: errors.New("boom")}
	g := New(s, client, logger.NewNop(), Options{})
	ctx := context.Background()

	first := g.Generate(ctx, "chat-1", testType(), nil)
	require.Equal(t, model.InsightFailed, first.Status)

	client.failWith = nil
	client.content = "recovered"
	second := g.Generate(ctx, "chat-1", testType(), nil)

	assert.Equal(t, model.InsightCompleted, second.Status)
	assert.Equal(t, first.InsightID, second.InsightID, "retry reuses the row")

	insight, err := s.GetInsight(ctx, second.InsightID)
	require.NoError(t, err)
	assert.Nil(t, insight.ErrorMessage)
}

// wrappingStore decorates lookup misses the way a SQL-backed store does,
// wrapping the sentinel with query context.
type wrappingStore struct {
	*store.MemoryStore
}

func (s *wrappingStore) FindInsightByChatAndType(ctx context.Context, chatID, insightTypeID string) (*model.Insight, error) {
	insight, err := s.MemoryStore.FindInsightByChatAndType(ctx, chatID, insightTypeID)
	if err != nil {
		return nil, fmt.Errorf("find insight %s/%s: %w", chatID, insightTypeID, err)
	}
	return insight, nil
}

func TestGenerator_CreatesRowOnWrappedNotFound(t *testing.T) {
	s := &wrappingStore{store.NewMemoryStore()}
	client := &fakeLLM{content: "{}"}
	g := New(s, client, logger.NewNop(), Options{})
	ctx := context.Background()

	result := g.Generate(ctx, "chat-1", testType(), nil)

	assert.Equal(t, model.InsightCompleted, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, 1, client.calls)
}

func TestBuildPrompt_NoContextPlaceholder(t *testing.T) {
	it := testType()
	it.PromptTemplate = "Summarize the conversation."

	prompt := buildPrompt(it, []model.RankedChunk{{Text: "bob: hi", Score: 0.5}})

	assert.Contains(t, prompt, "Summarize the conversation.")
	assert.Contains(t, prompt, "bob: hi")
}

func TestBuildPrompt_EmptyChunks(t *testing.T) {
	prompt := buildPrompt(testType(), nil)
	assert.Contains(t, prompt, "no relevant excerpts")
}
