// Package generator runs one insight generation work item: it builds the
// prompt from the shared retrieval context, calls the LLM, and records the
// outcome on the insight row. LLM and store failures become a failed insight,
// never an error escaping the work item.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/llm"
	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
	"github.com/chatlens-ai/insight-platform/pkg/metrics"
)

const systemPrompt = "You are an analyst of chat conversations. " +
	"Answer using only the provided conversation excerpts. " +
	"Respond with a JSON object matching the requested structure."

// Options configures generation.
type Options struct {
	Model     string
	MaxTokens int
}

// Generator produces insights, idempotent per (chat, insight type).
type Generator struct {
	insights store.InsightStore
	client   llm.Client
	logger   *logger.Logger
	opts     Options
}

// New creates a generator.
func New(insights store.InsightStore, client llm.Client, log *logger.Logger, opts Options) *Generator {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return &Generator{
		insights: insights,
		client:   client,
		logger:   log,
		opts:     opts,
	}
}

// Generate runs one work item for (chatID, insight type). An already
// completed insight is returned as-is without another LLM call.
func (g *Generator) Generate(ctx context.Context, chatID string, it model.InsightType, chunks []model.RankedChunk) model.GenerationResult {
	insight, err := g.findOrCreate(ctx, chatID, it.ID)
	if err != nil {
		return model.GenerationResult{
			InsightID: "",
			Status:    model.InsightFailed,
			Error:     fmt.Sprintf("load insight row: %v", err),
		}
	}

	if insight.Status == model.InsightCompleted {
		result := model.GenerationResult{InsightID: insight.ID, Status: model.InsightCompleted}
		if insight.TokensUsed != nil {
			result.TokensUsed = *insight.TokensUsed
		}
		if insight.GenerationTimeMs != nil {
			result.GenerationTimeMs = *insight.GenerationTimeMs
		}
		return result
	}

	insight.Status = model.InsightGenerating
	insight.ErrorMessage = nil
	if err := g.insights.SaveInsight(ctx, insight); err != nil {
		return g.fail(ctx, insight, fmt.Sprintf("mark generating: %v", err))
	}

	start := time.Now()
	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:     g.opts.Model,
		System:    systemPrompt,
		MaxTokens: g.opts.MaxTokens,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: buildPrompt(it, chunks)},
		},
	})
	if err != nil {
		metrics.RecordLLMCompletion(g.opts.Model, "error", time.Since(start).Seconds(), 0, 0)
		return g.fail(ctx, insight, fmt.Sprintf("llm completion: %v", err))
	}
	metrics.RecordLLMCompletion(resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	tokens := resp.TokensIn + resp.TokensOut
	elapsed := time.Since(start).Milliseconds()
	used := len(chunks)

	insight.Status = model.InsightCompleted
	insight.Content = &resp.Content
	insight.TokensUsed = &tokens
	insight.GenerationTimeMs = &elapsed
	insight.ChunksUsed = &used
	if err := g.insights.SaveInsight(ctx, insight); err != nil {
		return g.fail(ctx, insight, fmt.Sprintf("persist insight: %v", err))
	}

	metrics.InsightsGenerated.WithLabelValues(string(model.InsightCompleted)).Inc()
	g.logger.Info("insight generated",
		zap.String("chat_id", chatID),
		zap.String("insight_type_id", it.ID),
		zap.String("insight_id", insight.ID),
		zap.Int("tokens", tokens),
		zap.Int64("elapsed_ms", elapsed),
	)

	return model.GenerationResult{
		InsightID:        insight.ID,
		Status:           model.InsightCompleted,
		TokensUsed:       tokens,
		GenerationTimeMs: elapsed,
		ChunksUsed:       used,
	}
}

func (g *Generator) findOrCreate(ctx context.Context, chatID, insightTypeID string) (*model.Insight, error) {
	insight, err := g.insights.FindInsightByChatAndType(ctx, chatID, insightTypeID)
	if err == nil {
		return insight, nil
	}
	if !errors.Is(err, model.ErrInsightNotFound) {
		return nil, err
	}

	insight = &model.Insight{
		ID:            uuid.Must(uuid.NewV7()).String(),
		ChatID:        chatID,
		InsightTypeID: insightTypeID,
		Status:        model.InsightPending,
	}
	if err := g.insights.SaveInsight(ctx, insight); err != nil {
		return nil, err
	}
	return insight, nil
}

func (g *Generator) fail(ctx context.Context, insight *model.Insight, msg string) model.GenerationResult {
	insight.Status = model.InsightFailed
	insight.ErrorMessage = &msg
	if err := g.insights.SaveInsight(ctx, insight); err != nil {
		g.logger.Error("failed to persist insight failure",
			zap.String("insight_id", insight.ID),
			zap.Error(err),
		)
	}

	metrics.InsightsGenerated.WithLabelValues(string(model.InsightFailed)).Inc()
	g.logger.Warn("insight generation failed",
		zap.String("insight_id", insight.ID),
		zap.String("chat_id", insight.ChatID),
		zap.String("error", msg),
	)

	return model.GenerationResult{
		InsightID: insight.ID,
		Status:    model.InsightFailed,
		Error:     msg,
	}
}

// buildPrompt renders the insight type's template with the retrieved
// excerpts. Templates may place the excerpts with a {context} marker;
// without one the excerpts are appended.
func buildPrompt(it model.InsightType, chunks []model.RankedChunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "### Excerpt %d (relevance %.2f)\n%s\n\n", i+1, chunk.Score, chunk.Text)
	}
	contextBlock := strings.TrimRight(b.String(), "\n")
	if contextBlock == "" {
		contextBlock = "(no relevant excerpts were found)"
	}

	if strings.Contains(it.PromptTemplate, "{context}") {
		return strings.ReplaceAll(it.PromptTemplate, "{context}", contextBlock)
	}
	return it.PromptTemplate + "\n\nConversation excerpts:\n\n" + contextBlock
}
