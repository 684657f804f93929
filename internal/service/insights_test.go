package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlens-ai/insight-platform/internal/credit"
	"github.com/chatlens-ai/insight-platform/internal/generator"
	"github.com/chatlens-ai/insight-platform/internal/llm"
	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/orchestrator"
	"github.com/chatlens-ai/insight-platform/internal/ragcontext"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

// scriptedLLM fails completions whose prompt contains a trigger string.
type scriptedLLM struct {
	mu      sync.Mutex
	failOn  string
	calls   int
	content string
}

func (f *scriptedLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	failOn := f.failOn
	f.mu.Unlock()
	if failOn != "" {
		for _, m := range req.Messages {
			if strings.Contains(m.Content, failOn) {
				return nil, errors.New("model overloaded")
			}
		}
	}
	content := f.content
	if content == "" {
		content = "You communicate openly about difficult topics."
	}
	return &llm.CompletionResponse{
		Content:   content,
		Model:     "test-model",
		TokensIn:  80,
		TokensOut: 40,
	}, nil
}

func (f *scriptedLLM) Name() string     { return "scripted" }
func (f *scriptedLLM) Models() []string { return []string{"test-model"} }

type staticRetriever struct{}

func (staticRetriever) Search(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error) {
	return []model.RankedChunk{
		{ChunkID: "chunk-1", Score: 0.91, Text: "we talked about " + query, ChunkIndex: 0},
	}, nil
}

type nopIndexer struct{}

func (nopIndexer) IndexChat(ctx context.Context, chatID string) error { return nil }

type fixture struct {
	svc    *InsightService
	store  *store.MemoryStore
	ledger *credit.Ledger
	llm    *scriptedLLM
}

func newFixture(t *testing.T, llmClient *scriptedLLM) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	log := logger.NewNop()
	ledger := credit.NewLedger(st, log)

	extractor := ragcontext.NewExtractor(ragcontext.NewMemoryCache(), staticRetriever{}, log, ragcontext.Options{})
	gen := generator.New(st, llmClient, log, generator.Options{Model: "test-model"})
	orch := orchestrator.New(st, st, ledger, extractor, gen, orchestrator.NopPublisher{}, log, orchestrator.Options{
		MaxConcurrent: 3,
	})
	svc := New(st, ledger, orch, nopIndexer{}, gen, extractor, log)

	return &fixture{svc: svc, store: st, ledger: ledger, llm: llmClient}
}

func (f *fixture) seed(t *testing.T, balance int, types []model.InsightType) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveChat(ctx, &model.Chat{
		ID:             "chat-1",
		UserID:         "user-1",
		IndexingStatus: model.IndexingCompleted,
	}))
	for i := range types {
		require.NoError(t, f.store.SaveInsightType(ctx, &types[i]))
	}
	if balance > 0 {
		_, err := f.ledger.GrantSignupBonus(ctx, "user-1", balance)
		require.NoError(t, err)
	}
}

func relationshipTypes() []model.InsightType {
	return []model.InsightType{
		{ID: "communication", CategoryID: "relationship", Name: "Communication Style", Keywords: "listening tone", CreditCost: 5, Active: true, PromptTemplate: "Describe the communication style.\n\n{context}"},
		{ID: "trust", CategoryID: "relationship", Name: "Trust Signals", Keywords: "trust honesty", CreditCost: 5, Active: true, PromptTemplate: "Describe trust signals.\n\n{context}"},
		{ID: "conflict", CategoryID: "relationship", Name: "Conflict Patterns", Keywords: "argument conflict", CreditCost: 5, Active: true, PromptTemplate: "Describe conflict patterns.\n\n{context}"},
	}
}

func waitTerminal(t *testing.T, f *fixture, jobID string) *model.InsightGenerationJob {
	t.Helper()
	var job *model.InsightGenerationJob
	require.Eventually(t, func() bool {
		var err error
		job, err = f.store.GetJob(context.Background(), jobID)
		return err == nil && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestUnlockAndGenerate_HappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &scriptedLLM{})
	f.seed(t, 100, relationshipTypes())

	res, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalInsights)
	assert.Equal(t, 15, res.CreditsCharged)
	assert.Equal(t, 85, res.RemainingBalance)
	assert.Greater(t, res.EstimatedTimeSeconds, 0)

	job := waitTerminal(t, f, res.JobID)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 3, job.CompletedInsights)

	insights, err := f.svc.ListChatInsights(ctx, "user-1", "chat-1")
	require.NoError(t, err)
	require.Len(t, insights, 3)
	for _, ins := range insights {
		assert.Equal(t, model.InsightCompleted, ins.Status)
		require.NotNil(t, ins.Content)
		assert.NotEmpty(t, *ins.Content)
	}

	// No refund on full success.
	balance, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 85, balance)

	view, err := f.svc.GetJobStatus(ctx, "user-1", res.JobID)
	require.NoError(t, err)
	assert.Equal(t, 100, view.ProgressPercent)
}

func TestUnlockAndGenerate_InsufficientCredits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &scriptedLLM{})
	f.seed(t, 5, relationshipTypes())

	_, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")

	var insufficient *model.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 15, insufficient.Required)
	assert.Equal(t, 5, insufficient.Available)
	assert.Equal(t, 10, insufficient.Deficit)

	// No job, no charge, no insight rows.
	balance, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	history, err := f.store.ListTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	insights, err := f.store.ListInsightsByChat(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, insights)

	active, err := f.store.HasUnresolvedJob(ctx, "chat-1")
	require.NoError(t, err)
	assert.False(t, active)
}

// jobCreateFailStore rejects job creation, simulating a store failure after
// the unlock charge has already been taken.
type jobCreateFailStore struct {
	*store.MemoryStore
}

func (s *jobCreateFailStore) CreateJob(ctx context.Context, job *model.InsightGenerationJob) error {
	return errors.New("store unavailable")
}

func TestUnlockAndGenerate_JobCreationFailureRefundsCharge(t *testing.T) {
	ctx := context.Background()
	st := &jobCreateFailStore{store.NewMemoryStore()}
	log := logger.NewNop()
	ledger := credit.NewLedger(st, log)

	extractor := ragcontext.NewExtractor(ragcontext.NewMemoryCache(), staticRetriever{}, log, ragcontext.Options{})
	gen := generator.New(st, &scriptedLLM{}, log, generator.Options{Model: "test-model"})
	orch := orchestrator.New(st, st, ledger, extractor, gen, orchestrator.NopPublisher{}, log, orchestrator.Options{
		MaxConcurrent: 3,
	})
	svc := New(st, ledger, orch, nopIndexer{}, gen, extractor, log)

	require.NoError(t, st.SaveChat(ctx, &model.Chat{
		ID:             "chat-1",
		UserID:         "user-1",
		IndexingStatus: model.IndexingCompleted,
	}))
	types := relationshipTypes()
	for i := range types {
		require.NoError(t, st.SaveInsightType(ctx, &types[i]))
	}
	_, err := ledger.GrantSignupBonus(ctx, "user-1", 100)
	require.NoError(t, err)

	_, err = svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")
	require.Error(t, err)

	// The failed unlock must not keep the charge: with no job there is no
	// finalize path, so the refund happens in the unlock itself.
	balance, err := ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	history, err := st.ListTransactions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	charge, refund := history[1], history[2]
	assert.Equal(t, model.TransactionInsightUnlock, charge.Type)
	assert.Equal(t, model.TransactionRefund, refund.Type)
	assert.Equal(t, -charge.Amount, refund.Amount)
	require.NotNil(t, refund.ReferenceID)
	assert.Equal(t, charge.ID, *refund.ReferenceID)

	active, err := st.HasUnresolvedJob(ctx, "chat-1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestUnlockAndGenerate_PartialFailureRefunds(t *testing.T) {
	ctx := context.Background()
	// The trust prompt fails; the other two succeed.
	f := newFixture(t, &scriptedLLM{failOn: "trust signals"})
	f.seed(t, 100, relationshipTypes())

	res, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")
	require.NoError(t, err)
	assert.Equal(t, 85, res.RemainingBalance)

	job := waitTerminal(t, f, res.JobID)
	assert.Equal(t, model.JobPartialFailure, job.Status)
	assert.Equal(t, 2, job.CompletedInsights)
	assert.Equal(t, 1, job.FailedInsights)

	balance, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestUnlockAndGenerate_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("chat not indexed", func(t *testing.T) {
		f := newFixture(t, &scriptedLLM{})
		f.seed(t, 100, relationshipTypes())
		require.NoError(t, f.store.SetIndexingStatus(ctx, "chat-1", model.IndexingRunning))

		_, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")
		assert.ErrorIs(t, err, model.ErrChatNotIndexed)
	})

	t.Run("no active types", func(t *testing.T) {
		f := newFixture(t, &scriptedLLM{})
		f.seed(t, 100, relationshipTypes())

		_, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "finance")
		assert.ErrorIs(t, err, model.ErrNoActiveInsightTypes)
	})

	t.Run("unresolved job", func(t *testing.T) {
		f := newFixture(t, &scriptedLLM{})
		f.seed(t, 100, relationshipTypes())
		require.NoError(t, f.store.CreateJob(ctx, &model.InsightGenerationJob{
			ID: "job-existing", ChatID: "chat-1", UserID: "user-1",
			Status: model.JobRunning, TotalInsights: 3,
		}))

		_, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")
		assert.ErrorIs(t, err, model.ErrJobAlreadyActive)
	})

	t.Run("foreign chat hidden", func(t *testing.T) {
		f := newFixture(t, &scriptedLLM{})
		f.seed(t, 100, relationshipTypes())

		_, err := f.svc.UnlockAndGenerate(ctx, "user-2", "chat-1", "relationship")
		assert.ErrorIs(t, err, model.ErrChatNotFound)
	})
}

func TestRetryInsight(t *testing.T) {
	ctx := context.Background()
	llmClient := &scriptedLLM{failOn: "trust signals"}
	f := newFixture(t, llmClient)
	f.seed(t, 100, relationshipTypes())

	res, err := f.svc.UnlockAndGenerate(ctx, "user-1", "chat-1", "relationship")
	require.NoError(t, err)
	job := waitTerminal(t, f, res.JobID)
	require.Equal(t, model.JobPartialFailure, job.Status)

	failed, err := f.store.FindInsightByChatAndType(ctx, "chat-1", "trust")
	require.NoError(t, err)
	require.Equal(t, model.InsightFailed, failed.Status)

	// Retrying a completed insight is rejected.
	completed, err := f.store.FindInsightByChatAndType(ctx, "chat-1", "communication")
	require.NoError(t, err)
	_, err = f.svc.RetryInsight(ctx, "user-1", completed.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// Clear the failure trigger and retry.
	llmClient.mu.Lock()
	llmClient.failOn = ""
	llmClient.mu.Unlock()

	retried, err := f.svc.RetryInsight(ctx, "user-1", failed.ID)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, retried.ID)
	assert.Equal(t, model.InsightCompleted, retried.Status)
	require.NotNil(t, retried.Content)
	assert.Nil(t, retried.ErrorMessage)

	// Retry is free and leaves the historical refund in place.
	balance, err := f.ledger.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 100, balance)
}

func TestIngestTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &scriptedLLM{})

	chat, err := f.svc.IngestTranscript(ctx, "user-1", IngestRequest{
		Title: "March check-in",
		Messages: []IngestMessage{
			{Sender: "alice", Content: "how are you feeling about the move", SentAt: time.Now()},
			{Sender: "bob", Content: "nervous but excited", SentAt: time.Now().Add(time.Minute)},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, 2, chat.MessageCount)

	messages, err := f.store.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "how are you feeling about the move", messages[0].Content)
	require.NotNil(t, messages[0].Sender)
	assert.Equal(t, "alice", *messages[0].Sender)
}
