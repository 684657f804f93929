// Package service is the application facade: it validates requests, charges
// credits, and coordinates the indexer, orchestrator, and generator. HTTP
// handlers call into this package and nothing below it.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/credit"
	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/orchestrator"
	"github.com/chatlens-ai/insight-platform/internal/ragcontext"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

// jobTimeout bounds a whole background generation job, not a single item.
const jobTimeout = 30 * time.Minute

// Indexer rebuilds a chat's chunks and vector index.
type Indexer interface {
	IndexChat(ctx context.Context, chatID string) error
}

// InsightService wires validation, billing, and job orchestration behind a
// single API.
type InsightService struct {
	store   store.Store
	ledger  *credit.Ledger
	orch    *orchestrator.Orchestrator
	indexer Indexer
	// generator and extractor are used directly only for single-insight
	// retries; normal generation goes through the orchestrator.
	generator orchestrator.Generator
	extractor orchestrator.ContextExtractor
	logger    *logger.Logger
}

// New creates the service facade.
func New(
	st store.Store,
	ledger *credit.Ledger,
	orch *orchestrator.Orchestrator,
	indexer Indexer,
	generator orchestrator.Generator,
	extractor orchestrator.ContextExtractor,
	log *logger.Logger,
) *InsightService {
	return &InsightService{
		store:     st,
		ledger:    ledger,
		orch:      orch,
		indexer:   indexer,
		generator: generator,
		extractor: extractor,
		logger:    log,
	}
}

// IngestRequest is a transcript upload.
type IngestRequest struct {
	Title    string
	Messages []IngestMessage
}

// IngestMessage is one transcript line. Sender may be empty when the export
// carried none.
type IngestMessage struct {
	Sender  string
	Content string
	SentAt  time.Time
}

// IngestTranscript stores a new chat and its messages, then indexes it in the
// background. The returned chat is in indexing status pending; poll the chat
// until indexing completes before unlocking insights.
func (s *InsightService) IngestTranscript(ctx context.Context, userID string, req IngestRequest) (*model.Chat, error) {
	now := time.Now()
	chat := &model.Chat{
		ID:             uuid.Must(uuid.NewV7()).String(),
		UserID:         userID,
		Title:          req.Title,
		IndexingStatus: model.IndexingPending,
		MessageCount:   len(req.Messages),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.SaveChat(ctx, chat); err != nil {
		return nil, err
	}

	messages := make([]model.Message, len(req.Messages))
	for i, m := range req.Messages {
		var sender *string
		if m.Sender != "" {
			v := m.Sender
			sender = &v
		}
		messages[i] = model.Message{
			ID:      uuid.Must(uuid.NewV7()).String(),
			ChatID:  chat.ID,
			Sender:  sender,
			Content: m.Content,
			SentAt:  m.SentAt,
		}
	}
	if err := s.store.SaveMessages(ctx, messages); err != nil {
		return nil, err
	}

	go s.indexInBackground(chat.ID)
	return chat, nil
}

// ReindexChat rebuilds the chat's chunks and vector index synchronously.
func (s *InsightService) ReindexChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}
	return s.indexer.IndexChat(ctx, chatID)
}

// UnlockResult is what the caller gets back immediately after a successful
// unlock; generation continues in the background.
type UnlockResult struct {
	JobID                string     `json:"job_id"`
	TotalInsights        int        `json:"total_insights"`
	CreditsCharged       int        `json:"credits_charged"`
	RemainingBalance     int        `json:"remaining_balance"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
	EstimatedTimeSeconds int        `json:"estimated_time_seconds"`
}

// UnlockAndGenerate charges the user for every active insight type in the
// category and starts a generation job for the chat. The charge is taken
// up front; if any insight later fails, finalize refunds the full amount.
// Validation failures leave no job and no charge behind.
func (s *InsightService) UnlockAndGenerate(ctx context.Context, userID, chatID, categoryID string) (*UnlockResult, error) {
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if chat.IndexingStatus != model.IndexingCompleted {
		return nil, model.ErrChatNotIndexed
	}

	types, err := s.store.ListActiveInsightTypes(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, model.ErrNoActiveInsightTypes
	}

	active, err := s.store.HasUnresolvedJob(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, model.ErrJobAlreadyActive
	}

	charge, err := s.ledger.DeductUnlock(ctx, userID, chatID, types)
	if err != nil {
		return nil, err
	}

	if err := s.ensurePendingInsights(ctx, chatID, types); err != nil {
		return nil, s.compensateCharge(ctx, charge.ID, err)
	}

	job, err := s.orch.CreateJob(ctx, chatID, categoryID, userID, types, charge.ID)
	if err != nil {
		return nil, s.compensateCharge(ctx, charge.ID, err)
	}

	go s.runJob(job, types)

	estimate := 0
	if job.EstimatedCompletion != nil {
		estimate = int(time.Until(*job.EstimatedCompletion).Seconds())
	}
	return &UnlockResult{
		JobID:                job.ID,
		TotalInsights:        job.TotalInsights,
		CreditsCharged:       -charge.Amount,
		RemainingBalance:     charge.BalanceAfter,
		EstimatedCompletion:  job.EstimatedCompletion,
		EstimatedTimeSeconds: estimate,
	}, nil
}

// compensateCharge refunds an unlock charge whose job never came into
// existence. No job means finalize will never run, so the refund has to
// happen here or not at all.
func (s *InsightService) compensateCharge(ctx context.Context, chargeID string, cause error) error {
	if _, err := s.ledger.RefundTransaction(ctx, chargeID, "unlock aborted before job creation"); err != nil {
		s.logger.Error("failed to refund aborted unlock charge",
			zap.String("transaction_id", chargeID),
			zap.Error(err),
		)
	}
	return cause
}

// GetJobStatus returns a consistent progress snapshot for one of the user's
// jobs.
func (s *InsightService) GetJobStatus(ctx context.Context, userID, jobID string) (*model.JobStatusView, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, model.ErrJobNotFound
	}
	return s.orch.GetStatus(ctx, jobID)
}

// ListChatInsights returns the user's insights for a chat.
func (s *InsightService) ListChatInsights(ctx context.Context, userID, chatID string) ([]model.Insight, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.store.ListInsightsByChat(ctx, chatID)
}

// RetryInsight re-runs a single failed insight synchronously and returns the
// refreshed row. Retries are free: the original unlock already paid for the
// insight, and a failure already triggered the job's refund. The parent
// job's counters are historical record and are not touched.
func (s *InsightService) RetryInsight(ctx context.Context, userID, insightID string) (*model.Insight, error) {
	insight, err := s.store.GetInsight(ctx, insightID)
	if err != nil {
		return nil, err
	}
	chat, err := s.ownedChat(ctx, userID, insight.ChatID)
	if err != nil {
		return nil, err
	}
	if insight.Status != model.InsightFailed {
		return nil, model.ErrInvalidTransition
	}

	it, err := s.store.GetInsightType(ctx, insight.InsightTypeID)
	if err != nil {
		return nil, err
	}

	contexts, err := s.extractor.ExtractCategoryContext(ctx, chat.ID, it.CategoryID, []ragcontext.TypeKeywords{
		{ID: it.ID, Keywords: it.Keywords},
	})
	if err != nil {
		return nil, err
	}

	result := s.generator.Generate(ctx, chat.ID, *it, contexts[it.ID])
	s.logger.Info("insight retried",
		zap.String("insight_id", insightID),
		zap.String("chat_id", chat.ID),
		zap.String("status", string(result.Status)),
	)
	return s.store.GetInsight(ctx, insightID)
}

// ownedChat loads a chat and hides its existence from other users.
func (s *InsightService) ownedChat(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, model.ErrChatNotFound
	}
	return chat, nil
}

// ensurePendingInsights creates a pending row for each insight type that has
// no row yet, so the client sees the full set immediately after unlock.
func (s *InsightService) ensurePendingInsights(ctx context.Context, chatID string, types []model.InsightType) error {
	for _, it := range types {
		existing, err := s.store.FindInsightByChatAndType(ctx, chatID, it.ID)
		if err != nil && !errors.Is(err, model.ErrInsightNotFound) {
			return err
		}
		if existing != nil {
			continue
		}
		err = s.store.SaveInsight(ctx, &model.Insight{
			ID:            uuid.Must(uuid.NewV7()).String(),
			ChatID:        chatID,
			InsightTypeID: it.ID,
			Status:        model.InsightPending,
			CreatedAt:     time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *InsightService) indexInBackground(chatID string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.indexer.IndexChat(ctx, chatID); err != nil {
		s.logger.Error("background indexing failed",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
	}
}

// runJob drives one generation job to a terminal state in the background.
// The request context is gone by the time this runs, so the job gets its own
// bounded context.
func (s *InsightService) runJob(job *model.InsightGenerationJob, types []model.InsightType) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.orch.StartJob(ctx, job.ID); err != nil {
		s.logger.Error("job start failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}

	contexts, err := s.orch.ExtractSharedContext(ctx, job, types)
	if err != nil {
		// Retrieval already degrades per group inside extraction; an error
		// here means even the degraded path failed. Run with no context so
		// the job still reaches a terminal state.
		s.logger.Error("shared context extraction failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		contexts = ragcontext.ContextMap{}
	}

	if err := s.orch.Run(ctx, job, types, contexts); err != nil {
		s.logger.Error("job run failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}
