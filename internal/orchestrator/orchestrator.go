// Package orchestrator drives insight generation jobs: it creates the job,
// extracts the shared retrieval context once, dispatches bounded parallel
// work items, aggregates their progress, and finalizes the job exactly once,
// refunding the unlock charge when any item failed.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatlens-ai/insight-platform/internal/credit"
	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/internal/ragcontext"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
	"github.com/chatlens-ai/insight-platform/pkg/metrics"
)

const (
	DefaultMaxConcurrent      = 3
	DefaultPerInsightEstimate = 30 * time.Second
	DefaultItemTimeout        = 2 * time.Minute
)

// Generator runs one insight work item. Implementations never return an
// error: any failure is reported inside the result.
type Generator interface {
	Generate(ctx context.Context, chatID string, it model.InsightType, chunks []model.RankedChunk) model.GenerationResult
}

// ContextExtractor provides the shared retrieval context for a job.
type ContextExtractor interface {
	ExtractCategoryContext(ctx context.Context, chatID, categoryID string, configs []ragcontext.TypeKeywords) (ragcontext.ContextMap, error)
}

// EventPublisher receives job and insight lifecycle events. Publish failures
// are logged, never allowed to affect job state.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, event *model.JobEvent) error
	PublishInsightEvent(ctx context.Context, event *model.InsightEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) PublishJobEvent(ctx context.Context, event *model.JobEvent) error { return nil }
func (NopPublisher) PublishInsightEvent(ctx context.Context, event *model.InsightEvent) error {
	return nil
}

// Options configures the orchestrator.
type Options struct {
	MaxConcurrent      int
	PerInsightEstimate time.Duration
	ItemTimeout        time.Duration
}

// Orchestrator is the job state machine.
type Orchestrator struct {
	jobs      store.JobStore
	chats     store.ChatStore
	ledger    *credit.Ledger
	extractor ContextExtractor
	generator Generator
	publisher EventPublisher
	logger    *logger.Logger
	opts      Options
}

// New creates an orchestrator.
func New(
	jobs store.JobStore,
	chats store.ChatStore,
	ledger *credit.Ledger,
	extractor ContextExtractor,
	generator Generator,
	publisher EventPublisher,
	log *logger.Logger,
	opts Options,
) *Orchestrator {
	if opts.MaxConcurrent == 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.PerInsightEstimate == 0 {
		opts.PerInsightEstimate = DefaultPerInsightEstimate
	}
	if opts.ItemTimeout == 0 {
		opts.ItemTimeout = DefaultItemTimeout
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Orchestrator{
		jobs:      jobs,
		chats:     chats,
		ledger:    ledger,
		extractor: extractor,
		generator: generator,
		publisher: publisher,
		logger:    log,
		opts:      opts,
	}
}

// CreateJob persists a queued job for one category unlock and projects the
// chat's generation status. The estimated completion is a scheduling
// estimate, not a deadline. Callers check for an unresolved job first.
func (o *Orchestrator) CreateJob(ctx context.Context, chatID, categoryID, userID string, types []model.InsightType, chargeTransactionID string) (*model.InsightGenerationJob, error) {
	now := time.Now()
	total := len(types)
	batches := (total + o.opts.MaxConcurrent - 1) / o.opts.MaxConcurrent
	estimate := now.Add(time.Duration(batches) * o.opts.PerInsightEstimate)

	job := &model.InsightGenerationJob{
		ID:                  uuid.Must(uuid.NewV7()).String(),
		ChatID:              chatID,
		CategoryID:          categoryID,
		UserID:              userID,
		Status:              model.JobQueued,
		TotalInsights:       total,
		ChargeTransactionID: chargeTransactionID,
		CreatedAt:           now,
		EstimatedCompletion: &estimate,
	}

	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := o.chats.SetGenerationStatus(ctx, chatID, model.GenerationQueued); err != nil {
		return nil, fmt.Errorf("project chat status: %w", err)
	}

	o.publishJobEvent(ctx, job, model.JobEventQueued, false)
	o.logger.Info("generation job created",
		zap.String("job_id", job.ID),
		zap.String("chat_id", chatID),
		zap.String("category_id", categoryID),
		zap.Int("total_insights", total),
	)
	return job, nil
}

// StartJob transitions queued -> running. Calling it on any other state is a
// fatal caller error and is not retried.
func (o *Orchestrator) StartJob(ctx context.Context, jobID string) error {
	if err := o.jobs.MarkJobStarted(ctx, jobID, time.Now()); err != nil {
		return err
	}

	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := o.chats.SetGenerationStatus(ctx, job.ChatID, model.GenerationRunning); err != nil {
		return fmt.Errorf("project chat status: %w", err)
	}

	o.publishJobEvent(ctx, job, model.JobEventStarted, false)
	return nil
}

// ExtractSharedContext fetches the retrieval context for the whole job, once,
// before any work item starts. Every parallel generator reads this one
// snapshot; workers never re-fetch.
func (o *Orchestrator) ExtractSharedContext(ctx context.Context, job *model.InsightGenerationJob, types []model.InsightType) (ragcontext.ContextMap, error) {
	configs := make([]ragcontext.TypeKeywords, len(types))
	for i, it := range types {
		configs[i] = ragcontext.TypeKeywords{ID: it.ID, Keywords: it.Keywords}
	}
	return o.extractor.ExtractCategoryContext(ctx, job.ChatID, job.CategoryID, configs)
}

// Run dispatches the job's work items with bounded concurrency and blocks
// until all have reported. A work item that exceeds its wall-clock budget
// fails with a timeout error and still reports, so the job always finalizes.
func (o *Orchestrator) Run(ctx context.Context, job *model.InsightGenerationJob, types []model.InsightType, contexts ragcontext.ContextMap) error {
	g := new(errgroup.Group)
	g.SetLimit(o.opts.MaxConcurrent)

	for _, it := range types {
		it := it
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, o.opts.ItemTimeout)
			result := o.generator.Generate(itemCtx, job.ChatID, it, contexts[it.ID])
			cancel()

			// Progress is reported on the parent context: a timed-out
			// item must still be able to report failure.
			if err := o.UpdateProgress(ctx, job.ID, result); err != nil {
				o.logger.Error("progress update failed",
					zap.String("job_id", job.ID),
					zap.String("insight_id", result.InsightID),
					zap.Error(err),
				)
				return err
			}

			o.publishInsightEvent(ctx, job, it.ID, result)
			return nil
		})
	}

	return g.Wait()
}

// UpdateProgress applies one work item's result to the job aggregates,
// serialized per job by the store, and finalizes the job when the last item
// has reported. Safe to call from any number of concurrent workers; a
// missing or already terminal job surfaces loudly.
func (o *Orchestrator) UpdateProgress(ctx context.Context, jobID string, result model.GenerationResult) error {
	job, err := o.jobs.ApplyJobProgress(ctx, jobID, model.ProgressDelta{
		InsightID:        result.InsightID,
		Completed:        result.Status == model.InsightCompleted,
		TokensUsed:       result.TokensUsed,
		GenerationTimeMs: result.GenerationTimeMs,
		Error:            result.Error,
	})
	if err != nil {
		return err
	}

	if job.CompletedInsights+job.FailedInsights == job.TotalInsights {
		return o.finalize(ctx, job)
	}
	return nil
}

// finalize moves the job to its terminal status exactly once. Racing
// completion observers are resolved by the store's terminal-state guard;
// only the winner refunds, projects the chat status, and publishes, which is
// what makes the refund exactly-once.
func (o *Orchestrator) finalize(ctx context.Context, job *model.InsightGenerationJob) error {
	status := job.FinalStatus()

	finalized, err := o.jobs.FinalizeJob(ctx, job.ID, status, time.Now())
	if err != nil {
		return err
	}
	if !finalized {
		return nil
	}
	job.Status = status
	metrics.JobsFinalized.WithLabelValues(string(status)).Inc()

	// The refund comes first: the job is already terminal, so nothing after
	// this point gets a second chance. A failed chat projection must not
	// swallow the refund.
	refunded := false
	if job.FailedInsights > 0 && job.ChargeTransactionID != "" {
		if _, err := o.ledger.RefundUnlock(ctx, job.ChargeTransactionID, job.FailedInsights, job.TotalInsights); err != nil {
			return fmt.Errorf("refund unlock charge: %w", err)
		}
		refunded = true
	}

	if err := o.chats.SetGenerationStatus(ctx, job.ChatID, chatProjection(status)); err != nil {
		o.logger.Error("failed to project chat generation status",
			zap.String("job_id", job.ID),
			zap.String("chat_id", job.ChatID),
			zap.Error(err),
		)
	}

	o.publishJobEvent(ctx, job, model.JobEventFinalized, refunded)
	o.logger.Info("generation job finalized",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("completed", job.CompletedInsights),
		zap.Int("failed", job.FailedInsights),
		zap.Bool("refunded", refunded),
	)
	return nil
}

// GetStatus returns a consistent snapshot of a job's progress. Safe to call
// concurrently with progress updates in any job state.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*model.JobStatusView, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	percent := 0
	if job.TotalInsights > 0 {
		percent = (job.CompletedInsights + job.FailedInsights) * 100 / job.TotalInsights
	}

	return &model.JobStatusView{
		JobID:               job.ID,
		ChatID:              job.ChatID,
		Status:              job.Status,
		TotalInsights:       job.TotalInsights,
		CompletedInsights:   job.CompletedInsights,
		FailedInsights:      job.FailedInsights,
		ProgressPercent:     percent,
		FailedInsightIDs:    job.FailedInsightIDs,
		ErrorSummary:        job.ErrorSummary,
		TokensUsed:          job.TokensUsed,
		GenerationTimeMs:    job.GenerationTimeMs,
		CreatedAt:           job.CreatedAt,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
		EstimatedCompletion: job.EstimatedCompletion,
	}, nil
}

func chatProjection(status model.JobStatus) model.GenerationStatus {
	switch status {
	case model.JobCompleted:
		return model.GenerationCompleted
	case model.JobFailed:
		return model.GenerationFailed
	case model.JobPartialFailure:
		return model.GenerationPartialFailure
	default:
		return model.GenerationRunning
	}
}

func (o *Orchestrator) publishJobEvent(ctx context.Context, job *model.InsightGenerationJob, eventType model.JobEventType, refunded bool) {
	err := o.publisher.PublishJobEvent(ctx, &model.JobEvent{
		ID:                uuid.Must(uuid.NewV7()).String(),
		Type:              eventType,
		JobID:             job.ID,
		ChatID:            job.ChatID,
		UserID:            job.UserID,
		Status:            job.Status,
		TotalInsights:     job.TotalInsights,
		CompletedInsights: job.CompletedInsights,
		FailedInsights:    job.FailedInsights,
		Refunded:          refunded,
		CreatedAt:         time.Now(),
	})
	if err != nil {
		o.logger.Warn("job event publish failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publishInsightEvent(ctx context.Context, job *model.InsightGenerationJob, insightTypeID string, result model.GenerationResult) {
	err := o.publisher.PublishInsightEvent(ctx, &model.InsightEvent{
		ID:            uuid.Must(uuid.NewV7()).String(),
		JobID:         job.ID,
		ChatID:        job.ChatID,
		UserID:        job.UserID,
		InsightID:     result.InsightID,
		InsightTypeID: insightTypeID,
		Status:        result.Status,
		Error:         result.Error,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		o.logger.Warn("insight event publish failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}
