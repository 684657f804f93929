package model

import (
	"time"
)

// JobStatus is the state of an insight generation job.
type JobStatus string

const (
	JobQueued         JobStatus = "queued"
	JobRunning        JobStatus = "running"
	JobCompleted      JobStatus = "completed"
	JobFailed         JobStatus = "failed"
	JobPartialFailure JobStatus = "partial_failure"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobPartialFailure
}

// InsightGenerationJob tracks one category unlock's generation work as a
// unit. Counters are mutated only through serialized progress updates;
// invariant: CompletedInsights + FailedInsights <= TotalInsights, with the
// job finalized exactly once when equality holds.
type InsightGenerationJob struct {
	ID                  string     `json:"job_id" gorm:"primaryKey"`
	ChatID              string     `json:"chat_id" gorm:"index"`
	CategoryID          string     `json:"category_id"`
	UserID              string     `json:"user_id" gorm:"index"`
	Status              JobStatus  `json:"status"`
	TotalInsights       int        `json:"total_insights"`
	CompletedInsights   int        `json:"completed_insights"`
	FailedInsights      int        `json:"failed_insights"`
	FailedInsightIDs    []string   `json:"failed_insight_ids,omitempty" gorm:"serializer:json"`
	ErrorSummary        *string    `json:"error_summary,omitempty"`
	TokensUsed          int        `json:"tokens_used"`
	GenerationTimeMs    int64      `json:"generation_time_ms"`
	ChargeTransactionID string     `json:"charge_transaction_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// FinalStatus derives the terminal status from the failure count.
func (j *InsightGenerationJob) FinalStatus() JobStatus {
	switch {
	case j.FailedInsights == 0:
		return JobCompleted
	case j.CompletedInsights == 0:
		return JobFailed
	default:
		return JobPartialFailure
	}
}

// ProgressDelta is one work item's contribution to the job aggregates.
// Exactly one of Completed/Failed applies per (job, insight) report.
type ProgressDelta struct {
	InsightID        string
	Completed        bool
	TokensUsed       int
	GenerationTimeMs int64
	Error            string
}

// JobStatusView is a read-only, internally consistent snapshot of a job.
type JobStatusView struct {
	JobID               string     `json:"job_id"`
	ChatID              string     `json:"chat_id"`
	Status              JobStatus  `json:"status"`
	TotalInsights       int        `json:"total_insights"`
	CompletedInsights   int        `json:"completed_insights"`
	FailedInsights      int        `json:"failed_insights"`
	ProgressPercent     int        `json:"progress_percent"`
	FailedInsightIDs    []string   `json:"failed_insight_ids,omitempty"`
	ErrorSummary        *string    `json:"error_summary,omitempty"`
	TokensUsed          int        `json:"tokens_used"`
	GenerationTimeMs    int64      `json:"generation_time_ms"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}
