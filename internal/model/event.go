package model

import (
	"time"
)

// JobEventType classifies job lifecycle events published to the stream.
type JobEventType string

const (
	JobEventQueued    JobEventType = "queued"
	JobEventStarted   JobEventType = "started"
	JobEventFinalized JobEventType = "finalized"
)

// JobEvent is published when a generation job changes state.
type JobEvent struct {
	ID                string       `json:"id"`
	Type              JobEventType `json:"type"`
	JobID             string       `json:"job_id"`
	ChatID            string       `json:"chat_id"`
	UserID            string       `json:"user_id"`
	Status            JobStatus    `json:"status"`
	TotalInsights     int          `json:"total_insights"`
	CompletedInsights int          `json:"completed_insights"`
	FailedInsights    int          `json:"failed_insights"`
	Refunded          bool         `json:"refunded,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// InsightEvent is published when a single insight finishes generating.
type InsightEvent struct {
	ID            string        `json:"id"`
	JobID         string        `json:"job_id"`
	ChatID        string        `json:"chat_id"`
	UserID        string        `json:"user_id"`
	InsightID     string        `json:"insight_id"`
	InsightTypeID string        `json:"insight_type_id"`
	Status        InsightStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
