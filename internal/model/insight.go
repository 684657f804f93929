package model

import (
	"time"
)

// InsightStatus is the lifecycle state of a single insight.
type InsightStatus string

const (
	InsightPending    InsightStatus = "pending"
	InsightGenerating InsightStatus = "generating"
	InsightCompleted  InsightStatus = "completed"
	InsightFailed     InsightStatus = "failed"
)

// InsightType is static reference data describing one kind of insight:
// what to ask the LLM, which keywords retrieve its context, and what it costs.
type InsightType struct {
	ID             string `json:"id" gorm:"primaryKey"`
	CategoryID     string `json:"category_id" gorm:"index"`
	Name           string `json:"name"`
	PromptTemplate string `json:"prompt_template"`
	Keywords       string `json:"keywords"`
	CreditCost     int    `json:"credit_cost"`
	Active         bool   `json:"active"`
	Premium        bool   `json:"premium"`
}

// Insight is the generated output for one (chat, insight type) pair. The row
// is unique per pair and reused on retry, never deleted by the core.
type Insight struct {
	ID               string        `json:"id" gorm:"primaryKey"`
	ChatID           string        `json:"chat_id" gorm:"index:idx_insight_chat_type,unique"`
	InsightTypeID    string        `json:"insight_type_id" gorm:"index:idx_insight_chat_type,unique"`
	Status           InsightStatus `json:"status"`
	Content          *string       `json:"content,omitempty"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	TokensUsed       *int          `json:"tokens_used,omitempty"`
	GenerationTimeMs *int64        `json:"generation_time_ms,omitempty"`
	ChunksUsed       *int          `json:"chunks_used,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// GenerationResult is what a generation work item reports back to the
// orchestrator when it finishes, successfully or not.
type GenerationResult struct {
	InsightID        string        `json:"insight_id"`
	Status           InsightStatus `json:"status"`
	TokensUsed       int           `json:"tokens_used"`
	GenerationTimeMs int64         `json:"generation_time_ms"`
	ChunksUsed       int           `json:"chunks_used"`
	Error            string        `json:"error,omitempty"`
}
