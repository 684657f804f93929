// Package model defines data structures for the insight platform.
package model

import (
	"time"
)

// IndexingStatus tracks the chunking/embedding pipeline state for a chat.
type IndexingStatus string

const (
	IndexingPending   IndexingStatus = "pending"
	IndexingRunning   IndexingStatus = "indexing"
	IndexingCompleted IndexingStatus = "completed"
	IndexingFailed    IndexingStatus = "failed"
)

// GenerationStatus is the chat-level projection of insight generation progress.
type GenerationStatus string

const (
	GenerationNone           GenerationStatus = ""
	GenerationQueued         GenerationStatus = "queued"
	GenerationRunning        GenerationStatus = "generating"
	GenerationCompleted      GenerationStatus = "completed"
	GenerationFailed         GenerationStatus = "failed"
	GenerationPartialFailure GenerationStatus = "partial_failure"
)

// Chat represents an imported chat transcript.
type Chat struct {
	ID               string           `json:"id" gorm:"primaryKey"`
	UserID           string           `json:"user_id" gorm:"index"`
	Title            string           `json:"title"`
	IndexingStatus   IndexingStatus   `json:"indexing_status"`
	GenerationStatus GenerationStatus `json:"insights_generation_status"`
	MessageCount     int              `json:"message_count,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Message is a single message in a chat transcript. Immutable once persisted.
type Message struct {
	ID      string    `json:"id" gorm:"primaryKey"`
	ChatID  string    `json:"chat_id" gorm:"index"`
	Sender  *string   `json:"sender,omitempty"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at" gorm:"index"`
}

// SenderLabel returns the sender name, or a stable placeholder when the
// export carried no sender for the message.
func (m *Message) SenderLabel() string {
	if m.Sender == nil || *m.Sender == "" {
		return "Unknown"
	}
	return *m.Sender
}
