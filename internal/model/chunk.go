package model

import (
	"time"
)

// ConversationChunk is a contiguous, bounded-size span of messages treated as
// one retrieval/embedding unit. Chunks are immutable: a reindex discards and
// regenerates all chunks for a chat rather than mutating them.
type ConversationChunk struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	ChatID          string    `json:"chat_id" gorm:"index"`
	Index           int       `json:"chunk_index"`
	MessageIDs      []string  `json:"message_ids" gorm:"serializer:json"`
	Text            string    `json:"text"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Speakers        []string  `json:"speakers" gorm:"serializer:json"`
	MessageCount    int       `json:"message_count"`
	TimeSpanMinutes int       `json:"time_span_minutes"`
	EstimatedTokens int       `json:"estimated_tokens"`
	CreatedAt       time.Time `json:"created_at"`
}

// RankedChunk is a retrieval result: a chunk with its similarity score and
// the metadata the vector index carries alongside the text. Every field must
// survive a JSON round trip through the context cache.
type RankedChunk struct {
	ChunkID         string   `json:"chunk_id"`
	Score           float64  `json:"score"`
	Text            string   `json:"text"`
	ChunkIndex      int      `json:"chunk_index"`
	Speakers        []string `json:"speakers"`
	MessageCount    int      `json:"message_count"`
	TimeSpanMinutes int      `json:"time_span_minutes"`
}
