package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

const (
	// StreamName is the name of the insight lifecycle stream.
	StreamName = "INSIGHTS"

	// SubjectPrefix is the prefix for all insight subjects.
	SubjectPrefix = "insights"
)

// Publisher publishes job and insight lifecycle events to JetStream. It
// satisfies the orchestrator's event publisher contract.
type Publisher struct {
	client *Client
}

// NewPublisher creates a new lifecycle event publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream ensures the insights stream exists with proper configuration.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	// Create stream
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour, // 90 days
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Insight generation job and insight lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// JobSubject returns the subject for a job lifecycle event.
func JobSubject(userID, chatID string, eventType model.JobEventType) string {
	return fmt.Sprintf("%s.%s.%s.job.%s", SubjectPrefix, userID, chatID, eventType)
}

// InsightSubject returns the subject for a single insight's outcome event.
func InsightSubject(userID, chatID string, status model.InsightStatus) string {
	return fmt.Sprintf("%s.%s.%s.insight.%s", SubjectPrefix, userID, chatID, status)
}

// ChatFilter returns the filter subject for all events about a chat.
func ChatFilter(userID, chatID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, userID, chatID)
}

// PublishJobEvent publishes a job lifecycle event to JetStream.
func (p *Publisher) PublishJobEvent(ctx context.Context, event *model.JobEvent) error {
	subject := JobSubject(event.UserID, event.ChatID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}

	return nil
}

// PublishInsightEvent publishes a single insight's outcome to JetStream.
func (p *Publisher) PublishInsightEvent(ctx context.Context, event *model.InsightEvent) error {
	subject := InsightSubject(event.UserID, event.ChatID, event.Status)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal insight event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish insight event: %w", err)
	}

	return nil
}
