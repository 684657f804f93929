// Package chunker splits ordered chat messages into semantically coherent
// conversational chunks for embedding and retrieval.
package chunker

import (
	"sort"
	"strings"
	"time"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

const (
	DefaultMaxChunkTokens = 2000
	DefaultMinChunkTokens = 50
	DefaultTimeWindow     = 10 * time.Minute

	// speakerShiftGap is the fixed threshold for the speaker-transition
	// rule: a gap over one hour combined with a speaker change marks a
	// hard topic boundary. Independent of the configurable time window.
	speakerShiftGap = time.Hour
)

// Options configures chunking behavior.
type Options struct {
	MaxChunkTokens int
	MinChunkTokens int
	TimeWindow     time.Duration
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxChunkTokens: DefaultMaxChunkTokens,
		MinChunkTokens: DefaultMinChunkTokens,
		TimeWindow:     DefaultTimeWindow,
	}
}

// Chunk splits messages into ordered conversational chunks. It is pure and
// deterministic: messages are stably sorted by timestamp, every message lands
// in exactly one chunk, and chunk indexes are contiguous from zero. Empty
// input yields nil.
//
// A buffer grows until a break fires (size ceiling, time window, or the
// speaker-transition rule). A buffer below the minimum size is never emitted
// on a break; it absorbs the triggering message and keeps growing, so short
// bursts after long gaps cannot produce one-message chunks. The trailing
// buffer is always emitted, even below the minimum.
func Chunk(messages []model.Message, opts Options) []model.ConversationChunk {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.MinChunkTokens == 0 {
		opts.MinChunkTokens = DefaultMinChunkTokens
	}
	if opts.TimeWindow == 0 {
		opts.TimeWindow = DefaultTimeWindow
	}
	if len(messages) == 0 {
		return nil
	}

	sorted := make([]model.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAt.Before(sorted[j].SentAt)
	})

	var chunks []model.ConversationChunk
	buffer := []model.Message{sorted[0]}

	for _, msg := range sorted[1:] {
		if !shouldBreak(buffer, msg, opts) {
			buffer = append(buffer, msg)
			continue
		}

		text := FormatChunkText(buffer)
		if EstimateTokens(text) >= opts.MinChunkTokens {
			chunks = append(chunks, buildChunk(buffer, len(chunks)))
			buffer = []model.Message{msg}
		} else {
			// Merge-small-into-next: too small to stand alone, so the
			// triggering message joins the same buffer. The break test
			// re-fires on the next candidate.
			buffer = append(buffer, msg)
		}
	}

	// The trailing buffer is emitted unconditionally; there is nothing
	// left to merge it into.
	chunks = append(chunks, buildChunk(buffer, len(chunks)))

	return chunks
}

// shouldBreak decides whether the current buffer must close before next is
// appended. The size test runs against the joined formatted text, so
// formatting overhead counts.
func shouldBreak(buffer []model.Message, next model.Message, opts Options) bool {
	if len(buffer) == 0 {
		return false
	}

	candidate := make([]model.Message, len(buffer), len(buffer)+1)
	copy(candidate, buffer)
	candidate = append(candidate, next)
	if EstimateTokens(FormatChunkText(candidate)) > opts.MaxChunkTokens {
		return true
	}

	last := buffer[len(buffer)-1]
	gap := next.SentAt.Sub(last.SentAt)
	if gap > opts.TimeWindow {
		return true
	}
	if gap > speakerShiftGap && next.SenderLabel() != last.SenderLabel() {
		return true
	}

	return false
}

// FormatChunkText renders messages as chunk text: consecutive messages from
// the same speaker collapse into a single "Speaker: joined text" line,
// preserving speaker order, lines joined by newlines.
func FormatChunkText(messages []model.Message) string {
	if len(messages) == 0 {
		return ""
	}

	var lines []string
	speaker := messages[0].SenderLabel()
	run := []string{messages[0].Content}

	flush := func() {
		lines = append(lines, speaker+": "+strings.Join(run, " "))
	}

	for _, msg := range messages[1:] {
		if label := msg.SenderLabel(); label != speaker {
			flush()
			speaker = label
			run = run[:0]
		}
		run = append(run, msg.Content)
	}
	flush()

	return strings.Join(lines, "\n")
}

// EstimateTokens approximates the token count of text as character count
// divided by four, integer division.
func EstimateTokens(text string) int {
	return len(text) / 4
}

func buildChunk(messages []model.Message, index int) model.ConversationChunk {
	text := FormatChunkText(messages)

	ids := make([]string, len(messages))
	seen := make(map[string]bool)
	var speakers []string
	for i, msg := range messages {
		ids[i] = msg.ID
		if label := msg.SenderLabel(); !seen[label] {
			seen[label] = true
			speakers = append(speakers, label)
		}
	}
	sort.Strings(speakers)

	start := messages[0].SentAt
	end := messages[len(messages)-1].SentAt

	return model.ConversationChunk{
		ChatID:          messages[0].ChatID,
		Index:           index,
		MessageIDs:      ids,
		Text:            text,
		StartTime:       start,
		EndTime:         end,
		Speakers:        speakers,
		MessageCount:    len(messages),
		TimeSpanMinutes: int(end.Sub(start).Minutes()),
		EstimatedTokens: EstimateTokens(text),
	}
}
