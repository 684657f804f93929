package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/chatlens-ai/insight-platform/internal/embedding"
)

// MemoryIndex is an in-memory cosine-similarity index keyed by chat.
type MemoryIndex struct {
	mu      sync.RWMutex
	byChat  map[string][]Record
	indexOf map[string]string // record ID -> chat ID
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		byChat:  make(map[string][]Record),
		indexOf: make(map[string]string),
	}
}

// Upsert inserts or replaces records by ID.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if prevChat, ok := m.indexOf[rec.ID]; ok {
			m.removeLocked(prevChat, rec.ID)
		}
		m.byChat[rec.ChatID] = append(m.byChat[rec.ChatID], rec)
		m.indexOf[rec.ID] = rec.ChatID
	}
	return nil
}

// Search returns up to limit matches for the chat, ranked by cosine
// similarity descending.
func (m *MemoryIndex) Search(ctx context.Context, chatID string, query embedding.Vector, limit int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.byChat[chatID]
	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		matches = append(matches, Match{
			ID:              rec.ID,
			Score:           CosineSimilarity(query, rec.Vector),
			Text:            rec.Text,
			ChunkIndex:      rec.ChunkIndex,
			Speakers:        rec.Speakers,
			MessageCount:    rec.MessageCount,
			TimeSpanMinutes: rec.TimeSpanMinutes,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteChat removes every record for a chat.
func (m *MemoryIndex) DeleteChat(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.byChat[chatID] {
		delete(m.indexOf, rec.ID)
	}
	delete(m.byChat, chatID)
	return nil
}

func (m *MemoryIndex) removeLocked(chatID, recordID string) {
	records := m.byChat[chatID]
	for i, rec := range records {
		if rec.ID == recordID {
			m.byChat[chatID] = append(records[:i], records[i+1:]...)
			break
		}
	}
	delete(m.indexOf, recordID)
}

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b embedding.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
