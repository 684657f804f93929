package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

// MemoryStore is an in-memory Store for tests and single-process use. One
// mutex serializes all mutation, which trivially satisfies the per-job and
// per-user critical-section requirements.
type MemoryStore struct {
	mu sync.RWMutex

	chats        map[string]model.Chat
	messages     map[string][]model.Message
	chunks       map[string][]model.ConversationChunk
	insightTypes map[string]model.InsightType
	insights     map[string]model.Insight
	jobs         map[string]model.InsightGenerationJob
	balances     map[string]int
	transactions map[string]model.CreditTransaction
	ledgerOrder  map[string][]string // user ID -> transaction IDs in creation order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:        make(map[string]model.Chat),
		messages:     make(map[string][]model.Message),
		chunks:       make(map[string][]model.ConversationChunk),
		insightTypes: make(map[string]model.InsightType),
		insights:     make(map[string]model.Insight),
		jobs:         make(map[string]model.InsightGenerationJob),
		balances:     make(map[string]int),
		transactions: make(map[string]model.CreditTransaction),
		ledgerOrder:  make(map[string][]string),
	}
}

func (s *MemoryStore) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, model.ErrChatNotFound
	}
	return &chat, nil
}

func (s *MemoryStore) SaveChat(ctx context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat.UpdatedAt = time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = chat.UpdatedAt
	}
	s.chats[chat.ID] = *chat
	return nil
}

func (s *MemoryStore) SetIndexingStatus(ctx context.Context, chatID string, status model.IndexingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return model.ErrChatNotFound
	}
	chat.IndexingStatus = status
	chat.UpdatedAt = time.Now()
	s.chats[chatID] = chat
	return nil
}

func (s *MemoryStore) SetGenerationStatus(ctx context.Context, chatID string, status model.GenerationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return model.ErrChatNotFound
	}
	chat.GenerationStatus = status
	chat.UpdatedAt = time.Now()
	s.chats[chatID] = chat
	return nil
}

func (s *MemoryStore) SaveMessages(ctx context.Context, messages []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range messages {
		s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	}
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages[chatID]))
	copy(out, s.messages[chatID])
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (s *MemoryStore) ReplaceChunks(ctx context.Context, chatID string, chunks []model.ConversationChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replacement := make([]model.ConversationChunk, len(chunks))
	copy(replacement, chunks)
	s.chunks[chatID] = replacement
	return nil
}

func (s *MemoryStore) ListChunks(ctx context.Context, chatID string) ([]model.ConversationChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ConversationChunk, len(s.chunks[chatID]))
	copy(out, s.chunks[chatID])
	return out, nil
}

func (s *MemoryStore) GetInsightType(ctx context.Context, id string) (*model.InsightType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.insightTypes[id]
	if !ok {
		return nil, model.ErrInsightTypeNotFound
	}
	return &it, nil
}

func (s *MemoryStore) ListActiveInsightTypes(ctx context.Context, categoryID string) ([]model.InsightType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.InsightType
	for _, it := range s.insightTypes {
		if it.CategoryID == categoryID && it.Active {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListCategoryIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, it := range s.insightTypes {
		if !seen[it.CategoryID] {
			seen[it.CategoryID] = true
			out = append(out, it.CategoryID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SaveInsightType(ctx context.Context, it *model.InsightType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insightTypes[it.ID] = *it
	return nil
}

func (s *MemoryStore) GetInsight(ctx context.Context, id string) (*model.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	insight, ok := s.insights[id]
	if !ok {
		return nil, model.ErrInsightNotFound
	}
	return &insight, nil
}

func (s *MemoryStore) FindInsightByChatAndType(ctx context.Context, chatID, insightTypeID string) (*model.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, insight := range s.insights {
		if insight.ChatID == chatID && insight.InsightTypeID == insightTypeID {
			out := insight
			return &out, nil
		}
	}
	return nil, model.ErrInsightNotFound
}

func (s *MemoryStore) SaveInsight(ctx context.Context, insight *model.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	insight.UpdatedAt = time.Now()
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = insight.UpdatedAt
	}
	s.insights[insight.ID] = *insight
	return nil
}

func (s *MemoryStore) ListInsightsByChat(ctx context.Context, chatID string) ([]model.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Insight
	for _, insight := range s.insights {
		if insight.ChatID == chatID {
			out = append(out, insight)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *model.InsightGenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*model.InsightGenerationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	out := job
	out.FailedInsightIDs = append([]string(nil), job.FailedInsightIDs...)
	return &out, nil
}

func (s *MemoryStore) HasUnresolvedJob(ctx context.Context, chatID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.ChatID == chatID && !job.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) MarkJobStarted(ctx context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	if job.Status != model.JobQueued {
		return model.ErrInvalidTransition
	}
	job.Status = model.JobRunning
	job.StartedAt = &at
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) ApplyJobProgress(ctx context.Context, jobID string, delta model.ProgressDelta) (*model.InsightGenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil, model.ErrInvalidTransition
	}

	if delta.Completed {
		job.CompletedInsights++
	} else {
		job.FailedInsights++
		job.FailedInsightIDs = append(job.FailedInsightIDs, delta.InsightID)
		if job.ErrorSummary == nil && delta.Error != "" {
			errCopy := delta.Error
			job.ErrorSummary = &errCopy
		}
	}
	job.TokensUsed += delta.TokensUsed
	job.GenerationTimeMs += delta.GenerationTimeMs

	s.jobs[jobID] = job

	out := job
	out.FailedInsightIDs = append([]string(nil), job.FailedInsightIDs...)
	return &out, nil
}

func (s *MemoryStore) FinalizeJob(ctx context.Context, jobID string, status model.JobStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, model.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.Status = status
	job.CompletedAt = &at
	s.jobs[jobID] = job
	return true, nil
}

func (s *MemoryStore) GetBalance(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[userID], nil
}

func (s *MemoryStore) ApplyTransaction(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balances[txn.UserID]
	newBalance := balance + txn.Amount
	if newBalance < 0 {
		return nil, &model.InsufficientCreditsError{
			Required:  -txn.Amount,
			Available: balance,
			Deficit:   -newBalance,
		}
	}

	applied := *txn
	if applied.ID == "" {
		applied.ID = uuid.Must(uuid.NewV7()).String()
	}
	if applied.Status == "" {
		applied.Status = model.TransactionCompleted
	}
	applied.BalanceAfter = newBalance
	applied.CreatedAt = time.Now()

	s.balances[txn.UserID] = newBalance
	s.transactions[applied.ID] = applied
	s.ledgerOrder[txn.UserID] = append(s.ledgerOrder[txn.UserID], applied.ID)

	out := applied
	return &out, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, model.ErrTransactionNotFound
	}
	return &txn, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ledgerOrder[userID]
	out := make([]model.CreditTransaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.transactions[id])
	}
	return out, nil
}
