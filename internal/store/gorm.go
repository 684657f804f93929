package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

// GormStore is the Postgres-backed Store. Job progress and ledger mutation
// use row-level locks so read-modify-write cycles are serialized per job and
// per user.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the schema for every persisted model.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&model.Chat{},
		&model.Message{},
		&model.ConversationChunk{},
		&model.InsightType{},
		&model.Insight{},
		&model.InsightGenerationJob{},
		&model.CreditTransaction{},
		&model.UserBalance{},
	)
}

func (s *GormStore) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *GormStore) SaveChat(ctx context.Context, chat *model.Chat) error {
	chat.UpdatedAt = time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = chat.UpdatedAt
	}
	return s.db.WithContext(ctx).Save(chat).Error
}

func (s *GormStore) SetIndexingStatus(ctx context.Context, chatID string, status model.IndexingStatus) error {
	return s.updateChat(ctx, chatID, map[string]interface{}{"indexing_status": status})
}

func (s *GormStore) SetGenerationStatus(ctx context.Context, chatID string, status model.GenerationStatus) error {
	return s.updateChat(ctx, chatID, map[string]interface{}{"generation_status": status})
}

func (s *GormStore) updateChat(ctx context.Context, chatID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", chatID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrChatNotFound
	}
	return nil
}

func (s *GormStore) SaveMessages(ctx context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&messages).Error
}

func (s *GormStore) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var out []model.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("sent_at ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) ReplaceChunks(ctx context.Context, chatID string, chunks []model.ConversationChunk) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&model.ConversationChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.Create(&chunks).Error
	})
}

func (s *GormStore) ListChunks(ctx context.Context, chatID string) ([]model.ConversationChunk, error) {
	var out []model.ConversationChunk
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("chunk_index ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) GetInsightType(ctx context.Context, id string) (*model.InsightType, error) {
	var it model.InsightType
	err := s.db.WithContext(ctx).First(&it, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrInsightTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *GormStore) ListActiveInsightTypes(ctx context.Context, categoryID string) ([]model.InsightType, error) {
	var out []model.InsightType
	err := s.db.WithContext(ctx).
		Where("category_id = ? AND active = ?", categoryID, true).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) ListCategoryIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).
		Model(&model.InsightType{}).
		Distinct("category_id").
		Order("category_id ASC").
		Pluck("category_id", &out).Error
	return out, err
}

func (s *GormStore) SaveInsightType(ctx context.Context, it *model.InsightType) error {
	return s.db.WithContext(ctx).Save(it).Error
}

func (s *GormStore) GetInsight(ctx context.Context, id string) (*model.Insight, error) {
	var insight model.Insight
	err := s.db.WithContext(ctx).First(&insight, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrInsightNotFound
	}
	if err != nil {
		return nil, err
	}
	return &insight, nil
}

func (s *GormStore) FindInsightByChatAndType(ctx context.Context, chatID, insightTypeID string) (*model.Insight, error) {
	var insight model.Insight
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND insight_type_id = ?", chatID, insightTypeID).
		First(&insight).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrInsightNotFound
	}
	if err != nil {
		return nil, err
	}
	return &insight, nil
}

func (s *GormStore) SaveInsight(ctx context.Context, insight *model.Insight) error {
	insight.UpdatedAt = time.Now()
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = insight.UpdatedAt
	}
	return s.db.WithContext(ctx).Save(insight).Error
}

func (s *GormStore) ListInsightsByChat(ctx context.Context, chatID string) ([]model.Insight, error) {
	var out []model.Insight
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *GormStore) CreateJob(ctx context.Context, job *model.InsightGenerationJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *GormStore) GetJob(ctx context.Context, id string) (*model.InsightGenerationJob, error) {
	var job model.InsightGenerationJob
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) HasUnresolvedJob(ctx context.Context, chatID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.InsightGenerationJob{}).
		Where("chat_id = ? AND status IN ?", chatID, []model.JobStatus{model.JobQueued, model.JobRunning}).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) MarkJobStarted(ctx context.Context, jobID string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.Status != model.JobQueued {
			return model.ErrInvalidTransition
		}
		return tx.Model(&model.InsightGenerationJob{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":     model.JobRunning,
				"started_at": at,
			}).Error
	})
}

func (s *GormStore) ApplyJobProgress(ctx context.Context, jobID string, delta model.ProgressDelta) (*model.InsightGenerationJob, error) {
	var out *model.InsightGenerationJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return model.ErrInvalidTransition
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

		if err := tx.Save(job).Error; err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) FinalizeJob(ctx context.Context, jobID string, status model.JobStatus, at time.Time) (bool, error) {
	finalized := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := lockJob(tx, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return nil
		}
		if err := tx.Model(&model.InsightGenerationJob{}).
			Where("id = ?", jobID).
			Updates(map[string]interface{}{
				"status":       status,
				"completed_at": at,
			}).Error; err != nil {
			return err
		}
		finalized = true
		return nil
	})
	return finalized, err
}

func lockJob(tx *gorm.DB, jobID string) (*model.InsightGenerationJob, error) {
	var job model.InsightGenerationJob
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *GormStore) GetBalance(ctx context.Context, userID string) (int, error) {
	var bal model.UserBalance
	err := s.db.WithContext(ctx).First(&bal, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal.Balance, nil
}

func (s *GormStore) ApplyTransaction(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) {
	applied := *txn
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bal model.UserBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&bal, "user_id = ?", txn.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bal = model.UserBalance{UserID: txn.UserID}
			if err := tx.Create(&bal).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		newBalance := bal.Balance + txn.Amount
		if newBalance < 0 {
			return &model.InsufficientCreditsError{
				Required:  -txn.Amount,
				Available: bal.Balance,
				Deficit:   -newBalance,
			}
		}

		if applied.ID == "" {
			applied.ID = uuid.Must(uuid.NewV7()).String()
		}
		if applied.Status == "" {
			applied.Status = model.TransactionCompleted
		}
		applied.BalanceAfter = newBalance
		applied.CreatedAt = time.Now()

		if err := tx.Create(&applied).Error; err != nil {
			return err
		}
		return tx.Model(&model.UserBalance{}).
			Where("user_id = ?", txn.UserID).
			Updates(map[string]interface{}{
				"balance":    newBalance,
				"updated_at": applied.CreatedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &applied, nil
}

func (s *GormStore) GetTransaction(ctx context.Context, id string) (*model.CreditTransaction, error) {
	var txn model.CreditTransaction
	err := s.db.WithContext(ctx).First(&txn, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, userID string) ([]model.CreditTransaction, error) {
	var out []model.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
