package ragcontext

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/model"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
	"github.com/chatlens-ai/insight-platform/pkg/metrics"
)

const (
	DefaultChunksPerGroup = 50
	DefaultCacheTTL       = time.Hour
)

// Retriever resolves a keyword query to ranked chunks for one chat.
type Retriever interface {
	Search(ctx context.Context, chatID, query string, limit int) ([]model.RankedChunk, error)
}

// TypeKeywords is one insight type's retrieval configuration.
type TypeKeywords struct {
	ID       string
	Keywords string
}

// Options configures the extractor.
type Options struct {
	ChunksPerGroup int
	CacheTTL       time.Duration
}

// Extractor fetches the retrieval context for a (chat, category) pair,
// cache-aside.
type Extractor struct {
	cache     Cache
	retriever Retriever
	logger    *logger.Logger
	opts      Options
}

// NewExtractor creates an extractor.
func NewExtractor(cache Cache, retriever Retriever, log *logger.Logger, opts Options) *Extractor {
	if opts.ChunksPerGroup == 0 {
		opts.ChunksPerGroup = DefaultChunksPerGroup
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Extractor{
		cache:     cache,
		retriever: retriever,
		logger:    log,
		opts:      opts,
	}
}

// ExtractCategoryContext returns the ranked chunk sets for every insight
// type in the category, keyed by group. Cache hits return the stored mapping
// verbatim. On a miss, one retrieval call runs per group; a group whose
// retrieval fails is omitted from the result (never an empty list) and does
// not abort the other groups.
//
// Groups map 1:1 to insight types; keyword-overlap clustering is a declared
// extension point and only the grouping would change, not the return shape.
func (e *Extractor) ExtractCategoryContext(ctx context.Context, chatID, categoryID string, configs []TypeKeywords) (ContextMap, error) {
	cached, hit, err := e.cache.Get(ctx, chatID, categoryID)
	if err != nil {
		// Cache trouble degrades to retrieval, not failure.
		e.logger.Warn("context cache read failed",
			zap.String("chat_id", chatID),
			zap.String("category_id", categoryID),
			zap.Error(err),
		)
	}
	if hit {
		metrics.ContextCacheHits.Inc()
		return cached, nil
	}
	metrics.ContextCacheMisses.Inc()

	result := make(ContextMap, len(configs))
	for _, cfg := range groupByKeywords(configs) {
		chunks, err := e.retriever.Search(ctx, chatID, cfg.Keywords, e.opts.ChunksPerGroup)
		if err != nil {
			e.logger.Warn("context retrieval failed for group",
				zap.String("chat_id", chatID),
				zap.String("category_id", categoryID),
				zap.String("group", cfg.ID),
				zap.Error(err),
			)
			continue
		}
		result[cfg.ID] = chunks
	}

	if err := e.cache.Set(ctx, chatID, categoryID, result, e.opts.CacheTTL); err != nil {
		e.logger.Warn("context cache write failed",
			zap.String("chat_id", chatID),
			zap.String("category_id", categoryID),
			zap.Error(err),
		)
	}

	return result, nil
}

// Invalidate drops the cached context for a (chat, category) pair. Called
// whenever the chat's underlying chunks change; TTL expiry is the fallback.
func (e *Extractor) Invalidate(ctx context.Context, chatID, categoryID string) error {
	return e.cache.Delete(ctx, chatID, categoryID)
}

// groupByKeywords maps insight-type configs to retrieval groups. Currently a
// 1:1 mapping of insight type to keyword string.
func groupByKeywords(configs []TypeKeywords) []TypeKeywords {
	return configs
}
