// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chatlens-ai/insight-platform/internal/chunker"
	"github.com/chatlens-ai/insight-platform/internal/config"
	"github.com/chatlens-ai/insight-platform/internal/credit"
	"github.com/chatlens-ai/insight-platform/internal/embedding"
	"github.com/chatlens-ai/insight-platform/internal/generator"
	"github.com/chatlens-ai/insight-platform/internal/handler"
	"github.com/chatlens-ai/insight-platform/internal/indexer"
	"github.com/chatlens-ai/insight-platform/internal/llm"
	"github.com/chatlens-ai/insight-platform/internal/middleware"
	natsclient "github.com/chatlens-ai/insight-platform/internal/nats"
	"github.com/chatlens-ai/insight-platform/internal/orchestrator"
	"github.com/chatlens-ai/insight-platform/internal/ragcontext"
	"github.com/chatlens-ai/insight-platform/internal/service"
	"github.com/chatlens-ai/insight-platform/internal/store"
	"github.com/chatlens-ai/insight-platform/internal/vectorindex"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
	"github.com/chatlens-ai/insight-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "insight-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect to NATS
	nc, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	// Ensure JetStream stream exists
	publisher := natsclient.NewPublisher(nc)
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Initialize storage; Postgres when configured, in-memory otherwise
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Error("failed to connect to database", zap.Error(err))
			os.Exit(1)
		}
		gs := store.NewGormStore(db)
		if err := gs.AutoMigrate(); err != nil {
			log.Error("failed to migrate database", zap.Error(err))
			os.Exit(1)
		}
		st = gs
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	// Context cache; Redis when configured, in-memory otherwise
	var cache ragcontext.Cache
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid REDIS_URL", zap.Error(err))
			os.Exit(1)
		}
		cache = ragcontext.NewRedisCache(redis.NewClient(redisOpts))
	} else {
		log.Warn("REDIS_URL not set, using in-memory context cache")
		cache = ragcontext.NewMemoryCache()
	}

	// Embeddings are required for indexing and retrieval
	embedder, err := embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Error("failed to create embedder", zap.Error(err))
		os.Exit(1)
	}

	// Initialize LLM client
	llmClient, err := llm.NewClient(llm.Provider(cfg.DefaultLLM), llmAPIKey(cfg))
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Retrieval pipeline
	index := vectorindex.NewMemoryIndex()
	retriever := vectorindex.NewRetriever(embedder, index)
	extractor := ragcontext.NewExtractor(cache, retriever, log, ragcontext.Options{
		ChunksPerGroup: cfg.RetrievalLimit,
		CacheTTL:       cfg.ContextCacheTTL,
	})

	// Core services
	ledger := credit.NewLedger(st, log)
	gen := generator.New(st, llmClient, log, generator.Options{Model: cfg.GenerationModel})
	orch := orchestrator.New(st, st, ledger, extractor, gen, publisher, log, orchestrator.Options{
		MaxConcurrent:      cfg.MaxConcurrentInsights,
		PerInsightEstimate: cfg.PerInsightEstimate,
		ItemTimeout:        cfg.InsightTimeout,
	})
	ix := indexer.New(st, st, st, st, embedder, index, extractor, log, chunker.Options{
		MaxChunkTokens: cfg.ChunkMaxTokens,
		MinChunkTokens: cfg.ChunkMinTokens,
		TimeWindow:     cfg.ChunkTimeWindow,
	})
	svc := service.New(st, ledger, orch, ix, gen, extractor, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(nc)
	chatHandler := handler.NewChatHandler(svc, log)
	insightHandler := handler.NewInsightHandler(svc, log)
	creditHandler := handler.NewCreditHandler(ledger, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Chats
		r.Route("/chats", func(r chi.Router) {
			r.Post("/", chatHandler.Ingest)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/reindex", chatHandler.Reindex)

				// Insights
				r.Get("/insights", insightHandler.List)
				r.Post("/insights/unlock", insightHandler.Unlock)
			})
		})

		// Jobs
		r.Get("/jobs/{id}", insightHandler.JobStatus)

		// Insight retry
		r.Post("/insights/{id}/retry", insightHandler.Retry)

		// Credits
		r.Get("/credits/balance", creditHandler.Balance)
		r.Get("/credits/history", creditHandler.History)
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func llmAPIKey(cfg *config.Config) string {
	if llm.Provider(cfg.DefaultLLM) == llm.ProviderOpenAI {
		return cfg.OpenAIAPIKey
	}
	return cfg.AnthropicAPIKey
}
