// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ChunkingRuns tracks chat chunking/indexing runs by outcome.
	ChunkingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chunking_runs_total",
			Help: "Chat chunking runs by outcome",
		},
		[]string{"status"},
	)

	// ChunksCreated tracks conversation chunks produced by chunking runs.
	ChunksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chunks_created_total",
			Help: "Conversation chunks created",
		},
	)

	// InsightsGenerated tracks insight generation outcomes.
	InsightsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_generated_total",
			Help: "Insight generation work items by final status",
		},
		[]string{"status"},
	)

	// JobsFinalized tracks generation jobs reaching a terminal status.
	JobsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_jobs_finalized_total",
			Help: "Generation jobs finalized by terminal status",
		},
		[]string{"status"},
	)

	// CreditTransactions tracks ledger entries by type.
	CreditTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_transactions_total",
			Help: "Credit ledger transactions by type",
		},
		[]string{"type"},
	)

	// ContextCacheHits tracks RAG context cache hits.
	ContextCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_context_cache_hits_total",
			Help: "RAG context cache hits",
		},
	)

	// ContextCacheMisses tracks RAG context cache misses.
	ContextCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_context_cache_misses_total",
			Help: "RAG context cache misses",
		},
	)

	// LLMCompletionDuration tracks LLM completion latency.
	LLMCompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCompletion records metrics for one LLM completion.
func RecordLLMCompletion(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMCompletionDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}
