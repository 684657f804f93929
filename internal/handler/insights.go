package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/middleware"
	"github.com/chatlens-ai/insight-platform/internal/service"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

// InsightHandler handles insight unlock, status, and retry endpoints.
type InsightHandler struct {
	service *service.InsightService
	logger  *logger.Logger
}

// NewInsightHandler creates a new insight handler.
func NewInsightHandler(svc *service.InsightService, log *logger.Logger) *InsightHandler {
	return &InsightHandler{
		service: svc,
		logger:  log,
	}
}

type unlockRequest struct {
	CategoryID string `json:"category_id"`
}

// Unlock handles POST /api/v1/chats/:id/insights/unlock
func (h *InsightHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CategoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	res, err := h.service.UnlockAndGenerate(ctx, userID, chatID, req.CategoryID)
	if err != nil {
		h.logger.Warn("unlock rejected",
			zap.String("chat_id", chatID),
			zap.String("category_id", req.CategoryID),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, res)
}

// JobStatus handles GET /api/v1/jobs/:id
func (h *InsightHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	jobID := chi.URLParam(r, "id")

	if err := middleware.ValidateJobID(jobID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.GetJobStatus(ctx, userID, jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// List handles GET /api/v1/chats/:id/insights
func (h *InsightHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	insights, err := h.service.ListChatInsights(ctx, userID, chatID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"insights": insights,
	})
}

// Retry handles POST /api/v1/insights/:id/retry
func (h *InsightHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	insightID := chi.URLParam(r, "id")

	insight, err := h.service.RetryInsight(ctx, userID, insightID)
	if err != nil {
		h.logger.Warn("insight retry rejected",
			zap.String("insight_id", insightID),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, insight)
}
