// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/middleware"
	"github.com/chatlens-ai/insight-platform/internal/service"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

// ChatHandler handles transcript ingestion and indexing endpoints.
type ChatHandler struct {
	service *service.InsightService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.InsightService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

type ingestMessageRequest struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sent_at"`
}

type ingestRequest struct {
	Title    string                 `json:"title"`
	Messages []ingestMessageRequest `json:"messages"`
}

// Ingest handles POST /api/v1/chats
func (h *ChatHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "transcript has no messages")
		return
	}
	for _, m := range req.Messages {
		if err := middleware.ValidateMessageContent(m.Content); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	messages := make([]service.IngestMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = service.IngestMessage{
			Sender:  m.Sender,
			Content: m.Content,
			SentAt:  m.SentAt,
		}
	}

	chat, err := h.service.IngestTranscript(ctx, userID, service.IngestRequest{
		Title:    req.Title,
		Messages: messages,
	})
	if err != nil {
		h.logger.Error("failed to ingest transcript", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to ingest transcript")
		return
	}

	writeJSON(w, http.StatusCreated, chat)
}

// Reindex handles POST /api/v1/chats/:id/reindex
func (h *ChatHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID := chi.URLParam(r, "id")

	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.ReindexChat(ctx, userID, chatID); err != nil {
		h.logger.Error("failed to reindex chat",
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "indexed",
	})
}
