package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/chatlens-ai/insight-platform/internal/credit"
	"github.com/chatlens-ai/insight-platform/internal/middleware"
	"github.com/chatlens-ai/insight-platform/pkg/logger"
)

// CreditHandler handles credit balance and history endpoints.
type CreditHandler struct {
	ledger *credit.Ledger
	logger *logger.Logger
}

// NewCreditHandler creates a new credit handler.
func NewCreditHandler(ledger *credit.Ledger, log *logger.Logger) *CreditHandler {
	return &CreditHandler{
		ledger: ledger,
		logger: log,
	}
}

// Balance handles GET /api/v1/credits/balance
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	balance, err := h.ledger.Balance(ctx, userID)
	if err != nil {
		h.logger.Error("failed to read balance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// History handles GET /api/v1/credits/history
func (h *CreditHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	transactions, err := h.ledger.History(ctx, userID)
	if err != nil {
		h.logger.Error("failed to read transaction history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read transaction history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
	})
}
