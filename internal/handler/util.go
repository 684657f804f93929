package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatlens-ai/insight-platform/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *model.InsufficientCreditsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":     "insufficient credits",
			"required":  insufficient.Required,
			"available": insufficient.Available,
			"deficit":   insufficient.Deficit,
		})
	case errors.Is(err, model.ErrChatNotFound),
		errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrInsightNotFound),
		errors.Is(err, model.ErrInsightTypeNotFound),
		errors.Is(err, model.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrJobAlreadyActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrChatNotIndexed),
		errors.Is(err, model.ErrNoActiveInsightTypes),
		errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
