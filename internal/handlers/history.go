package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ferryline/ferryline-api/internal/authz"
	"github.com/ferryline/ferryline-api/internal/repository"
)

type HistoryHandler struct {
	repo   repository.HistoryRepository
	logger zerolog.Logger
}

func NewHistoryHandler(repo repository.HistoryRepository, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{repo: repo, logger: logger}
}

func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list history")
		http.Error(w, "Failed to list transfer history", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (h *HistoryHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	jobID := mux.Vars(r)["jobID"]

	if err := h.repo.Delete(r.Context(), userID, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "History record not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Str("job_id", jobID).Msg("failed to delete history record")
		http.Error(w, "Failed to delete history record", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
