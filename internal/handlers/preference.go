package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ferryline/ferryline-api/internal/authz"
	"github.com/ferryline/ferryline-api/internal/models"
	"github.com/ferryline/ferryline-api/internal/repository"
)

type PreferenceHandler struct {
	repo   repository.PreferenceRepository
	logger zerolog.Logger
}

func NewPreferenceHandler(repo repository.PreferenceRepository, logger zerolog.Logger) *PreferenceHandler {
	return &PreferenceHandler{repo: repo, logger: logger}
}

// GetPreference returns the global preference, or the job-scoped one when
// the route carries a jobID. Missing rows are created lazily with the
// defaults addressed to the account email.
func (h *PreferenceHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	email, _ := authz.UserEmailFromRequest(r)

	var (
		pref models.NotificationPreference
		err  error
	)
	if jobID := mux.Vars(r)["jobID"]; jobID != "" {
		pref, err = h.repo.GetForJob(r.Context(), userID, email, jobID)
	} else {
		pref, err = h.repo.GetOrCreateGlobal(r.Context(), userID, email)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load notification preference")
		http.Error(w, "Failed to load notification preference", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pref)
}

type preferenceRequest struct {
	Enabled           bool     `json:"enabled"`
	NotifyOnStarted   bool     `json:"notify_on_started"`
	NotifyOnCompleted bool     `json:"notify_on_completed"`
	NotifyOnFailed    bool     `json:"notify_on_failed"`
	RecipientEmails   []string `json:"recipient_emails"`
}

// SavePreference upserts the global or job-scoped preference row.
func (h *PreferenceHandler) SavePreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	recipients := make([]string, 0, len(req.RecipientEmails))
	for _, addr := range req.RecipientEmails {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if req.Enabled && len(recipients) == 0 {
		http.Error(w, "At least one recipient email is required", http.StatusBadRequest)
		return
	}

	pref := models.NotificationPreference{
		UserID:            userID,
		JobID:             mux.Vars(r)["jobID"],
		Enabled:           req.Enabled,
		NotifyOnStarted:   req.NotifyOnStarted,
		NotifyOnCompleted: req.NotifyOnCompleted,
		NotifyOnFailed:    req.NotifyOnFailed,
		RecipientEmails:   recipients,
	}

	saved, err := h.repo.Save(r.Context(), pref)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to save notification preference")
		http.Error(w, "Failed to save notification preference", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(saved)
}
