package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ferryline/ferryline-api/internal/models"
	"github.com/ferryline/ferryline-api/internal/transfer"
)

// TransferClient is the slice of the upstream client the job handler uses.
type TransferClient interface {
	ListJobs(ctx context.Context) ([]transfer.RawJob, error)
	ActiveTransfer(ctx context.Context, jobID string) (*transfer.RawTransfer, error)
	StartDelivery(ctx context.Context, jobID string) error
	SetPaused(ctx context.Context, jobID string, paused bool) error
	DeleteJob(ctx context.Context, jobID string) error
}

type JobHandler struct {
	client      TransferClient
	concurrency int
	logger      zerolog.Logger
}

func NewJobHandler(client TransferClient, concurrency int, logger zerolog.Logger) *JobHandler {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &JobHandler{client: client, concurrency: concurrency, logger: logger}
}

// ListJobs returns every upstream job with its canonical status; jobs that
// are mid-transfer also carry a progress snapshot. A failed detail fetch
// degrades that one job to UNKNOWN instead of failing the listing.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	rawJobs, err := h.client.ListJobs(r.Context())
	if err != nil {
		writeUpstreamError(w, h.logger, err)
		return
	}

	now := time.Now()
	jobs := make([]models.Job, len(rawJobs))
	details := make([]*transfer.RawTransfer, len(rawJobs))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(h.concurrency)
	for i, raw := range rawJobs {
		if transfer.Normalize(raw) != models.StatusInProgress {
			continue
		}
		i, raw := i, raw
		g.Go(func() error {
			detail, err := h.client.ActiveTransfer(ctx, raw.JobID)
			if err != nil {
				h.logger.Warn().Err(err).Str("job_id", raw.JobID).Msg("transfer detail fetch failed")
				return nil
			}
			details[i] = detail
			return nil
		})
	}
	g.Wait()

	for i, raw := range rawJobs {
		jobs[i] = transfer.JobFromRaw(raw, details[i], now)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

// StartDelivery triggers a manual run of the job upstream.
func (h *JobHandler) StartDelivery(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.client.StartDelivery(r.Context(), jobID); err != nil {
		writeUpstreamError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": "started"})
}

// UpdateJob handles pause/resume via a partial update body.
func (h *JobHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	var payload struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Paused == nil {
		http.Error(w, "Request body must contain a paused flag", http.StatusBadRequest)
		return
	}
	if err := h.client.SetPaused(r.Context(), jobID, *payload.Paused); err != nil {
		writeUpstreamError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"job_id": jobID, "paused": *payload.Paused})
}

// DeleteJob removes the job upstream. History records are untouched.
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobID"]
	if err := h.client.DeleteJob(r.Context(), jobID); err != nil {
		writeUpstreamError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeUpstreamError keeps auth failures structurally distinguishable from
// per-job upstream failures so the UI can show a global banner for the
// former and inline indicators for the latter.
func writeUpstreamError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var authErr *transfer.AuthError
	if errors.As(err, &authErr) {
		logger.Error().Err(err).Msg("transfer API authentication failed")
		http.Error(w, "Transfer API authentication failed", http.StatusBadGateway)
		return
	}

	var upstreamErr *transfer.UpstreamError
	if errors.As(err, &upstreamErr) {
		logger.Error().Err(err).Str("job_id", upstreamErr.JobID).Msg("transfer API request failed")
		if upstreamErr.StatusCode == http.StatusNotFound {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Transfer API request failed", http.StatusBadGateway)
		return
	}

	logger.Error().Err(err).Msg("transfer API request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
