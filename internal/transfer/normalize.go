package transfer

import (
	"strings"
	"time"

	"github.com/ferryline/ferryline-api/internal/models"
)

// statusResolver extracts a raw status token from one of the places the
// upstream API may report it. Resolvers are tried in priority order; the
// first non-empty token wins.
type statusResolver func(RawJob) string

var statusResolvers = []statusResolver{
	func(j RawJob) string {
		if len(j.Triggers) > 0 && j.Triggers[0].Monitor != nil {
			return j.Triggers[0].Monitor.Status.State
		}
		return ""
	},
	func(j RawJob) string {
		if len(j.Actions) > 0 {
			return j.Actions[0].Status.State
		}
		return ""
	},
	func(j RawJob) string { return j.Status },
}

// Normalize derives the canonical status for a raw job payload. Jobs with
// no populated status field default to READY; tokens outside the known
// vocabulary map to UNKNOWN rather than being dropped, since the upstream
// encodes status differently between its jobs, job-search, and transfers
// endpoints.
func Normalize(raw RawJob) models.TransferStatus {
	for _, resolve := range statusResolvers {
		if token := strings.TrimSpace(resolve(raw)); token != "" {
			return mapToken(token)
		}
	}
	return models.StatusReady
}

func mapToken(token string) models.TransferStatus {
	switch strings.ToUpper(token) {
	case "OK", "READY":
		return models.StatusReady
	case "IN_PROGRESS":
		return models.StatusInProgress
	case "PAUSED":
		return models.StatusPaused
	case "ERROR", "FAILED":
		return models.StatusError
	case "COMPLETED", "COMPLETE", "SUCCESS":
		return models.StatusCompleted
	default:
		return models.StatusUnknown
	}
}

// Progress computes derived progress metrics from a transfer-detail
// payload. Completion is file-count based: transferred / (transferred +
// remaining), zero when no counts have been reported yet.
func Progress(detail RawTransfer, now time.Time) models.TransferProgress {
	p := models.TransferProgress{
		BytesTransferred:  detail.Transferred.Bytes,
		BytesRemaining:    detail.Remaining.Bytes,
		FilesTransferred:  detail.Transferred.Count,
		FilesRemaining:    detail.Remaining.Count,
		FilesFailed:       detail.Failed.Count,
		FilesSkipped:      detail.Skipped.Count,
		TotalBytes:        detail.Transferred.Bytes + detail.Remaining.Bytes,
		TotalFiles:        detail.Transferred.Count + detail.Remaining.Count,
		RateBitsPerSecond: detail.RateBitsPerSecond,
		StartedAt:         detail.StartedAt,
	}

	if denom := detail.Transferred.Count + detail.Remaining.Count; denom > 0 {
		p.PercentComplete = float64(detail.Transferred.Count) / float64(denom) * 100
	}

	// Linear extrapolation: elapsed time scaled by the unfinished share.
	if p.PercentComplete > 0 && !detail.StartedAt.IsZero() {
		elapsed := now.Sub(detail.StartedAt).Seconds()
		if elapsed > 0 && p.PercentComplete < 100 {
			p.EstimatedRemaining = int64(elapsed * (100 - p.PercentComplete) / p.PercentComplete)
		}
	}
	return p
}

// JobFromRaw builds the API-facing job view: raw attributes plus the
// canonical status and, when supplied, the derived progress snapshot.
func JobFromRaw(raw RawJob, detail *RawTransfer, now time.Time) models.Job {
	job := models.Job{
		ID:             raw.JobID,
		Name:           raw.Name,
		TriggerType:    models.TriggerType(raw.TriggerType),
		SourceRef:      raw.SourceRef,
		DestinationRef: raw.DestinationRef,
		CreatedOn:      raw.CreatedOn,
		LastModifiedOn: raw.LastModifiedOn,
		Status:         Normalize(raw),
	}
	if job.Status == models.StatusInProgress && detail != nil {
		progress := Progress(*detail, now)
		job.Progress = &progress
	}
	return job
}
