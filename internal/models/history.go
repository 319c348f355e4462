package models

import "time"

// HistoryRecord is the persisted log entry for a job observed over time.
// Records are keyed by (user, job) and upserted on every tick that sees a
// change; CreatedOn is write-once.
type HistoryRecord struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	JobID          string         `json:"job_id"`
	Name           string         `json:"name"`
	Status         TransferStatus `json:"status"`
	Source         string         `json:"source"`
	Destination    string         `json:"destination"`
	TotalBytes     int64          `json:"total_bytes"`
	TotalFiles     int64          `json:"total_files"`
	CreatedOn      time.Time      `json:"created_on"`
	CompletedOn    *time.Time     `json:"completed_on,omitempty"`
	LastModifiedOn time.Time      `json:"last_modified_on"`
}
