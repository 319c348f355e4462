package models

import "time"

// TriggerType describes how a job's transfers are started upstream.
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"
	TriggerHotFolder TriggerType = "HOT_FOLDER"
)

// TransferStatus is the canonical classification of a job's current
// activity, derived fresh on every poll from whichever raw status field
// the upstream API happened to populate.
type TransferStatus string

const (
	StatusReady      TransferStatus = "READY"
	StatusInProgress TransferStatus = "IN_PROGRESS"
	StatusPaused     TransferStatus = "PAUSED"
	StatusError      TransferStatus = "ERROR"
	StatusCompleted  TransferStatus = "COMPLETED"
	StatusUnknown    TransferStatus = "UNKNOWN"
)

// Terminal reports whether the status marks the end of a transfer run.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job is a unit of transfer work known to the upstream API. Jobs are
// created and deleted upstream; this service only observes them.
type Job struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	TriggerType    TriggerType `json:"trigger_type"`
	SourceRef      string      `json:"source_ref"`
	DestinationRef string      `json:"destination_ref"`
	CreatedOn      time.Time   `json:"created_on"`
	LastModifiedOn time.Time   `json:"last_modified_on"`

	Status   TransferStatus    `json:"status"`
	Progress *TransferProgress `json:"progress,omitempty"`
}

// TransferProgress is a point-in-time snapshot of an in-progress job's
// counters. It is only populated when Status is IN_PROGRESS.
type TransferProgress struct {
	BytesTransferred   int64     `json:"bytes_transferred"`
	BytesRemaining     int64     `json:"bytes_remaining"`
	FilesTransferred   int64     `json:"files_transferred"`
	FilesRemaining     int64     `json:"files_remaining"`
	FilesFailed        int64     `json:"files_failed"`
	FilesSkipped       int64     `json:"files_skipped"`
	TotalBytes         int64     `json:"total_bytes"`
	TotalFiles         int64     `json:"total_files"`
	RateBitsPerSecond  int64     `json:"rate_bits_per_second"`
	PercentComplete    float64   `json:"percent_complete"`
	EstimatedRemaining int64     `json:"estimated_remaining_seconds"`
	StartedAt          time.Time `json:"started_at"`
}

// Reconciled is a detected change in a job's canonical status between
// two synchronizer ticks.
type Reconciled struct {
	JobID    string         `json:"job_id"`
	Previous TransferStatus `json:"previous"`
	New      TransferStatus `json:"new"`
	Record   HistoryRecord  `json:"record"`
}
