package transfer

import "time"

// Raw payload shapes returned by the upstream transfer API. The API is
// inconsistent about where it reports status: depending on the endpoint a
// job may carry it under the first trigger's monitor, the first action, or
// at the top level. Normalize handles the priority between them.

type RawJob struct {
	JobID          string       `json:"jobId"`
	Name           string       `json:"name"`
	TriggerType    string       `json:"triggerType"`
	Status         string       `json:"status"`
	SourceRef      string       `json:"sourceRef"`
	DestinationRef string       `json:"destinationRef"`
	CreatedOn      time.Time    `json:"createdOn"`
	LastModifiedOn time.Time    `json:"lastModifiedOn"`
	Triggers       []RawTrigger `json:"triggers"`
	Actions        []RawAction  `json:"actions"`
}

type RawTrigger struct {
	Monitor *RawMonitor `json:"monitor"`
}

type RawMonitor struct {
	Status RawStatus `json:"status"`
}

type RawAction struct {
	Status RawStatus `json:"status"`
}

type RawStatus struct {
	State      string   `json:"state"`
	AlertCodes []string `json:"alertCodes,omitempty"`
}

// RawJobPage is one page of the bulk job listing.
type RawJobPage struct {
	Items      []RawJob `json:"items"`
	TotalCount int      `json:"totalCount"`
	Offset     int      `json:"offset"`
	Limit      int      `json:"limit"`
}

// RawTransfer is the transfer-detail payload for one in-progress
// execution, fetched per job.
type RawTransfer struct {
	TransferID        string     `json:"transferId"`
	JobID             string     `json:"jobId"`
	State             string     `json:"state"`
	StartedAt         time.Time  `json:"startedAt"`
	RateBitsPerSecond int64      `json:"currentRateBitsPerSecond"`
	Transferred       RawCounter `json:"transferred"`
	Remaining         RawCounter `json:"remaining"`
	Failed            RawCounter `json:"failed"`
	Skipped           RawCounter `json:"skipped"`
}

type RawCounter struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// RawTransferPage wraps the job-scoped transfer listing.
type RawTransferPage struct {
	Items []RawTransfer `json:"items"`
}
