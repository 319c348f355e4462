package transfer

import "fmt"

// AuthError is returned when the client-credentials exchange fails. It is
// the only error kind that aborts a whole synchronizer tick, since no call
// can succeed without a bearer header.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a failed fetch for a single job or transfer. It is
// isolated to that job; the affected job is reported UNKNOWN for the tick.
type UpstreamError struct {
	JobID      string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream fetch failed (job %s): %v", e.JobID, e.Err)
	}
	return fmt.Sprintf("upstream fetch failed (job %s): status %d: %s", e.JobID, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
