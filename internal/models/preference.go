package models

import "time"

// NotificationPreference controls whether a status transition triggers an
// email for a user. A row with an empty JobID is the user's global
// preference; job-scoped rows override it.
type NotificationPreference struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	JobID             string    `json:"job_id,omitempty"`
	Enabled           bool      `json:"enabled"`
	NotifyOnStarted   bool      `json:"notify_on_started"`
	NotifyOnCompleted bool      `json:"notify_on_completed"`
	NotifyOnFailed    bool      `json:"notify_on_failed"`
	RecipientEmails   []string  `json:"recipient_emails"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DefaultPreference is the lazily created global preference for a user:
// everything on, delivered to the account email.
func DefaultPreference(userID, accountEmail string) NotificationPreference {
	return NotificationPreference{
		UserID:            userID,
		Enabled:           true,
		NotifyOnStarted:   true,
		NotifyOnCompleted: true,
		NotifyOnFailed:    true,
		RecipientEmails:   []string{accountEmail},
	}
}

// Allows reports whether the preference permits an email for the given
// status transition.
func (p NotificationPreference) Allows(to TransferStatus) bool {
	if !p.Enabled {
		return false
	}
	switch to {
	case StatusInProgress:
		return p.NotifyOnStarted
	case StatusCompleted:
		return p.NotifyOnCompleted
	case StatusError:
		return p.NotifyOnFailed
	default:
		return false
	}
}
