package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/ferryline/ferryline-api/internal/models"
)

type PreferenceRepository interface {
	// GetOrCreateGlobal returns the user's global preference, creating a
	// default-enabled row addressed to accountEmail if none exists yet.
	GetOrCreateGlobal(ctx context.Context, userID, accountEmail string) (models.NotificationPreference, error)
	// GetForJob returns the job-scoped preference when one exists,
	// otherwise the global one (created lazily as above).
	GetForJob(ctx context.Context, userID, accountEmail, jobID string) (models.NotificationPreference, error)
	Save(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error)
}

type preferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

const prefColumns = `id, user_id, job_id, enabled, notify_on_started, notify_on_completed, notify_on_failed, recipient_emails, created_at, updated_at`

func (r *preferenceRepository) GetOrCreateGlobal(ctx context.Context, userID, accountEmail string) (models.NotificationPreference, error) {
	pref, err := r.get(ctx, userID, "")
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.NotificationPreference{}, err
	}

	def := models.DefaultPreference(userID, accountEmail)
	// Concurrent first reads race on the insert; the conflict clause makes
	// the loser read back the winner's row.
	const query = `
		INSERT INTO notification_preferences
			(user_id, job_id, enabled, notify_on_started, notify_on_completed, notify_on_failed, recipient_emails)
		VALUES ($1, '', $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, job_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + prefColumns
	row := r.db.QueryRowContext(ctx, query,
		def.UserID, def.Enabled, def.NotifyOnStarted, def.NotifyOnCompleted, def.NotifyOnFailed, pq.Array(def.RecipientEmails))
	return scanPreference(row)
}

func (r *preferenceRepository) GetForJob(ctx context.Context, userID, accountEmail, jobID string) (models.NotificationPreference, error) {
	pref, err := r.get(ctx, userID, jobID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.NotificationPreference{}, err
	}
	return r.GetOrCreateGlobal(ctx, userID, accountEmail)
}

func (r *preferenceRepository) Save(ctx context.Context, pref models.NotificationPreference) (models.NotificationPreference, error) {
	const query = `
		INSERT INTO notification_preferences
			(user_id, job_id, enabled, notify_on_started, notify_on_completed, notify_on_failed, recipient_emails)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, job_id) DO UPDATE SET
			enabled             = EXCLUDED.enabled,
			notify_on_started   = EXCLUDED.notify_on_started,
			notify_on_completed = EXCLUDED.notify_on_completed,
			notify_on_failed    = EXCLUDED.notify_on_failed,
			recipient_emails    = EXCLUDED.recipient_emails,
			updated_at          = NOW()
		RETURNING ` + prefColumns
	row := r.db.QueryRowContext(ctx, query,
		pref.UserID, pref.JobID, pref.Enabled, pref.NotifyOnStarted, pref.NotifyOnCompleted, pref.NotifyOnFailed, pq.Array(pref.RecipientEmails))
	return scanPreference(row)
}

func (r *preferenceRepository) get(ctx context.Context, userID, jobID string) (models.NotificationPreference, error) {
	const query = `
		SELECT ` + prefColumns + `
		FROM notification_preferences
		WHERE user_id = $1 AND job_id = $2
	`
	pref, err := scanPreference(r.db.QueryRowContext(ctx, query, userID, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pref, ErrNotFound
		}
		return pref, err
	}
	return pref, nil
}

func scanPreference(scanner interface {
	Scan(dest ...interface{}) error
}) (models.NotificationPreference, error) {
	var (
		pref       models.NotificationPreference
		recipients pq.StringArray
	)
	err := scanner.Scan(
		&pref.ID,
		&pref.UserID,
		&pref.JobID,
		&pref.Enabled,
		&pref.NotifyOnStarted,
		&pref.NotifyOnCompleted,
		&pref.NotifyOnFailed,
		&recipients,
		&pref.CreatedAt,
		&pref.UpdatedAt,
	)
	if err != nil {
		return pref, err
	}
	pref.RecipientEmails = recipients
	return pref, nil
}
