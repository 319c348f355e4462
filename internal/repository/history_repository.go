package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ferryline/ferryline-api/internal/models"
)

var ErrNotFound = errors.New("record not found")

type HistoryRepository interface {
	Upsert(ctx context.Context, rec models.HistoryRecord) error
	ListByUser(ctx context.Context, userID string) ([]models.HistoryRecord, error)
	Get(ctx context.Context, userID, jobID string) (models.HistoryRecord, error)
	Delete(ctx context.Context, userID, jobID string) error
}

type historyRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// Upsert inserts or updates the record keyed by (user_id, job_id).
// created_on is write-once and completed_on sticks to its first non-null
// value; everything else is overwritten.
func (r *historyRepository) Upsert(ctx context.Context, rec models.HistoryRecord) error {
	const query = `
		INSERT INTO transfer_history
			(user_id, job_id, name, status, source, destination, total_bytes, total_files, created_on, completed_on, last_modified_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, job_id) DO UPDATE SET
			name             = EXCLUDED.name,
			status           = EXCLUDED.status,
			source           = EXCLUDED.source,
			destination      = EXCLUDED.destination,
			total_bytes      = EXCLUDED.total_bytes,
			total_files      = EXCLUDED.total_files,
			completed_on     = COALESCE(transfer_history.completed_on, EXCLUDED.completed_on),
			last_modified_on = EXCLUDED.last_modified_on
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.UserID,
		rec.JobID,
		rec.Name,
		rec.Status,
		rec.Source,
		rec.Destination,
		rec.TotalBytes,
		rec.TotalFiles,
		rec.CreatedOn,
		rec.CompletedOn,
		rec.LastModifiedOn,
	)
	return err
}

func (r *historyRepository) ListByUser(ctx context.Context, userID string) ([]models.HistoryRecord, error) {
	const query = `
		SELECT id, user_id, job_id, name, status, source, destination, total_bytes, total_files, created_on, completed_on, last_modified_on
		FROM transfer_history
		WHERE user_id = $1
		ORDER BY last_modified_on DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.HistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *historyRepository) Get(ctx context.Context, userID, jobID string) (models.HistoryRecord, error) {
	const query = `
		SELECT id, user_id, job_id, name, status, source, destination, total_bytes, total_files, created_on, completed_on, last_modified_on
		FROM transfer_history
		WHERE user_id = $1 AND job_id = $2
	`
	rec, err := scanHistory(r.db.QueryRowContext(ctx, query, userID, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	return rec, nil
}

func (r *historyRepository) Delete(ctx context.Context, userID, jobID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transfer_history WHERE user_id = $1 AND job_id = $2`, userID, jobID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanHistory(scanner interface {
	Scan(dest ...interface{}) error
}) (models.HistoryRecord, error) {
	var (
		rec         models.HistoryRecord
		completedOn sql.NullTime
	)
	err := scanner.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.JobID,
		&rec.Name,
		&rec.Status,
		&rec.Source,
		&rec.Destination,
		&rec.TotalBytes,
		&rec.TotalFiles,
		&rec.CreatedOn,
		&completedOn,
		&rec.LastModifiedOn,
	)
	if err != nil {
		return rec, err
	}
	if completedOn.Valid {
		rec.CompletedOn = &completedOn.Time
	}
	return rec, nil
}
