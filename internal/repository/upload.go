// Package repository stores the upload journal in Postgres.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Upload represents a row in the uploads table.
type Upload struct {
	JobID       string    `json:"jobId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Status      string    `json:"status"`
	Identifier  *string   `json:"identifier,omitempty"`
	URL         *string   `json:"url,omitempty"`
	Reason      *string   `json:"reason,omitempty"`
	Backend     string    `json:"backend"`
	Target      string    `json:"target"`
	SettledAt   time.Time `json:"settledAt"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// UploadRepository wraps all SQL used by the journal worker and the CLI.
type UploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository constructs a repository.
func NewUploadRepository(pool *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{pool: pool}
}

// Record inserts a journal row, replacing an earlier row for the same job.
func (r *UploadRepository) Record(ctx context.Context, u *Upload) error {
	u.RecordedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO uploads (job_id, file_name, content_type, size, status, identifier, url, reason, backend, target, settled_at, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			identifier = EXCLUDED.identifier,
			url = EXCLUDED.url,
			reason = EXCLUDED.reason,
			settled_at = EXCLUDED.settled_at,
			recorded_at = EXCLUDED.recorded_at
	`, u.JobID, u.FileName, u.ContentType, u.Size, u.Status, u.Identifier, u.URL, u.Reason, u.Backend, u.Target, u.SettledAt, u.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// Recent returns the newest rows first.
func (r *UploadRepository) Recent(ctx context.Context, limit int) ([]Upload, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT job_id, file_name, content_type, size, status, identifier, url, reason, backend, target, settled_at, recorded_at
		FROM uploads ORDER BY settled_at DESC, recorded_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select uploads: %w", err)
	}
	uploads, err := pgx.CollectRows(rows, scanUpload)
	if err != nil {
		return nil, fmt.Errorf("scan uploads: %w", err)
	}
	return uploads, nil
}

func scanUpload(row pgx.CollectableRow) (Upload, error) {
	var (
		u          Upload
		identifier sql.NullString
		link       sql.NullString
		reason     sql.NullString
	)
	if err := row.Scan(&u.JobID, &u.FileName, &u.ContentType, &u.Size, &u.Status, &identifier, &link, &reason, &u.Backend, &u.Target, &u.SettledAt, &u.RecordedAt); err != nil {
		return Upload{}, err
	}
	u.Identifier = nullable(identifier)
	u.URL = nullable(link)
	u.Reason = nullable(reason)
	return u, nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
