package exports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/backend/internal/models"
)

// ErrNotFound means no export job with that id exists.
var ErrNotFound = errors.New("export job not found")

const jobCols = `id, export_type, status, requested_by, s3_key, file_size, row_count, error_message, created_at, completed_at`

// Repository handles export_jobs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an exports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanJob(row pgx.Row, j *models.ExportJob) error {
	return row.Scan(&j.ID, &j.ExportType, &j.Status, &j.RequestedBy, &j.S3Key,
		&j.FileSize, &j.RowCount, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt)
}

// CreateJob inserts a pending job.
func (r *Repository) CreateJob(ctx context.Context, j *models.ExportJob) error {
	const q = `INSERT INTO export_jobs (export_type, requested_by)
		VALUES ($1, $2)
		RETURNING id, status, created_at`
	return r.pool.QueryRow(ctx, q, j.ExportType, j.RequestedBy).
		Scan(&j.ID, &j.Status, &j.CreatedAt)
}

// GetJob returns one job.
func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*models.ExportJob, error) {
	const q = `SELECT ` + jobCols + ` FROM export_jobs WHERE id = $1`
	var j models.ExportJob
	if err := scanJob(r.pool.QueryRow(ctx, q, id), &j); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// ListJobs returns jobs newest first.
func (r *Repository) ListJobs(ctx context.Context, limit, offset int) ([]models.ExportJob, error) {
	const q = `SELECT ` + jobCols + ` FROM export_jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ExportJob
	for rows.Next() {
		var j models.ExportJob
		if err := scanJob(rows, &j); err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// CountJobs returns the total number of jobs.
func (r *Repository) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM export_jobs`).Scan(&n)
	return n, err
}

// MarkProcessing moves a pending job to processing. Zero rows means another
// worker already claimed it.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE export_jobs SET status = 'processing' WHERE id = $1 AND status = 'pending'`
	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// Complete finishes a job with its artifact details.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, s3Key string, fileSize int64, rowCount int) error {
	const q = `UPDATE export_jobs SET status = 'completed', s3_key = $2, file_size = $3, row_count = $4, completed_at = $5
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, s3Key, fileSize, rowCount, time.Now())
	return err
}

// Fail finishes a job with the build error.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `UPDATE export_jobs SET status = 'failed', error_message = $2, completed_at = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, errMsg, time.Now())
	return err
}
