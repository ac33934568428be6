package activity

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
)

// Repository handles the append-only activity_log table.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates an activity repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, logger: logger}
}

// Record inserts one audit row. Failures are logged and swallowed so a
// broken audit trail never fails the operation being audited.
func (r *Repository) Record(ctx context.Context, entry models.ActivityEntry) {
	const q = `INSERT INTO activity_log (action, actor_id, subject_id, detail, ip) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.pool.Exec(ctx, q, entry.Action, entry.ActorID, entry.SubjectID, entry.Detail, entry.IP); err != nil {
		r.logger.Warn("activity record failed", zap.String("action", entry.Action), zap.Error(err))
	}
}

// List returns entries newest first, optionally filtered by action.
func (r *Repository) List(ctx context.Context, action string, limit, offset int) ([]models.ActivityEntry, error) {
	const q = `SELECT id, action, actor_id, subject_id, detail, ip, created_at
		FROM activity_log
		WHERE ($1 = '' OR action = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.SubjectID, &e.Detail, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of entries, optionally filtered by action.
func (r *Repository) Count(ctx context.Context, action string) (int, error) {
	const q = `SELECT COUNT(*) FROM activity_log WHERE ($1 = '' OR action = $1)`
	var n int
	err := r.pool.QueryRow(ctx, q, action).Scan(&n)
	return n, err
}
