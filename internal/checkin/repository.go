package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/database"
)

// Repository persists check-in instances and implements Store for the scan
// service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a check-in repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AttendeeByToken resolves a QR token to its attendee.
func (r *Repository) AttendeeByToken(ctx context.Context, qrToken string) (*models.Attendee, error) {
	const q = `SELECT id, full_name, email, phone, company, qr_token, registration_type, checked_in, first_checked_in_at, created_at, updated_at
		FROM attendees WHERE qr_token = $1`
	var a models.Attendee
	err := r.pool.QueryRow(ctx, q, qrToken).Scan(&a.ID, &a.FullName, &a.Email, &a.Phone, &a.Company,
		&a.QRToken, &a.RegistrationType, &a.CheckedIn, &a.FirstCheckedInAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &a, nil
}

// CountInstances returns how many scans the token already has.
func (r *Repository) CountInstances(ctx context.Context, qrToken string) (int, error) {
	const q = `SELECT COUNT(*) FROM check_in_instances WHERE qr_token = $1`
	var n int
	err := r.pool.QueryRow(ctx, q, qrToken).Scan(&n)
	return n, err
}

// InsertInstance writes one scan row. A (qr_token, ordinal) conflict means a
// concurrent scan won the ordinal; the caller recounts and retries.
func (r *Repository) InsertInstance(ctx context.Context, inst *models.CheckInInstance) error {
	const q = `INSERT INTO check_in_instances (qr_token, ordinal, guest_type, checked_in_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, inst.QRToken, inst.Ordinal, inst.GuestType, inst.CheckedInAt).
		Scan(&inst.ID, &inst.CreatedAt)
	if err != nil {
		if database.IsUniqueViolationOn(err, "check_in_instances_token_ordinal_key") {
			return ErrOrdinalTaken
		}
		return err
	}
	return nil
}

// MarkFirstCheckIn flips the attendee's checked_in flag. first_checked_in_at
// is set once and never moves, so re-running this is harmless.
func (r *Repository) MarkFirstCheckIn(ctx context.Context, qrToken string, at time.Time) error {
	const q = `UPDATE attendees SET checked_in = TRUE,
			first_checked_in_at = COALESCE(first_checked_in_at, $2),
			updated_at = NOW()
		WHERE qr_token = $1`
	_, err := r.pool.Exec(ctx, q, qrToken, at)
	return err
}

// ListInstances returns scan rows newest first, joined with attendee names.
// qrToken narrows to one token when non-empty.
func (r *Repository) ListInstances(ctx context.Context, qrToken string, limit, offset int) ([]models.CheckInRecord, error) {
	const q = `SELECT i.id, i.qr_token, i.ordinal, i.guest_type, i.checked_in_at, i.created_at, a.id, a.full_name
		FROM check_in_instances i
		JOIN attendees a ON a.qr_token = i.qr_token
		WHERE ($1 = '' OR i.qr_token = $1)
		ORDER BY i.checked_in_at DESC, i.ordinal DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, qrToken, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.CheckInRecord
	for rows.Next() {
		var rec models.CheckInRecord
		if err := rows.Scan(&rec.ID, &rec.QRToken, &rec.Ordinal, &rec.GuestType, &rec.CheckedInAt,
			&rec.CreatedAt, &rec.AttendeeID, &rec.AttendeeName); err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// CountAll returns the total number of scan rows, optionally for one token.
func (r *Repository) CountAll(ctx context.Context, qrToken string) (int, error) {
	const q = `SELECT COUNT(*) FROM check_in_instances WHERE ($1 = '' OR qr_token = $1)`
	var n int
	err := r.pool.QueryRow(ctx, q, qrToken).Scan(&n)
	return n, err
}

// Repair recomputes every attendee's checked_in flag from the existence of
// an ordinal-1 instance. Heals rows left behind by a crash between instance
// insert and flag update, in both directions. Returns corrected row count.
func (r *Repository) Repair(ctx context.Context) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `UPDATE attendees a SET checked_in = TRUE,
			first_checked_in_at = COALESCE(a.first_checked_in_at, i.checked_in_at),
			updated_at = NOW()
		FROM check_in_instances i
		WHERE i.qr_token = a.qr_token AND i.ordinal = 1
			AND (a.checked_in = FALSE OR a.first_checked_in_at IS NULL)`)
	if err != nil {
		return 0, err
	}
	corrected := ct.RowsAffected()

	ct, err = tx.Exec(ctx, `UPDATE attendees a SET checked_in = FALSE,
			first_checked_in_at = NULL,
			updated_at = NOW()
		WHERE a.checked_in = TRUE
			AND NOT EXISTS (SELECT 1 FROM check_in_instances i WHERE i.qr_token = a.qr_token AND i.ordinal = 1)`)
	if err != nil {
		return 0, err
	}
	corrected += ct.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return corrected, nil
}
