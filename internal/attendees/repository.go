package attendees

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/database"
)

var (
	// ErrNotFound means no attendee with that id exists.
	ErrNotFound = errors.New("attendee not found")
	// ErrEmailTaken means another attendee already has this email.
	ErrEmailTaken = errors.New("an attendee with this email already exists")
	// ErrQRTokenTaken means the generated code collided; mint a new one and retry.
	ErrQRTokenTaken = errors.New("qr token already assigned")
)

const attendeeCols = `id, full_name, email, phone, company, qr_token, registration_type, checked_in, first_checked_in_at, created_at, updated_at`

// Repository handles attendee persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendees repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAttendee(row pgx.Row, a *models.Attendee) error {
	return row.Scan(&a.ID, &a.FullName, &a.Email, &a.Phone, &a.Company, &a.QRToken,
		&a.RegistrationType, &a.CheckedIn, &a.FirstCheckedInAt, &a.CreatedAt, &a.UpdatedAt)
}

// Create inserts an attendee. The caller mints the QR token; a collision on
// it surfaces as ErrQRTokenTaken so the caller can mint again.
func (r *Repository) Create(ctx context.Context, a *models.Attendee) error {
	const q = `INSERT INTO attendees (full_name, email, phone, company, qr_token, registration_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, checked_in, first_checked_in_at, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, a.FullName, a.Email, a.Phone, a.Company, a.QRToken, a.RegistrationType).
		Scan(&a.ID, &a.CheckedIn, &a.FirstCheckedInAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		switch {
		case database.IsUniqueViolationOn(err, "attendees_email_key"):
			return ErrEmailTaken
		case database.IsUniqueViolationOn(err, "attendees_qr_token_key"):
			return ErrQRTokenTaken
		}
		return err
	}
	return nil
}

// GetByID returns one attendee.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attendee, error) {
	const q = `SELECT ` + attendeeCols + ` FROM attendees WHERE id = $1`
	var a models.Attendee
	if err := scanAttendee(r.pool.QueryRow(ctx, q, id), &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListFilter narrows List and Count. Zero values mean "no filter".
type ListFilter struct {
	Query            string
	CheckedIn        *bool
	RegistrationType string
	Limit            int
	Offset           int
}

const attendeeFilter = ` WHERE ($1 = '' OR full_name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%' OR company ILIKE '%' || $1 || '%')
	AND ($2::BOOLEAN IS NULL OR checked_in = $2)
	AND ($3 = '' OR registration_type = $3)`

// List returns attendees newest first, narrowed by the filter.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Attendee, error) {
	const q = `SELECT ` + attendeeCols + ` FROM attendees` + attendeeFilter +
		` ORDER BY created_at DESC LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, q, f.Query, f.CheckedIn, f.RegistrationType, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Attendee
	for rows.Next() {
		var a models.Attendee
		if err := scanAttendee(rows, &a); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// Count returns how many attendees match the filter.
func (r *Repository) Count(ctx context.Context, f ListFilter) (int, error) {
	const q = `SELECT COUNT(*) FROM attendees` + attendeeFilter
	var n int
	err := r.pool.QueryRow(ctx, q, f.Query, f.CheckedIn, f.RegistrationType).Scan(&n)
	return n, err
}

// UpdateParams are the contact fields PATCH may change. Nil means keep.
// The QR token is immutable after mint and has no field here.
type UpdateParams struct {
	FullName *string
	Email    *string
	Phone    *string
	Company  *string
}

// Update applies a partial contact update and returns the fresh row.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.Attendee, error) {
	const q = `UPDATE attendees SET
			full_name = COALESCE($2, full_name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			company = COALESCE($5, company),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + attendeeCols
	var a models.Attendee
	if err := scanAttendee(r.pool.QueryRow(ctx, q, id, p.FullName, p.Email, p.Phone, p.Company), &a); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrNotFound
		case database.IsUniqueViolationOn(err, "attendees_email_key"):
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &a, nil
}

// BulkDelete removes attendees and their check-in instances in one
// transaction. Instances reference attendees by qr_token, so they go first.
func (r *Repository) BulkDelete(ctx context.Context, ids []uuid.UUID) (attendeesDeleted, instancesDeleted int64, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`DELETE FROM check_in_instances WHERE qr_token IN (SELECT qr_token FROM attendees WHERE id = ANY($1))`, ids)
	if err != nil {
		return 0, 0, err
	}
	instancesDeleted = ct.RowsAffected()

	ct, err = tx.Exec(ctx, `DELETE FROM attendees WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, 0, err
	}
	attendeesDeleted = ct.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return attendeesDeleted, instancesDeleted, nil
}

// Stats returns the dashboard counters.
func (r *Repository) Stats(ctx context.Context) (*models.AttendeeStats, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM attendees),
		(SELECT COUNT(*) FROM attendees WHERE checked_in),
		(SELECT COUNT(*) FROM attendees WHERE registration_type = 'walk_in'),
		(SELECT COUNT(*) FROM check_in_instances)`
	var s models.AttendeeStats
	if err := r.pool.QueryRow(ctx, q).Scan(&s.Total, &s.CheckedIn, &s.WalkIns, &s.TotalScans); err != nil {
		return nil, err
	}
	return &s, nil
}
