package registration

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/database"
)

const tokenCols = `id, token, label, expires_at, max_uses, current_uses, is_active, used_at, used_by_email, created_by, created_at`

// Repository handles registration tokens and walk-in attendee creation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registration repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanToken(row pgx.Row, t *models.RegistrationToken) error {
	return row.Scan(&t.ID, &t.Token, &t.Label, &t.ExpiresAt, &t.MaxUses, &t.CurrentUses,
		&t.IsActive, &t.UsedAt, &t.UsedByEmail, &t.CreatedBy, &t.CreatedAt)
}

// TokenByCode returns the token with this code.
func (r *Repository) TokenByCode(ctx context.Context, code string) (*models.RegistrationToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM registration_tokens WHERE token = $1`
	var t models.RegistrationToken
	if err := scanToken(r.pool.QueryRow(ctx, q, code), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &t, nil
}

// AttendeeEmailExists reports whether any attendee already has this email.
func (r *Repository) AttendeeEmailExists(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM attendees WHERE email = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, email).Scan(&exists)
	return exists, err
}

// ConsumeAndCreate burns one token use and inserts the walk-in attendee in a
// single transaction. The conditional UPDATE re-checks the gate under the
// row lock, so two racing registrations cannot both take the last use; the
// loser sees zero rows and gets ErrTokenExpired. Any insert failure rolls
// the consumption back.
func (r *Repository) ConsumeAndCreate(ctx context.Context, tokenID uuid.UUID, a *models.Attendee) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `UPDATE registration_tokens
		SET current_uses = current_uses + 1, used_at = NOW(), used_by_email = $2
		WHERE id = $1 AND is_active AND expires_at > NOW() AND current_uses < max_uses`,
		tokenID, a.Email)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrTokenExpired
	}

	err = tx.QueryRow(ctx, `INSERT INTO attendees (full_name, email, phone, company, qr_token, registration_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, checked_in, first_checked_in_at, created_at, updated_at`,
		a.FullName, a.Email, a.Phone, a.Company, a.QRToken, a.RegistrationType).
		Scan(&a.ID, &a.CheckedIn, &a.FirstCheckedInAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		switch {
		case database.IsUniqueViolationOn(err, "attendees_email_key"):
			return ErrDuplicateEmail
		case database.IsUniqueViolationOn(err, "attendees_qr_token_key"):
			return errQRCollision
		}
		return err
	}

	return tx.Commit(ctx)
}

// CreateToken inserts a minted token. A code collision surfaces as
// errCodeCollision so the caller mints again.
func (r *Repository) CreateToken(ctx context.Context, t *models.RegistrationToken) error {
	const q = `INSERT INTO registration_tokens (token, label, expires_at, max_uses, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, current_uses, is_active, used_at, used_by_email, created_at`
	err := r.pool.QueryRow(ctx, q, t.Token, t.Label, t.ExpiresAt, t.MaxUses, t.CreatedBy).
		Scan(&t.ID, &t.CurrentUses, &t.IsActive, &t.UsedAt, &t.UsedByEmail, &t.CreatedAt)
	if err != nil {
		if database.IsUniqueViolationOn(err, "registration_tokens_token_key") {
			return errCodeCollision
		}
		return err
	}
	return nil
}

// ListTokens returns all tokens newest first.
func (r *Repository) ListTokens(ctx context.Context) ([]models.RegistrationToken, error) {
	const q = `SELECT ` + tokenCols + ` FROM registration_tokens ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.RegistrationToken
	for rows.Next() {
		var t models.RegistrationToken
		if err := scanToken(rows, &t); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// SetTokenActive toggles is_active and returns the fresh row.
func (r *Repository) SetTokenActive(ctx context.Context, id uuid.UUID, active bool) (*models.RegistrationToken, error) {
	const q = `UPDATE registration_tokens SET is_active = $2 WHERE id = $1 RETURNING ` + tokenCols
	var t models.RegistrationToken
	if err := scanToken(r.pool.QueryRow(ctx, q, id, active), &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}
