package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/database"
)

var (
	// ErrInviteNotFound covers unknown and expired invites alike; callers
	// get no signal about which.
	ErrInviteNotFound = errors.New("invite not found or expired")
	ErrInviteUsed     = errors.New("invite already used")
	ErrEmailTaken     = errors.New("email already registered")
)

// Repository handles staff user and invite persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role, created_at, updated_at
		FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, role, created_at, updated_at
		FROM users WHERE email = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all staff accounts.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, full_name, role, created_at FROM users ORDER BY full_name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.UserPublic
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}

// Count returns the number of staff accounts.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// Create inserts a new staff user. Returns ErrEmailTaken on a duplicate email.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, full_name, role, created_at, updated_at`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email, passwordHash, fullName, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &u, nil
}

// CreateInvite stores a single-use staff invite. Only the token
// fingerprint is persisted.
func (r *Repository) CreateInvite(ctx context.Context, tokenHash, email string, role models.Role, invitedBy uuid.UUID, expiresAt time.Time) (*models.StaffInvite, error) {
	const q = `INSERT INTO staff_invites (token_hash, email, role, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, role, invited_by, expires_at, created_at`
	var inv models.StaffInvite
	err := r.pool.QueryRow(ctx, q, tokenHash, email, string(role), invitedBy, expiresAt).
		Scan(&inv.ID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.TokenHash = tokenHash
	return &inv, nil
}

// ListInvites returns invites newest first.
func (r *Repository) ListInvites(ctx context.Context) ([]models.StaffInvite, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, role, invited_by, expires_at, used_at, used_by, created_at
		 FROM staff_invites ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.StaffInvite
	for rows.Next() {
		var inv models.StaffInvite
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.ExpiresAt, &inv.UsedAt, &inv.UsedBy, &inv.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

// RedeemInvite consumes the invite matching tokenHash and creates the
// staff account in one transaction. The invite row is locked so a token
// pasted twice concurrently yields exactly one account.
func (r *Repository) RedeemInvite(ctx context.Context, tokenHash, passwordHash, fullName string) (*models.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const lockQ = `SELECT id, email, role, expires_at, used_at FROM staff_invites
		WHERE token_hash = $1 FOR UPDATE`
	var (
		inviteID uuid.UUID
		email    string
		role     models.Role
		expires  time.Time
		usedAt   *time.Time
	)
	err = tx.QueryRow(ctx, lockQ, tokenHash).Scan(&inviteID, &email, &role, &expires, &usedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	if usedAt != nil {
		return nil, ErrInviteUsed
	}
	if time.Now().After(expires) {
		return nil, ErrInviteNotFound
	}

	const userQ = `INSERT INTO users (email, password_hash, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, password_hash, full_name, role, created_at, updated_at`
	var u models.User
	err = tx.QueryRow(ctx, userQ, email, passwordHash, fullName, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE staff_invites SET used_at = NOW(), used_by = $1 WHERE id = $2`,
		u.ID, inviteID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &u, nil
}
