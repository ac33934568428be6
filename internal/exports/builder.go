package exports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/doorlist/backend/internal/models"
)

// Builder streams report rows as CSV. Shared by the streaming endpoints
// and the worker's archive builds.
type Builder struct {
	pool *pgxpool.Pool
}

// NewBuilder creates a CSV builder.
func NewBuilder(pool *pgxpool.Pool) *Builder {
	return &Builder{pool: pool}
}

// Write renders one report type to w and returns the data row count.
func (b *Builder) Write(ctx context.Context, exportType string, w io.Writer) (int, error) {
	switch exportType {
	case models.ExportTypeAttendees:
		return b.writeAttendees(ctx, w)
	case models.ExportTypeCheckIns:
		return b.writeCheckIns(ctx, w)
	case models.ExportTypeActivity:
		return b.writeActivity(ctx, w)
	default:
		return 0, fmt.Errorf("unknown export type %q", exportType)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func (b *Builder) writeAttendees(ctx context.Context, w io.Writer) (int, error) {
	const q = `SELECT id, full_name, email, phone, company, qr_token, registration_type, checked_in, first_checked_in_at, created_at
		FROM attendees ORDER BY created_at`
	rows, err := b.pool.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "full_name", "email", "phone", "company", "qr_token", "registration_type", "checked_in", "first_checked_in_at", "created_at"}); err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		var a models.Attendee
		if err := rows.Scan(&a.ID, &a.FullName, &a.Email, &a.Phone, &a.Company, &a.QRToken,
			&a.RegistrationType, &a.CheckedIn, &a.FirstCheckedInAt, &a.CreatedAt); err != nil {
			return n, err
		}
		rec := []string{
			a.ID.String(), a.FullName, a.Email, a.Phone, a.Company, a.QRToken,
			string(a.RegistrationType), strconv.FormatBool(a.CheckedIn),
			formatTimePtr(a.FirstCheckedInAt), formatTime(a.CreatedAt),
		}
		if err := cw.Write(rec); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

func (b *Builder) writeCheckIns(ctx context.Context, w io.Writer) (int, error) {
	const q = `SELECT i.id, i.qr_token, a.full_name, i.ordinal, i.guest_type, i.checked_in_at
		FROM check_in_instances i
		JOIN attendees a ON a.qr_token = i.qr_token
		ORDER BY i.checked_in_at`
	rows, err := b.pool.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "qr_token", "attendee_name", "ordinal", "guest_type", "checked_in_at"}); err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		var rec models.CheckInRecord
		if err := rows.Scan(&rec.ID, &rec.QRToken, &rec.AttendeeName, &rec.Ordinal, &rec.GuestType, &rec.CheckedInAt); err != nil {
			return n, err
		}
		line := []string{
			rec.ID.String(), rec.QRToken, rec.AttendeeName,
			strconv.Itoa(rec.Ordinal), rec.GuestType, formatTime(rec.CheckedInAt),
		}
		if err := cw.Write(line); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

func (b *Builder) writeActivity(ctx context.Context, w io.Writer) (int, error) {
	const q = `SELECT id, action, actor_id, subject_id, detail, ip, created_at
		FROM activity_log ORDER BY created_at`
	rows, err := b.pool.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "action", "actor_id", "subject_id", "detail", "ip", "created_at"}); err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		var e models.ActivityEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.SubjectID, &e.Detail, &e.IP, &e.CreatedAt); err != nil {
			return n, err
		}
		actor, subject := "", ""
		if e.ActorID != nil {
			actor = e.ActorID.String()
		}
		if e.SubjectID != nil {
			subject = e.SubjectID.String()
		}
		line := []string{e.ID.String(), e.Action, actor, subject, e.Detail, e.IP, formatTime(e.CreatedAt)}
		if err := cw.Write(line); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}
