package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/attendees"
	"github.com/doorlist/backend/internal/emails"
	"github.com/doorlist/backend/internal/exports"
	"github.com/doorlist/backend/internal/mailer"
	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/qrcode"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/storage"
)

// Processor drains the work queues: email delivery and export builds.
// Emails render at send time from current rows, so a resend after an
// attendee edit carries the fresh data.
type Processor struct {
	attendees     *attendees.Repository
	emailLog      *emails.Repository
	exportRepo    *exports.Repository
	builder       *exports.Builder
	mail          mailer.Mailer
	s3            *storage.S3
	queue         *queue.Queue
	eventName     string
	publicBaseURL string
	logger        *zap.Logger
}

// NewProcessor creates a job processor. s3 may be nil; export jobs then
// fail with a clear message instead of retrying forever.
func NewProcessor(
	attendeesRepo *attendees.Repository,
	emailLog *emails.Repository,
	exportRepo *exports.Repository,
	builder *exports.Builder,
	mail mailer.Mailer,
	s3 *storage.S3,
	q *queue.Queue,
	eventName, publicBaseURL string,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		attendees:     attendeesRepo,
		emailLog:      emailLog,
		exportRepo:    exportRepo,
		builder:       builder,
		mail:          mail,
		s3:            s3,
		queue:         q,
		eventName:     eventName,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmail:
		var payload queue.EmailPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.processEmail(ctx, payload)
	case queue.JobTypeExportBuild:
		var payload queue.ExportPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.processExport(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processEmail(ctx context.Context, payload queue.EmailPayload) error {
	var msg mailer.Message
	entry := models.EmailLog{EmailType: payload.EmailType}

	switch payload.EmailType {
	case models.EmailTypeQRCode, models.EmailTypeWalkInConfirmation:
		if payload.AttendeeID == nil {
			p.logger.Warn("email job without attendee id dropped", zap.String("email_type", payload.EmailType))
			return nil
		}
		a, err := p.attendees.GetByID(ctx, *payload.AttendeeID)
		if err != nil {
			if errors.Is(err, attendees.ErrNotFound) {
				p.logger.Info("attendee gone, dropping email job", zap.String("attendee_id", payload.AttendeeID.String()))
				return nil
			}
			return fmt.Errorf("load attendee: %w", err)
		}

		var subject, text, htmlBody string
		if payload.EmailType == models.EmailTypeQRCode {
			subject, text, htmlBody = mailer.QRCodeEmail(p.eventName, a.FullName, a.QRToken)
		} else {
			subject, text, htmlBody = mailer.WalkInConfirmationEmail(p.eventName, a.FullName, a.QRToken)
		}
		png, err := qrcode.PNG(a.QRToken, qrcode.DefaultSize)
		if err != nil {
			return fmt.Errorf("render qr: %w", err)
		}
		msg = mailer.Message{
			ToEmail: a.Email,
			ToName:  a.FullName,
			Subject: subject,
			Text:    text,
			HTML:    htmlBody,
			Attachments: []mailer.Attachment{
				{Filename: "entry-code.png", ContentType: "image/png", Content: png},
			},
		}
		entry.AttendeeID = &a.ID
		entry.RecipientEmail = a.Email
		entry.Subject = subject

	case models.EmailTypeStaffInvite:
		if payload.RecipientEmail == "" || payload.InviteToken == "" {
			p.logger.Warn("invite email job missing recipient or token, dropped")
			return nil
		}
		acceptURL := p.publicBaseURL + "/staff/accept-invite?token=" + payload.InviteToken
		subject, text, htmlBody := mailer.StaffInviteEmail(p.eventName, acceptURL, payload.InviteRole)
		msg = mailer.Message{
			ToEmail: payload.RecipientEmail,
			Subject: subject,
			Text:    text,
			HTML:    htmlBody,
		}
		entry.RecipientEmail = payload.RecipientEmail
		entry.Subject = subject

	default:
		return fmt.Errorf("unknown email type: %s", payload.EmailType)
	}

	if err := p.emailLog.Create(ctx, &entry); err != nil {
		// a broken delivery log must not block delivery
		p.logger.Warn("email log create failed", zap.Error(err))
	}

	if err := p.mail.Send(ctx, msg); err != nil {
		if entry.ID != uuid.Nil {
			_ = p.emailLog.MarkFailed(ctx, entry.ID, err.Error())
		}
		return fmt.Errorf("send %s to %s: %w", payload.EmailType, msg.ToEmail, err)
	}
	if entry.ID != uuid.Nil {
		if err := p.emailLog.MarkSent(ctx, entry.ID, time.Now()); err != nil {
			p.logger.Warn("email log update failed", zap.Error(err))
		}
	}
	p.logger.Info("email sent", zap.String("email_type", payload.EmailType), zap.String("to", msg.ToEmail))
	return nil
}

func (p *Processor) processExport(ctx context.Context, payload queue.ExportPayload) error {
	job, err := p.exportRepo.GetJob(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, exports.ErrNotFound) {
			p.logger.Warn("export job gone, dropped", zap.String("job_id", payload.JobID.String()))
			return nil
		}
		return fmt.Errorf("load export job: %w", err)
	}
	if p.s3 == nil {
		_ = p.exportRepo.Fail(ctx, job.ID, "object storage not configured")
		return nil
	}

	claimed, err := p.exportRepo.MarkProcessing(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("claim export job: %w", err)
	}
	if !claimed {
		p.logger.Info("export job already claimed", zap.String("job_id", job.ID.String()), zap.String("status", job.Status))
		return nil
	}

	var buf bytes.Buffer
	rowCount, err := p.builder.Write(ctx, job.ExportType, &buf)
	if err != nil {
		_ = p.exportRepo.Fail(ctx, job.ID, err.Error())
		p.logger.Error("export build failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return nil
	}

	key := storage.ExportKey(job.ID.String())
	if err := p.s3.Upload(ctx, p.s3.ExportsBucket(), key, "text/csv", bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		_ = p.exportRepo.Fail(ctx, job.ID, err.Error())
		p.logger.Error("export upload failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		return nil
	}

	if err := p.exportRepo.Complete(ctx, job.ID, key, int64(buf.Len()), rowCount); err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	p.logger.Info("export completed",
		zap.String("job_id", job.ID.String()),
		zap.String("s3_key", key),
		zap.Int("rows", rowCount),
		zap.Int("bytes", buf.Len()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
