package attendees

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/middleware"
	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/qrcode"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/response"
	"github.com/doorlist/backend/pkg/utils"
)

// qrTokenLength is the length of minted attendee QR tokens.
const qrTokenLength = 6

// mintAttempts bounds QR token regeneration on collision.
const mintAttempts = 5

// ActivityRecorder records audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityEntry)
}

// Handler handles attendee HTTP endpoints.
type Handler struct {
	repo     *Repository
	jobs     *queue.Queue
	activity ActivityRecorder
	logger   *zap.Logger
}

// NewHandler creates an attendees handler.
func NewHandler(repo *Repository, jobs *queue.Queue, activity ActivityRecorder, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jobs: jobs, activity: activity, logger: logger}
}

func actorID(c *gin.Context) *uuid.UUID {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

// CreateRequest is the body for POST /attendees.
type CreateRequest struct {
	FullName    string `json:"full_name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	Company     string `json:"company"`
	SendQREmail bool   `json:"send_qr_email"`
}

// Create handles POST /attendees. Staff pre-registration; mints the QR token.
func (h *Handler) Create(c *gin.Context) {
	var body CreateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "full_name and a valid email are required")
		return
	}

	a := &models.Attendee{
		FullName:         strings.TrimSpace(body.FullName),
		Email:            strings.ToLower(strings.TrimSpace(body.Email)),
		Phone:            strings.TrimSpace(body.Phone),
		Company:          strings.TrimSpace(body.Company),
		RegistrationType: models.RegistrationTypePreRegistered,
	}
	if a.FullName == "" {
		response.BadRequest(c, "full_name is required")
		return
	}

	var err error
	for i := 0; i < mintAttempts; i++ {
		a.QRToken, err = utils.GenerateCode(qrTokenLength)
		if err != nil {
			response.Internal(c, "failed to create attendee")
			return
		}
		err = h.repo.Create(c.Request.Context(), a)
		if !errors.Is(err, ErrQRTokenTaken) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, ErrEmailTaken.Error())
			return
		}
		h.logger.Error("create attendee failed", zap.Error(err))
		response.Internal(c, "failed to create attendee")
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionAttendeeCreated,
		ActorID:   actorID(c),
		SubjectID: &a.ID,
		Detail:    a.Email,
		IP:        c.ClientIP(),
	})

	if body.SendQREmail {
		if err := h.jobs.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
			EmailType:  models.EmailTypeQRCode,
			AttendeeID: &a.ID,
		}); err != nil {
			h.logger.Warn("enqueue qr email failed", zap.Error(err), zap.String("attendee_id", a.ID.String()))
		}
	}

	response.Created(c, a)
}

// List handles GET /attendees. Supports ?query=, ?checked_in=,
// ?registration_type=, ?limit=, ?offset=.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{
		Query:            strings.TrimSpace(c.Query("query")),
		RegistrationType: c.Query("registration_type"),
	}
	if f.RegistrationType != "" &&
		f.RegistrationType != string(models.RegistrationTypePreRegistered) &&
		f.RegistrationType != string(models.RegistrationTypeWalkIn) {
		response.BadRequest(c, "invalid registration_type")
		return
	}
	if s := c.Query("checked_in"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			response.BadRequest(c, "checked_in must be true or false")
			return
		}
		f.CheckedIn = &b
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		response.Internal(c, "failed to load attendees")
		return
	}
	total, err := h.repo.Count(c.Request.Context(), f)
	if err != nil {
		response.Internal(c, "failed to load attendees")
		return
	}
	response.OK(c, gin.H{
		"attendees": list,
		"total":     total,
		"limit":     f.Limit,
		"offset":    f.Offset,
	})
}

// Get handles GET /attendees/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid attendee id")
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		response.Internal(c, "failed to load attendee")
		return
	}
	response.OK(c, a)
}

// UpdateRequest is the body for PATCH /attendees/:id. Only contact fields;
// the QR token never changes.
type UpdateRequest struct {
	FullName *string `json:"full_name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone"`
	Company  *string `json:"company"`
}

// Update handles PATCH /attendees/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid attendee id")
		return
	}
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if body.FullName != nil && strings.TrimSpace(*body.FullName) == "" {
		response.BadRequest(c, "full_name cannot be empty")
		return
	}
	if body.Email != nil {
		norm := strings.ToLower(strings.TrimSpace(*body.Email))
		body.Email = &norm
	}

	a, err := h.repo.Update(c.Request.Context(), id, UpdateParams{
		FullName: body.FullName,
		Email:    body.Email,
		Phone:    body.Phone,
		Company:  body.Company,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(c, ErrNotFound.Error())
		case errors.Is(err, ErrEmailTaken):
			response.Conflict(c, ErrEmailTaken.Error())
		default:
			h.logger.Error("update attendee failed", zap.Error(err), zap.String("attendee_id", id.String()))
			response.Internal(c, "failed to update attendee")
		}
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionAttendeeUpdated,
		ActorID:   actorID(c),
		SubjectID: &a.ID,
		IP:        c.ClientIP(),
	})
	response.OK(c, a)
}

// BulkDeleteRequest is the body for POST /attendees/bulk-delete.
type BulkDeleteRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required,min=1"`
}

// BulkDelete handles POST /attendees/bulk-delete. The only deletion path;
// check-in instances go with their attendees in one transaction.
func (h *Handler) BulkDelete(c *gin.Context) {
	var body BulkDeleteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "ids is required")
		return
	}

	deleted, instances, err := h.repo.BulkDelete(c.Request.Context(), body.IDs)
	if err != nil {
		h.logger.Error("bulk delete failed", zap.Error(err))
		response.Internal(c, "failed to delete attendees")
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:  models.ActionAttendeesDeleted,
		ActorID: actorID(c),
		Detail:  fmt.Sprintf("%d attendees, %d check-ins", deleted, instances),
		IP:      c.ClientIP(),
	})
	response.OK(c, gin.H{
		"deleted":           deleted,
		"check_ins_deleted": instances,
	})
}

// Stats handles GET /attendees/stats.
func (h *Handler) Stats(c *gin.Context) {
	s, err := h.repo.Stats(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, s)
}

// QRCode handles GET /attendees/:id/qr.png. Renders the attendee's token as
// a PNG for printing or on-screen scanning.
func (h *Handler) QRCode(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid attendee id")
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		response.Internal(c, "failed to load attendee")
		return
	}

	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(qrcode.DefaultSize)))
	if size < 64 || size > 1024 {
		size = qrcode.DefaultSize
	}
	png, err := qrcode.PNG(a.QRToken, size)
	if err != nil {
		h.logger.Error("qr render failed", zap.Error(err), zap.String("attendee_id", id.String()))
		response.Internal(c, "failed to render qr code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// SendQR handles POST /attendees/:id/send-qr. Re-sends the QR code email.
func (h *Handler) SendQR(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid attendee id")
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		response.Internal(c, "failed to load attendee")
		return
	}

	if err := h.jobs.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
		EmailType:  models.EmailTypeQRCode,
		AttendeeID: &a.ID,
	}); err != nil {
		h.logger.Error("enqueue qr email failed", zap.Error(err), zap.String("attendee_id", a.ID.String()))
		response.Internal(c, "failed to queue email")
		return
	}
	response.OK(c, gin.H{"message": "email queued"})
}
