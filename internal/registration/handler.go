package registration

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/response"
)

// ActivityRecorder records audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityEntry)
}

// EmailEnqueuer hands confirmation mail off to the job queue.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Handler handles the public walk-in endpoints.
type Handler struct {
	svc      *Service
	jobs     EmailEnqueuer
	activity ActivityRecorder
	logger   *zap.Logger
}

// NewHandler creates a registration handler.
func NewHandler(svc *Service, jobs EmailEnqueuer, activity ActivityRecorder, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, jobs: jobs, activity: activity, logger: logger}
}

// RegisterRequest is the body for POST /register.
type RegisterRequest struct {
	Token    string `json:"token" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
}

// Register handles POST /register. Public; the rate limit middleware runs
// before this ever sees the request.
func (h *Handler) Register(c *gin.Context) {
	var body RegisterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "token, full_name and a valid email are required")
		return
	}

	a, err := h.svc.Register(c.Request.Context(), RegisterInput{
		Token:    body.Token,
		FullName: body.FullName,
		Email:    body.Email,
		Phone:    body.Phone,
		Company:  body.Company,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			response.NotFound(c, ErrInvalidToken.Error())
		case errors.Is(err, ErrTokenExpired):
			response.Gone(c, ErrTokenExpired.Error())
		case errors.Is(err, ErrDuplicateEmail):
			response.Conflict(c, ErrDuplicateEmail.Error())
		default:
			h.logger.Error("walk-in registration failed", zap.Error(err))
			response.ServiceUnavailable(c, "registration temporarily unavailable")
		}
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionWalkInRegistered,
		SubjectID: &a.ID,
		Detail:    a.Email,
		IP:        c.ClientIP(),
	})
	if err := h.jobs.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
		EmailType:  models.EmailTypeWalkInConfirmation,
		AttendeeID: &a.ID,
	}); err != nil {
		h.logger.Warn("enqueue confirmation email failed", zap.Error(err), zap.String("attendee_id", a.ID.String()))
	}

	response.Created(c, gin.H{
		"attendee_id": a.ID,
		"qr_token":    a.QRToken,
	})
}

// Validate handles GET /register/tokens/:token/validate. Pre-flight for the
// form; consumes nothing.
func (h *Handler) Validate(c *gin.Context) {
	status, err := h.svc.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			response.NotFound(c, ErrInvalidToken.Error())
			return
		}
		h.logger.Error("token validate failed", zap.Error(err))
		response.ServiceUnavailable(c, "registration temporarily unavailable")
		return
	}
	response.OK(c, status)
}
