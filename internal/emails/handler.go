package emails

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   *Repository
	jobs   *queue.Queue
	logger *zap.Logger
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository, jobs *queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, jobs: jobs, logger: logger}
}

// List handles GET /emails. Delivery log, newest first.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	total, err := h.repo.Count(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, gin.H{
		"emails": logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Resend handles POST /emails/:id/resend. Re-enqueues delivery from the
// logged row. Invite emails cannot be resent; their raw token exists only
// in the original job.
func (h *Handler) Resend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid email log id")
		return
	}
	el, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		response.Internal(c, "failed to load email log")
		return
	}

	if el.EmailType == models.EmailTypeStaffInvite {
		response.BadRequest(c, "staff invite emails cannot be resent; mint a new invite")
		return
	}
	if el.AttendeeID == nil {
		response.BadRequest(c, "the attendee for this email no longer exists")
		return
	}

	if err := h.jobs.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
		EmailType:  el.EmailType,
		AttendeeID: el.AttendeeID,
	}); err != nil {
		h.logger.Error("enqueue resend failed", zap.Error(err), zap.String("email_log_id", id.String()))
		response.Internal(c, "failed to queue email")
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}
