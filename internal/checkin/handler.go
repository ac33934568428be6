package checkin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/middleware"
	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/response"
)

// ActivityRecorder records audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityEntry)
}

// Feed pushes accepted scans to connected dashboards.
type Feed interface {
	Publish(event string, payload interface{})
}

type feedEvent struct {
	AttendeeName string    `json:"attendee_name"`
	Ordinal      int       `json:"ordinal"`
	GuestType    string    `json:"guest_type"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

// Handler handles check-in HTTP endpoints.
type Handler struct {
	svc      *Service
	repo     *Repository
	activity ActivityRecorder
	feed     Feed
	logger   *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(svc *Service, repo *Repository, activity ActivityRecorder, feed Feed, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, repo: repo, activity: activity, feed: feed, logger: logger}
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

// ScanRequest is the body for POST /checkins/scan.
type ScanRequest struct {
	QRToken string `json:"qr_token" binding:"required"`
}

// Scan handles POST /checkins/scan. One scan, one instance row.
func (h *Handler) Scan(c *gin.Context) {
	var body ScanRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "qr_token is required")
		return
	}

	result, err := h.svc.Scan(c.Request.Context(), body.QRToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken):
			h.activity.Record(c.Request.Context(), models.ActivityEntry{
				Action:  models.ActionCheckInScanFailed,
				ActorID: actorID(c),
				Detail:  strings.ToUpper(strings.TrimSpace(body.QRToken)),
				IP:      c.ClientIP(),
			})
			response.NotFound(c, ErrInvalidToken.Error())
		case errors.Is(err, ErrStoreUnavailable):
			h.logger.Error("scan store unavailable", zap.Error(err))
			response.ServiceUnavailable(c, "check-in temporarily unavailable, scan again")
		default:
			h.logger.Error("scan failed", zap.Error(err))
			response.Internal(c, "scan failed")
		}
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionCheckInScan,
		ActorID:   actorID(c),
		SubjectID: &result.Attendee.ID,
		Detail:    fmt.Sprintf("ordinal %d (%s)", result.Ordinal, result.GuestType),
		IP:        c.ClientIP(),
	})
	h.feed.Publish("checkin", feedEvent{
		AttendeeName: result.Attendee.FullName,
		Ordinal:      result.Ordinal,
		GuestType:    result.GuestType,
		CheckedInAt:  result.CheckedInAt,
	})
	response.Created(c, result)
}

// List handles GET /checkins. Supports ?qr_token=, ?limit=, ?offset=.
func (h *Handler) List(c *gin.Context) {
	qrToken := strings.ToUpper(strings.TrimSpace(c.Query("qr_token")))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	list, err := h.repo.ListInstances(c.Request.Context(), qrToken, limit, offset)
	if err != nil {
		response.Internal(c, "failed to load check-ins")
		return
	}
	total, err := h.repo.CountAll(c.Request.Context(), qrToken)
	if err != nil {
		response.Internal(c, "failed to load check-ins")
		return
	}
	response.OK(c, gin.H{
		"check_ins": list,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// Recent handles GET /checkins/recent. Seeds the dashboard before the live
// feed takes over.
func (h *Handler) Recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	list, err := h.repo.ListInstances(c.Request.Context(), "", limit, 0)
	if err != nil {
		response.Internal(c, "failed to load check-ins")
		return
	}
	response.OK(c, gin.H{"check_ins": list})
}

// Repair handles POST /checkins/repair. Recomputes checked_in flags from the
// instance log.
func (h *Handler) Repair(c *gin.Context) {
	corrected, err := h.repo.Repair(c.Request.Context())
	if err != nil {
		h.logger.Error("repair failed", zap.Error(err))
		response.Internal(c, "repair failed")
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:  models.ActionCheckInRepair,
		ActorID: actorID(c),
		Detail:  fmt.Sprintf("%d corrected", corrected),
		IP:      c.ClientIP(),
	})
	h.logger.Info("check-in repair completed", zap.Int64("corrected", corrected))
	response.OK(c, gin.H{"corrected": corrected})
}
