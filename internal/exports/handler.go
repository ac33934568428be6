package exports

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/middleware"
	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/response"
	"github.com/doorlist/backend/pkg/storage"
)

// ActivityRecorder records audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityEntry)
}

// Handler handles export HTTP endpoints. s3 is nil when object storage is
// not configured; archived exports are disabled then, streaming still works.
type Handler struct {
	repo     *Repository
	builder  *Builder
	jobs     *queue.Queue
	s3       *storage.S3
	activity ActivityRecorder
	logger   *zap.Logger
}

// NewHandler creates an exports handler.
func NewHandler(repo *Repository, builder *Builder, jobs *queue.Queue, s3 *storage.S3, activity ActivityRecorder, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, builder: builder, jobs: jobs, s3: s3, activity: activity, logger: logger}
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

func (h *Handler) stream(c *gin.Context, exportType string) {
	filename := fmt.Sprintf("%s-%s.csv", exportType, time.Now().Format("20060102-150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(200)

	if _, err := h.builder.Write(c.Request.Context(), exportType, c.Writer); err != nil {
		// headers are gone; all we can do is cut the stream and log
		h.logger.Error("csv stream failed", zap.String("export_type", exportType), zap.Error(err))
	}
}

// StreamAttendees handles GET /exports/attendees.csv.
func (h *Handler) StreamAttendees(c *gin.Context) {
	h.stream(c, models.ExportTypeAttendees)
}

// StreamCheckIns handles GET /exports/checkins.csv.
func (h *Handler) StreamCheckIns(c *gin.Context) {
	h.stream(c, models.ExportTypeCheckIns)
}

// CreateJobRequest is the body for POST /exports.
type CreateJobRequest struct {
	ExportType string `json:"export_type" binding:"required"`
}

// CreateJob handles POST /exports. Inserts a job row and queues the build.
func (h *Handler) CreateJob(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archived exports are disabled; object storage is not configured")
		return
	}
	var body CreateJobRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "export_type is required")
		return
	}
	switch body.ExportType {
	case models.ExportTypeAttendees, models.ExportTypeCheckIns, models.ExportTypeActivity:
	default:
		response.BadRequest(c, "export_type must be attendees, checkins or activity")
		return
	}

	job := &models.ExportJob{
		ExportType:  body.ExportType,
		RequestedBy: actorID(c),
	}
	if err := h.repo.CreateJob(c.Request.Context(), job); err != nil {
		h.logger.Error("create export job failed", zap.Error(err))
		response.Internal(c, "failed to create export job")
		return
	}
	if err := h.jobs.EnqueueExportBuild(c.Request.Context(), queue.ExportPayload{JobID: job.ID}); err != nil {
		h.logger.Error("enqueue export build failed", zap.Error(err), zap.String("job_id", job.ID.String()))
		_ = h.repo.Fail(c.Request.Context(), job.ID, "failed to queue build")
		response.Internal(c, "failed to queue export build")
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionExportRequested,
		ActorID:   actorID(c),
		SubjectID: &job.ID,
		Detail:    job.ExportType,
		IP:        c.ClientIP(),
	})
	response.Created(c, job)
}

// ListJobs handles GET /exports.
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.repo.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		response.Internal(c, "failed to load export jobs")
		return
	}
	total, err := h.repo.CountJobs(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load export jobs")
		return
	}
	response.OK(c, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// DownloadURL handles GET /exports/:id/download-url. Returns a short-lived
// presigned GET URL for the archived CSV.
func (h *Handler) DownloadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "archived exports are disabled; object storage is not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid export job id")
		return
	}
	job, err := h.repo.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, ErrNotFound.Error())
			return
		}
		response.Internal(c, "failed to load export job")
		return
	}
	if job.Status != models.ExportStatusCompleted || job.S3Key == "" {
		response.Conflict(c, "export is not ready for download")
		return
	}

	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.ExportsBucket(), job.S3Key, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.String("job_id", id.String()))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{
		"download_url": url,
		"expires_in":   int(h.s3.PresignExpire().Seconds()),
	})
}
