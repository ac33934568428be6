package activity

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/doorlist/backend/pkg/response"
)

// Handler handles activity log HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an activity handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /activity. Admin only. Supports ?action=, ?limit=, ?offset=.
func (h *Handler) List(c *gin.Context) {
	action := c.Query("action")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := h.repo.List(c.Request.Context(), action, limit, offset)
	if err != nil {
		response.Internal(c, "failed to load activity log")
		return
	}
	total, err := h.repo.Count(c.Request.Context(), action)
	if err != nil {
		response.Internal(c, "failed to load activity log")
		return
	}
	response.OK(c, gin.H{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
