package registration

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/middleware"
	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/response"
	"github.com/doorlist/backend/pkg/utils"
)

// tokenCodeLength is the length of minted registration token codes.
const tokenCodeLength = 6

// TokensHandler handles the admin surface for registration tokens.
type TokensHandler struct {
	repo     *Repository
	activity ActivityRecorder
	logger   *zap.Logger
}

// NewTokensHandler creates a token admin handler.
func NewTokensHandler(repo *Repository, activity ActivityRecorder, logger *zap.Logger) *TokensHandler {
	return &TokensHandler{repo: repo, activity: activity, logger: logger}
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

// CreateTokenRequest is the body for POST /registration-tokens.
type CreateTokenRequest struct {
	Label     string    `json:"label"`
	ExpiresAt time.Time `json:"expires_at" binding:"required"`
	MaxUses   int       `json:"max_uses"`
}

// Create handles POST /registration-tokens. Mints a shareable code.
func (h *TokensHandler) Create(c *gin.Context) {
	var body CreateTokenRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "expires_at is required")
		return
	}
	if !body.ExpiresAt.After(time.Now()) {
		response.BadRequest(c, "expires_at must be in the future")
		return
	}
	if body.MaxUses == 0 {
		body.MaxUses = 1
	}
	if body.MaxUses < 1 {
		response.BadRequest(c, "max_uses must be at least 1")
		return
	}

	t := &models.RegistrationToken{
		Label:     strings.TrimSpace(body.Label),
		ExpiresAt: body.ExpiresAt,
		MaxUses:   body.MaxUses,
		CreatedBy: actorID(c),
	}
	var err error
	for i := 0; i < mintAttempts; i++ {
		t.Token, err = utils.GenerateCode(tokenCodeLength)
		if err != nil {
			response.Internal(c, "failed to create token")
			return
		}
		err = h.repo.CreateToken(c.Request.Context(), t)
		if !errors.Is(err, errCodeCollision) {
			break
		}
	}
	if err != nil {
		h.logger.Error("create registration token failed", zap.Error(err))
		response.Internal(c, "failed to create token")
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionTokenCreated,
		ActorID:   actorID(c),
		SubjectID: &t.ID,
		Detail:    t.Token,
		IP:        c.ClientIP(),
	})
	response.Created(c, t)
}

// List handles GET /registration-tokens.
func (h *TokensHandler) List(c *gin.Context) {
	tokens, err := h.repo.ListTokens(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load tokens")
		return
	}
	response.OK(c, gin.H{"tokens": tokens})
}

// UpdateTokenRequest is the body for PATCH /registration-tokens/:id.
type UpdateTokenRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// Update handles PATCH /registration-tokens/:id. Toggles is_active; tokens
// are never deleted.
func (h *TokensHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid token id")
		return
	}
	var body UpdateTokenRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "is_active is required")
		return
	}

	t, err := h.repo.SetTokenActive(c.Request.Context(), id, *body.IsActive)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			response.NotFound(c, ErrTokenNotFound.Error())
			return
		}
		response.Internal(c, "failed to update token")
		return
	}

	if !*body.IsActive {
		h.activity.Record(c.Request.Context(), models.ActivityEntry{
			Action:    models.ActionTokenDeactivated,
			ActorID:   actorID(c),
			SubjectID: &t.ID,
			Detail:    t.Token,
			IP:        c.ClientIP(),
		})
	}
	response.OK(c, t)
}
