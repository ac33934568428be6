package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/response"
	"github.com/doorlist/backend/pkg/utils"
)

// ActivityRecorder appends audit entries; failures never block the caller.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.ActivityEntry)
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// InviteRequest is the body for POST /auth/invites.
type InviteRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// AcceptInviteRequest is the body for POST /auth/invites/accept.
type AcceptInviteRequest struct {
	Token    string `json:"token" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo          *Repository
	jwt           *JWTService
	jobs          *queue.Queue
	activity      ActivityRecorder
	publicBaseURL string
	inviteExpiry  time.Duration
	logger        *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwt *JWTService, jobs *queue.Queue, activity ActivityRecorder, publicBaseURL string, inviteExpiry time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		repo:          repo,
		jwt:           jwt,
		jobs:          jobs,
		activity:      activity,
		publicBaseURL: publicBaseURL,
		inviteExpiry:  inviteExpiry,
		logger:        logger,
	}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || !utils.CheckPassword(req.Password, user.Password) {
		h.activity.Record(c.Request.Context(), models.ActivityEntry{
			Action: models.ActionLoginFailed,
			Detail: req.Email,
			IP:     c.ClientIP(),
		})
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.OK(c, user.ToPublic())
}

// List handles GET /users (super_admin only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// CreateInvite handles POST /auth/invites (super_admin only). The raw
// token goes out in the invite email; the response carries the accept URL
// so the inviter can pass it along by hand if mail is delayed.
func (h *Handler) CreateInvite(c *gin.Context) {
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	role := models.Role(req.Role)
	if !role.Valid() {
		response.BadRequest(c, "invalid role")
		return
	}

	invitedBy := c.MustGet("user_id").(uuid.UUID)

	raw, err := utils.GenerateToken()
	if err != nil {
		response.Internal(c, "failed to generate invite token")
		return
	}

	invite, err := h.repo.CreateInvite(c.Request.Context(),
		utils.FingerprintToken(raw), req.Email, role, invitedBy, time.Now().Add(h.inviteExpiry))
	if err != nil {
		response.Internal(c, "failed to create invite")
		return
	}

	if err := h.jobs.EnqueueEmail(c.Request.Context(), queue.EmailPayload{
		EmailType:      models.EmailTypeStaffInvite,
		RecipientEmail: req.Email,
		InviteToken:    raw,
		InviteRole:     string(role),
	}); err != nil {
		h.logger.Warn("invite email enqueue failed", zap.Error(err))
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionStaffInvited,
		ActorID:   &invitedBy,
		SubjectID: &invite.ID,
		Detail:    fmt.Sprintf("%s as %s", req.Email, role),
		IP:        c.ClientIP(),
	})

	response.Created(c, gin.H{
		"invite":     invite,
		"accept_url": h.acceptURL(raw),
	})
}

// ListInvites handles GET /auth/invites (super_admin only).
func (h *Handler) ListInvites(c *gin.Context) {
	list, err := h.repo.ListInvites(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list invites")
		return
	}
	response.OK(c, list)
}

// AcceptInvite handles POST /auth/invites/accept (public, rate limited).
func (h *Handler) AcceptInvite(c *gin.Context) {
	var req AcceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.repo.RedeemInvite(c.Request.Context(), utils.FingerprintToken(req.Token), hash, req.FullName)
	switch {
	case errors.Is(err, ErrInviteNotFound):
		response.NotFound(c, "invite not found or expired")
		return
	case errors.Is(err, ErrInviteUsed):
		response.Gone(c, "invite already used")
		return
	case errors.Is(err, ErrEmailTaken):
		response.Conflict(c, "email already registered")
		return
	case err != nil:
		response.Internal(c, "failed to accept invite")
		return
	}

	h.activity.Record(c.Request.Context(), models.ActivityEntry{
		Action:    models.ActionStaffJoined,
		ActorID:   &user.ID,
		SubjectID: &user.ID,
		Detail:    user.Email,
		IP:        c.ClientIP(),
	})

	token, err := h.jwt.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

func (h *Handler) acceptURL(raw string) string {
	return fmt.Sprintf("%s/staff/accept-invite?token=%s", h.publicBaseURL, raw)
}
