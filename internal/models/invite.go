package models

import (
	"time"

	"github.com/google/uuid"
)

// StaffInvite is a single-use invitation to create a staff account. Only
// the SHA-256 fingerprint of the token is stored; the raw token travels in
// the invite email and is never persisted.
type StaffInvite struct {
	ID        uuid.UUID  `json:"id"`
	TokenHash string     `json:"-"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	InvitedBy uuid.UUID  `json:"invited_by"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
