package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationToken gates walk-in self-registration. Staff mint a code,
// hand it out, and every accepted registration consumes one use.
type RegistrationToken struct {
	ID          uuid.UUID  `json:"id"`
	Token       string     `json:"token"`
	Label       string     `json:"label,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	MaxUses     int        `json:"max_uses"`
	CurrentUses int        `json:"current_uses"`
	IsActive    bool       `json:"is_active"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	UsedByEmail string     `json:"used_by_email,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UsableAt reports whether the token can admit another registration at now.
func (t *RegistrationToken) UsableAt(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt) && t.CurrentUses < t.MaxUses
}

// RemainingUses never goes below zero.
func (t *RegistrationToken) RemainingUses() int {
	if t.CurrentUses >= t.MaxUses {
		return 0
	}
	return t.MaxUses - t.CurrentUses
}
