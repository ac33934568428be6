package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationType says how an attendee entered the list.
type RegistrationType string

const (
	RegistrationTypePreRegistered RegistrationType = "pre_registered"
	RegistrationTypeWalkIn        RegistrationType = "walk_in"
)

// Attendee is a person on the event guest list. The QR token is minted at
// registration and never changes afterwards.
type Attendee struct {
	ID               uuid.UUID        `json:"id"`
	FullName         string           `json:"full_name"`
	Email            string           `json:"email"`
	Phone            string           `json:"phone,omitempty"`
	Company          string           `json:"company,omitempty"`
	QRToken          string           `json:"qr_token"`
	RegistrationType RegistrationType `json:"registration_type"`
	CheckedIn        bool             `json:"checked_in"`
	FirstCheckedInAt *time.Time       `json:"first_checked_in_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// AttendeeStats holds the dashboard counters.
type AttendeeStats struct {
	Total      int `json:"total"`
	CheckedIn  int `json:"checked_in"`
	WalkIns    int `json:"walk_ins"`
	TotalScans int `json:"total_scans"`
}
