package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Guest type labels for the first three scans of a token.
const (
	GuestTypeOriginal = "original"
	GuestTypePlusOne  = "plus_one"
	GuestTypePlusTwo  = "plus_two"
)

// GuestTypeFor labels the nth scan of a QR token. The first scan is the
// attendee themselves; every further scan is an accompanying guest. The
// numbering is open-ended on purpose: hosts decide plus-guest policy at
// the door, not the software.
func GuestTypeFor(ordinal int) string {
	switch ordinal {
	case 1:
		return GuestTypeOriginal
	case 2:
		return GuestTypePlusOne
	case 3:
		return GuestTypePlusTwo
	default:
		return fmt.Sprintf("plus_%d", ordinal-1)
	}
}

// CheckInInstance is one scan of a QR token. Rows are immutable once
// written; per token the ordinals form the gapless sequence 1..k.
type CheckInInstance struct {
	ID          uuid.UUID `json:"id"`
	QRToken     string    `json:"qr_token"`
	Ordinal     int       `json:"ordinal"`
	GuestType   string    `json:"guest_type"`
	CheckedInAt time.Time `json:"checked_in_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// CheckInRecord is an instance joined with its attendee for listings.
type CheckInRecord struct {
	CheckInInstance
	AttendeeID   uuid.UUID `json:"attendee_id"`
	AttendeeName string    `json:"attendee_name"`
}
