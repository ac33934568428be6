package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity log actions.
const (
	ActionCheckInScan       = "checkin.scan"
	ActionCheckInScanFailed = "checkin.scan_failed"
	ActionCheckInRepair     = "checkin.repair"
	ActionAttendeeCreated   = "attendee.created"
	ActionAttendeeUpdated   = "attendee.updated"
	ActionAttendeesDeleted  = "attendee.bulk_deleted"
	ActionWalkInRegistered  = "registration.walk_in"
	ActionTokenCreated      = "token.created"
	ActionTokenDeactivated  = "token.deactivated"
	ActionExportRequested   = "export.requested"
	ActionStaffInvited      = "staff.invited"
	ActionStaffJoined       = "staff.joined"
	ActionLoginFailed       = "auth.login_failed"
)

// ActivityEntry is one row of the append-only audit trail.
type ActivityEntry struct {
	ID        uuid.UUID  `json:"id"`
	Action    string     `json:"action"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	IP        string     `json:"ip,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
