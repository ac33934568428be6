package models

import (
	"time"

	"github.com/google/uuid"
)

// Export types.
const (
	ExportTypeAttendees = "attendees"
	ExportTypeCheckIns  = "checkins"
	ExportTypeActivity  = "activity"
)

// Export job lifecycle.
const (
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

// ExportJob tracks an asynchronous report build. The worker renders the
// CSV, uploads it to S3 and completes the row; downloads go through
// short-lived presigned URLs.
type ExportJob struct {
	ID           uuid.UUID  `json:"id"`
	ExportType   string     `json:"export_type"`
	Status       string     `json:"status"`
	RequestedBy  *uuid.UUID `json:"requested_by,omitempty"`
	S3Key        string     `json:"s3_key,omitempty"`
	FileSize     int64      `json:"file_size,omitempty"`
	RowCount     int        `json:"row_count,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
