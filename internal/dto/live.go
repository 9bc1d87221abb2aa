package dto

import (
	"time"

	"github.com/noah-isme/tilawah-live-api/internal/models"
)

// StartSessionRequest starts or joins a batch for a child. Students may omit
// childId; it defaults to their own user id.
type StartSessionRequest struct {
	ChildID   string `json:"childId" validate:"omitempty,max=64"`
	ChildName string `json:"childName" validate:"omitempty,max=120"`
}

// LeaveRequest removes the child from the batch roster.
type LeaveRequest struct {
	ChildID string `json:"childId" validate:"omitempty,max=64"`
	End     bool   `json:"end"`
}

// PingRequest is a heartbeat from a student client.
type PingRequest struct {
	ChildID   string `json:"childId" validate:"omitempty,max=64"`
	ChildName string `json:"childName" validate:"omitempty,max=120"`
}

// UpdatePositionRequest carries the new reading position.
type UpdatePositionRequest struct {
	Surah int `json:"surah"`
	Ayah  int `json:"ayah"`
}

// StartSessionResponse wraps the session and whether it was newly created.
type StartSessionResponse struct {
	Session *models.LiveSession `json:"session"`
	Created bool                `json:"created"`
}

// SessionView is what an observer reads for one session.
type SessionView struct {
	Session  *models.LiveSession         `json:"session"`
	Presence *models.ParticipantPresence `json:"presence,omitempty"`
}

// ActiveParticipant is one row of the scholar roster.
type ActiveParticipant struct {
	BatchID    string    `json:"batchId"`
	BatchName  string    `json:"batchName"`
	ChildID    string    `json:"childId"`
	ChildName  string    `json:"childName"`
	Surah      *int      `json:"surah"`
	Ayah       *int      `json:"ayah"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// ActiveSessionsResult is the merged roster across a scholar's batches.
type ActiveSessionsResult struct {
	Participants  []ActiveParticipant `json:"participants"`
	BatchCount    int                 `json:"batchCount"`
	FailedBatches []string            `json:"failedBatches,omitempty"`
}

// ExportFormat enumerates roster export renderers.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered roster file.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
}
