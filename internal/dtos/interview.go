package dtos

import (
	"github.com/google/uuid"

	"github.com/gitflash/interviewd/internal/models"
	"github.com/gitflash/interviewd/internal/rtc"
)

// Open view request
type OpenViewRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// Resume view request
type ResumeViewRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

type SelectDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

// View response, returned by every operation that changes session state
type ViewResponse struct {
	ViewID  uuid.UUID               `json:"view_id"`
	Session models.InterviewSession `json:"session"`
	Call    CallState               `json:"call"`
}

type CallState struct {
	Joined bool `json:"joined"`
	Audio  bool `json:"audio"`
	Video  bool `json:"video"`
}

type StartSessionResponse struct {
	ViewResponse
	JoinURL string `json:"join_url"`
}

type ToggleResponse struct {
	Enabled bool `json:"enabled"`
}

type RecordingResponse struct {
	SessionID string           `json:"session_id"`
	Recording models.Recording `json:"recording"`
}

type ParticipantsResponse struct {
	Participants []rtc.Participant `json:"participants"`
}

type SurfaceLoadedResponse struct {
	AutoJoinStarted bool `json:"auto_join_started"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Views     int    `json:"views"`
	Database  string `json:"database"`
	Timestamp int64  `json:"timestamp"`
}
