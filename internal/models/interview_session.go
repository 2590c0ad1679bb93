package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusDraft    SessionStatus = "draft"
	SessionStatusStarting SessionStatus = "starting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusWaiting  SessionStatus = "waiting"
	SessionStatusEnded    SessionStatus = "ended"
)

// IsLive reports whether the session has a joinable call.
func (s SessionStatus) IsLive() bool {
	return s == SessionStatusActive || s == SessionStatusWaiting
}

type RecordingStatus string

const (
	RecordingStatusAbsent     RecordingStatus = "absent"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusReady      RecordingStatus = "ready"
	RecordingStatusError      RecordingStatus = "error"
)

type Recording struct {
	Status RecordingStatus `json:"status"`
	URL    string          `json:"url,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusDetail is advisory metadata from the last status poll.
// It never drives state transitions.
type StatusDetail struct {
	ParticipantJoinedAt *time.Time `json:"participant_joined_at,omitempty" db:"participant_joined_at"`
	DurationSeconds     int        `json:"duration_seconds" db:"duration_seconds"`
	ProviderStatus      string     `json:"provider_status,omitempty" db:"provider_status"`
}

type InterviewSession struct {
	ViewID         uuid.UUID     `json:"view_id" db:"view_id"`
	UserID         string        `json:"user_id" db:"user_id"`
	SessionID      string        `json:"session_id,omitempty" db:"session_id"`
	ConversationID string        `json:"conversation_id" db:"conversation_id"`
	JoinURL        string        `json:"join_url,omitempty" db:"join_url"`
	Status         SessionStatus `json:"status" db:"status"`
	Detail         StatusDetail  `json:"status_detail"`
	Recording      Recording     `json:"recording"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// CallPreferences are the per-user media activation flags kept across navigation.
type CallPreferences struct {
	UserID            string    `json:"user_id" db:"user_id"`
	CameraEnabled     bool      `json:"camera_enabled" db:"camera_enabled"`
	MicrophoneEnabled bool      `json:"microphone_enabled" db:"microphone_enabled"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

func DefaultCallPreferences(userID string) CallPreferences {
	return CallPreferences{
		UserID:            userID,
		CameraEnabled:     true,
		MicrophoneEnabled: true,
	}
}
