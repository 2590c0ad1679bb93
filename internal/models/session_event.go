package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionEventType string

const (
	EventStatusChanged     SessionEventType = "status_changed"
	EventStartFailed       SessionEventType = "start_failed"
	EventPollWarning       SessionEventType = "poll_warning"
	EventRecordingUpdated  SessionEventType = "recording_updated"
	EventJoinFailed        SessionEventType = "join_failed"
	EventCallJoined        SessionEventType = "call_joined"
	EventCallLeft          SessionEventType = "call_left"
	EventParticipantJoined SessionEventType = "participant_joined"
	EventParticipantLeft   SessionEventType = "participant_left"
	EventDeviceChanged     SessionEventType = "device_changed"
	EventDeviceError       SessionEventType = "device_error"
	EventAutoJoinHint      SessionEventType = "autojoin_hint"
)

// Auto-join hints shown by the hosting view. None of them is an error.
const (
	AutoJoinHintTrying = "trying"
	AutoJoinHintJoined = "joined"
	AutoJoinHintManual = "manual"
)

type SessionEvent struct {
	Type      SessionEventType  `json:"type"`
	ViewID    uuid.UUID         `json:"view_id"`
	Session   *InterviewSession `json:"session,omitempty"`
	Message   string            `json:"message,omitempty"`
	Data      map[string]any    `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
