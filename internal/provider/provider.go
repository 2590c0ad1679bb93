// Package provider talks to the conversational-AI session provider that owns
// the remote interview conversations.
package provider

import (
	"context"
	"fmt"
	"time"
)

type RemoteStatus string

const (
	RemoteStatusPending RemoteStatus = "pending"
	RemoteStatusActive  RemoteStatus = "active"
	RemoteStatusWaiting RemoteStatus = "waiting"
	RemoteStatusEnded   RemoteStatus = "ended"
)

type RecordingState string

const (
	RecordingProcessing RecordingState = "processing"
	RecordingReady      RecordingState = "ready"
	RecordingError      RecordingState = "error"
	RecordingFailed     RecordingState = "failed"
)

type StartedSession struct {
	SessionID string `json:"session_id"`
	JoinURL   string `json:"join_url"`
}

type StatusDetail struct {
	ParticipantJoinedAt *time.Time `json:"participant_joined_at,omitempty"`
	DurationSeconds     int        `json:"duration_seconds"`
	ProviderStatus      string     `json:"provider_status,omitempty"`
}

type SessionStatus struct {
	Status RemoteStatus `json:"status"`
	Detail StatusDetail `json:"detail"`
}

type Recording struct {
	Status RecordingState `json:"status"`
	URL    string         `json:"url,omitempty"`
}

// SessionProvider is the subset of the provider API the orchestrator consumes.
type SessionProvider interface {
	StartSession(ctx context.Context, conversationTemplateID string) (*StartedSession, error)
	GetSessionStatus(ctx context.Context, conversationTemplateID, sessionID string) (*SessionStatus, error)
	SetSessionStatus(ctx context.Context, sessionID string, status RemoteStatus) error
	GetRecording(ctx context.Context, conversationTemplateID, sessionID string) (*Recording, error)
}

// Error is a non-2xx answer from the provider.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return e.Message
}

// Temporary reports whether retrying the same request may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
