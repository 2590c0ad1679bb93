// Package rtc holds the call transport: the WebRTC call object that joins a
// provider's call URL, and the process-wide lease that guards it.
package rtc

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied = errors.New("camera or microphone unavailable")
	ErrNotJoined        = errors.New("transport is not joined to a call")
	ErrAlreadyJoined    = errors.New("transport is already joined to a call")
	ErrUnknownDevice    = errors.New("unknown device")
	ErrNoLocalMedia     = errors.New("local media not started")
)

type DeviceKind string

const (
	DeviceCamera     DeviceKind = "camera"
	DeviceMicrophone DeviceKind = "microphone"
	DeviceSpeaker    DeviceKind = "speaker"
)

func (k DeviceKind) Valid() bool {
	return k == DeviceCamera || k == DeviceMicrophone || k == DeviceSpeaker
}

type Device struct {
	ID    string     `json:"id"`
	Kind  DeviceKind `json:"kind"`
	Label string     `json:"label"`
}

type Participant struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	Local  bool     `json:"local"`
	Tracks []string `json:"tracks,omitempty"`
}

type ParticipantEventType string

const (
	ParticipantJoined  ParticipantEventType = "joined"
	ParticipantLeft    ParticipantEventType = "left"
	ParticipantUpdated ParticipantEventType = "updated"
)

type ParticipantEvent struct {
	Type        ParticipantEventType
	Participant Participant
}

// Transport is a WebRTC-style call object.
type Transport interface {
	StartLocalMedia(ctx context.Context) error
	Join(ctx context.Context, url string) error
	// Leave is idempotent.
	Leave(ctx context.Context) error

	// SetLocalAudio and SetLocalVideo return the enablement the transport
	// actually ended up in.
	SetLocalAudio(enabled bool) (bool, error)
	SetLocalVideo(enabled bool) (bool, error)
	LocalAudio() bool
	LocalVideo() bool

	EnumerateDevices(ctx context.Context) ([]Device, error)
	SelectedDevices() map[DeviceKind]string
	SetCamera(ctx context.Context, deviceID string) error
	SetMicrophone(ctx context.Context, deviceID string) error
	SetSpeaker(ctx context.Context, deviceID string) error
	PlayTestTone(ctx context.Context) error

	// Participants is the roster, local participant first.
	Participants() []Participant
	// OnParticipantChange replaces the roster change handler. nil removes it.
	OnParticipantChange(fn func(ParticipantEvent))
}
