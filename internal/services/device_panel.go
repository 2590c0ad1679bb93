package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/models"
	"github.com/gitflash/interviewd/internal/rtc"
)

type DeviceOption struct {
	rtc.Device
	Selected bool `json:"selected"`
}

type DeviceGroup struct {
	Kind     rtc.DeviceKind `json:"kind"`
	Selected string         `json:"selected,omitempty"`
	Devices  []DeviceOption `json:"devices"`
}

var deviceKinds = []rtc.DeviceKind{rtc.DeviceCamera, rtc.DeviceMicrophone, rtc.DeviceSpeaker}

// DevicePanel lists and switches the transport's media devices. It works
// with or without a joined call.
type DevicePanel struct {
	viewID   uuid.UUID
	shared   *rtc.Shared
	notifier Notifier
	clock    clockwork.Clock
	log      zerolog.Logger
}

func NewDevicePanel(shared *rtc.Shared, notifier Notifier, clock clockwork.Clock, log zerolog.Logger, viewID uuid.UUID) *DevicePanel {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &DevicePanel{
		viewID:   viewID,
		shared:   shared,
		notifier: notifier,
		clock:    clock,
		log:      log.With().Str("component", "device_panel").Str("view_id", viewID.String()).Logger(),
	}
}

// List groups devices by kind, camera first, and marks the selection.
func (p *DevicePanel) List(ctx context.Context) ([]DeviceGroup, error) {
	tr := p.shared.Transport()
	devices, err := tr.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	selected := tr.SelectedDevices()

	groups := make([]DeviceGroup, 0, len(deviceKinds))
	for _, kind := range deviceKinds {
		g := DeviceGroup{Kind: kind, Selected: selected[kind], Devices: []DeviceOption{}}
		for _, d := range devices {
			if d.Kind == kind {
				g.Devices = append(g.Devices, DeviceOption{Device: d, Selected: d.ID == g.Selected})
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Select switches the device of one kind. On failure the previous
// selection stays in place and a device_error event is raised.
func (p *DevicePanel) Select(ctx context.Context, kind rtc.DeviceKind, deviceID string) error {
	if !kind.Valid() {
		return fmt.Errorf("%q: %w", kind, ErrInvalidDeviceKind)
	}

	tr := p.shared.Transport()
	previous := tr.SelectedDevices()[kind]

	var err error
	switch kind {
	case rtc.DeviceCamera:
		err = tr.SetCamera(ctx, deviceID)
	case rtc.DeviceMicrophone:
		err = tr.SetMicrophone(ctx, deviceID)
	case rtc.DeviceSpeaker:
		err = tr.SetSpeaker(ctx, deviceID)
	}

	data := map[string]any{"kind": kind, "device_id": deviceID}
	if err != nil {
		data["selected"] = previous
		p.log.Warn().Err(err).Str("kind", string(kind)).Str("device_id", deviceID).Msg("device switch failed")
		p.publish(models.EventDeviceError, err.Error(), data)
		return fmt.Errorf("select %s: %w", kind, err)
	}

	data["selected"] = deviceID
	p.publish(models.EventDeviceChanged, "", data)
	return nil
}

// PlayTestTone plays a tone on the selected speaker.
func (p *DevicePanel) PlayTestTone(ctx context.Context) error {
	if err := p.shared.Transport().PlayTestTone(ctx); err != nil {
		p.publish(models.EventDeviceError, err.Error(), map[string]any{"kind": rtc.DeviceSpeaker})
		return fmt.Errorf("play test tone: %w", err)
	}
	return nil
}

func (p *DevicePanel) publish(t models.SessionEventType, msg string, data map[string]any) {
	p.notifier.Publish(models.SessionEvent{
		Type:      t,
		ViewID:    p.viewID,
		Message:   msg,
		Data:      data,
		Timestamp: p.clock.Now(),
	})
}
