package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/models"
	"github.com/gitflash/interviewd/internal/rtc"
)

// StatusSource exposes the session a call surface is bound to.
type StatusSource interface {
	Snapshot() models.InterviewSession
}

type CallSurfaceDeps struct {
	Transport   *rtc.Shared
	Session     StatusSource
	Preferences PreferenceStore
	Notifier    Notifier
	Clock       clockwork.Clock
	Log         zerolog.Logger
	// AcquireTimeout bounds the wait for another view to release the
	// transport.
	AcquireTimeout time.Duration
}

// CallSurface binds one session's join URL to the shared call transport.
type CallSurface struct {
	viewID         uuid.UUID
	userID         string
	shared         *rtc.Shared
	session        StatusSource
	prefs          PreferenceStore
	notifier       Notifier
	clock          clockwork.Clock
	log            zerolog.Logger
	acquireTimeout time.Duration

	mu      sync.Mutex
	lease   *rtc.Lease
	joinURL string

	// set while a join is in flight
	joinDone   chan struct{}
	cancelJoin context.CancelFunc
	leaveAsked bool
}

func NewCallSurface(deps CallSurfaceDeps, viewID uuid.UUID, userID string) *CallSurface {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	timeout := deps.AcquireTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CallSurface{
		viewID:         viewID,
		userID:         userID,
		shared:         deps.Transport,
		session:        deps.Session,
		prefs:          deps.Preferences,
		notifier:       notifier,
		clock:          clock,
		log:            deps.Log.With().Str("component", "call_surface").Str("view_id", viewID.String()).Logger(),
		acquireTimeout: timeout,
	}
}

// Join starts local media and joins the call at joinURL. It is accepted only
// while the session is active or waiting, and only once until Leave. A
// failed join leaves the surface unjoined so it can be retried. A Leave that
// arrives mid-join cancels it and the transport is released again.
func (s *CallSurface) Join(ctx context.Context, joinURL string) error {
	if isPlaceholderURL(joinURL) {
		return ErrInvalidJoinURL
	}
	if status := s.session.Snapshot().Status; !status.IsLive() {
		return fmt.Errorf("join while %s: %w", status, ErrJoinNotAllowed)
	}

	s.mu.Lock()
	if s.lease != nil || s.joinDone != nil {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	joinCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.joinDone, s.cancelJoin, s.leaveAsked = done, cancel, false
	s.mu.Unlock()

	lease, err := s.join(joinCtx, joinURL)
	cancel()

	s.mu.Lock()
	aborted := s.leaveAsked || !s.session.Snapshot().Status.IsLive()
	if err == nil && !aborted {
		s.lease = lease
		s.joinURL = joinURL
	}
	s.mu.Unlock()

	if err == nil && aborted {
		if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.log.Warn().Err(relErr).Msg("release after cancelled join failed")
		}
	}

	s.mu.Lock()
	s.joinDone, s.cancelJoin, s.leaveAsked = nil, nil, false
	close(done)
	s.mu.Unlock()

	if aborted {
		s.log.Info().Msg("join cancelled")
		return ErrJoinCancelled
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("join failed")
		s.publish(models.EventJoinFailed, err.Error(), map[string]any{
			"permission_hint": errors.Is(err, rtc.ErrPermissionDenied),
		})
		return fmt.Errorf("join call: %w", err)
	}

	tr := lease.Transport()
	s.publish(models.EventCallJoined, "", map[string]any{
		"audio": tr.LocalAudio(),
		"video": tr.LocalVideo(),
	})
	return nil
}

func (s *CallSurface) join(ctx context.Context, joinURL string) (*rtc.Lease, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	lease, err := s.shared.Acquire(acquireCtx, s.viewID)
	cancel()
	if err != nil {
		return nil, err
	}

	tr := lease.Transport()
	tr.OnParticipantChange(s.onParticipantChange)

	if err := tr.StartLocalMedia(ctx); err != nil {
		lease.Release(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := tr.Join(ctx, joinURL); err != nil {
		lease.Release(context.WithoutCancel(ctx))
		return nil, err
	}

	s.applyPreferences(ctx, tr)
	return lease, nil
}

func (s *CallSurface) applyPreferences(ctx context.Context, tr rtc.Transport) {
	prefs := s.loadPreferences(ctx)
	if !prefs.MicrophoneEnabled {
		if _, err := tr.SetLocalAudio(false); err != nil {
			s.log.Warn().Err(err).Msg("failed to apply microphone preference")
		}
	}
	if !prefs.CameraEnabled {
		if _, err := tr.SetLocalVideo(false); err != nil {
			s.log.Warn().Err(err).Msg("failed to apply camera preference")
		}
	}
}

// Leave is idempotent and safe to call without a prior Join. During a join
// it cancels the join and waits until the transport is released.
func (s *CallSurface) Leave(ctx context.Context) error {
	s.mu.Lock()
	if done := s.joinDone; done != nil {
		s.leaveAsked = true
		s.cancelJoin()
		s.mu.Unlock()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("leave call: %w", ctx.Err())
		}
	}
	lease := s.lease
	s.lease = nil
	s.mu.Unlock()

	if lease == nil {
		return nil
	}

	err := lease.Release(ctx)
	s.publish(models.EventCallLeft, "", nil)
	if err != nil {
		return fmt.Errorf("leave call: %w", err)
	}
	return nil
}

func (s *CallSurface) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lease != nil
}

// ToggleAudio flips the microphone and returns the state the transport
// reports afterwards.
func (s *CallSurface) ToggleAudio(ctx context.Context) (bool, error) {
	return s.toggle(ctx, func(tr rtc.Transport) (bool, error) {
		return tr.SetLocalAudio(!tr.LocalAudio())
	}, func(p *models.CallPreferences, on bool) { p.MicrophoneEnabled = on })
}

// ToggleVideo flips the camera and returns the state the transport reports
// afterwards.
func (s *CallSurface) ToggleVideo(ctx context.Context) (bool, error) {
	return s.toggle(ctx, func(tr rtc.Transport) (bool, error) {
		return tr.SetLocalVideo(!tr.LocalVideo())
	}, func(p *models.CallPreferences, on bool) { p.CameraEnabled = on })
}

func (s *CallSurface) toggle(ctx context.Context, flip func(rtc.Transport) (bool, error), store func(*models.CallPreferences, bool)) (bool, error) {
	s.mu.Lock()
	if s.lease == nil {
		s.mu.Unlock()
		return false, ErrNotJoined
	}
	enabled, err := flip(s.lease.Transport())
	s.mu.Unlock()

	if err != nil {
		return enabled, fmt.Errorf("toggle media: %w", err)
	}

	prefs := s.loadPreferences(ctx)
	store(&prefs, enabled)
	s.savePreferences(ctx, prefs)
	return enabled, nil
}

// MediaState returns the transport's current microphone and camera state.
func (s *CallSurface) MediaState() (audio, video bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease == nil {
		return false, false
	}
	tr := s.lease.Transport()
	return tr.LocalAudio(), tr.LocalVideo()
}

// Participants is the transport's roster while joined.
func (s *CallSurface) Participants() []rtc.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lease == nil {
		return []rtc.Participant{}
	}
	return s.lease.Transport().Participants()
}

func (s *CallSurface) onParticipantChange(e rtc.ParticipantEvent) {
	var t models.SessionEventType
	switch e.Type {
	case rtc.ParticipantJoined:
		t = models.EventParticipantJoined
	case rtc.ParticipantLeft:
		t = models.EventParticipantLeft
	default:
		return
	}
	s.publish(t, "", map[string]any{"participant": e.Participant})
}

func (s *CallSurface) loadPreferences(ctx context.Context) models.CallPreferences {
	if s.prefs == nil {
		return models.DefaultCallPreferences(s.userID)
	}
	prefs, err := s.prefs.GetPreferences(ctx, s.userID)
	if err != nil || prefs == nil {
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to load call preferences")
		}
		return models.DefaultCallPreferences(s.userID)
	}
	return *prefs
}

func (s *CallSurface) savePreferences(ctx context.Context, prefs models.CallPreferences) {
	if s.prefs == nil {
		return
	}
	prefs.UserID = s.userID
	prefs.UpdatedAt = s.clock.Now()
	if err := s.prefs.SavePreferences(ctx, &prefs); err != nil {
		s.log.Warn().Err(err).Msg("failed to save call preferences")
	}
}

func (s *CallSurface) publish(t models.SessionEventType, msg string, data map[string]any) {
	snap := s.session.Snapshot()
	s.notifier.Publish(models.SessionEvent{
		Type:      t,
		ViewID:    s.viewID,
		Session:   &snap,
		Message:   msg,
		Data:      data,
		Timestamp: s.clock.Now(),
	})
}

// isPlaceholderURL rejects anything that is not an absolute http(s) URL.
func isPlaceholderURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "#" || raw == "about:blank" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	return (u.Scheme != "http" && u.Scheme != "https") || u.Host == ""
}
