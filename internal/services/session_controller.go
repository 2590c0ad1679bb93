package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/models"
	"github.com/gitflash/interviewd/internal/provider"
	"github.com/gitflash/interviewd/internal/scheduler"
)

const storeTimeout = 5 * time.Second

type ControllerConfig struct {
	PollInterval time.Duration
	// MaxPollAttempts stops polling a provider that never reports ended.
	MaxPollAttempts int
	// FailureNotifyEvery escalates every Nth consecutive poll failure.
	FailureNotifyEvery int
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		PollInterval:       10 * time.Second,
		MaxPollAttempts:    360,
		FailureNotifyEvery: 3,
	}
}

func (c ControllerConfig) withDefaults() ControllerConfig {
	def := DefaultControllerConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = def.MaxPollAttempts
	}
	if c.FailureNotifyEvery <= 0 {
		c.FailureNotifyEvery = def.FailureNotifyEvery
	}
	return c
}

// ControllerDeps are the collaborators of a SessionController. Store and
// Notifier are optional.
type ControllerDeps struct {
	Provider provider.SessionProvider
	Store    SessionStore
	Notifier Notifier
	Clock    clockwork.Clock
	Log      zerolog.Logger
	Config   ControllerConfig
}

// SessionController owns the state of one interview session and is the only
// caller of the session provider for it.
type SessionController struct {
	provider provider.SessionProvider
	store    SessionStore
	notifier Notifier
	clock    clockwork.Clock
	log      zerolog.Logger
	cfg      ControllerConfig

	// background work (polling, scheduled recording checks) runs on ctx
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// pollMu serializes status requests so responses apply in order
	pollMu sync.Mutex
	recMu  sync.Mutex

	mu                 sync.Mutex
	session            models.InterviewSession
	poller             *scheduler.Handle
	pollFailures       int
	recordingScheduled bool
	call               Leaver
	closed             bool
}

func newController(deps ControllerDeps, session models.InterviewSession) *SessionController {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionController{
		provider: deps.Provider,
		store:    deps.Store,
		notifier: notifier,
		clock:    clock,
		log: deps.Log.With().
			Str("component", "session_controller").
			Str("view_id", session.ViewID.String()).
			Logger(),
		cfg:     deps.Config.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
		session: session,
	}
}

// NewSessionController creates a controller in draft for a conversation
// template.
func NewSessionController(deps ControllerDeps, viewID uuid.UUID, userID, conversationID string) *SessionController {
	now := time.Now()
	if deps.Clock != nil {
		now = deps.Clock.Now()
	}
	return newController(deps, models.InterviewSession{
		ViewID:         viewID,
		UserID:         userID,
		ConversationID: conversationID,
		Status:         models.SessionStatusDraft,
		Recording:      models.Recording{Status: models.RecordingStatusAbsent},
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// ResumeSessionController rebuilds a controller for a stored session under a
// new view. Live sessions resume polling.
func ResumeSessionController(deps ControllerDeps, viewID uuid.UUID, stored models.InterviewSession) (*SessionController, error) {
	if stored.SessionID == "" {
		return nil, fmt.Errorf("resume session: %w", ErrSessionNotFound)
	}
	switch stored.Status {
	case models.SessionStatusActive, models.SessionStatusWaiting, models.SessionStatusEnded:
	default:
		return nil, fmt.Errorf("resume session in status %q: %w", stored.Status, ErrInvalidTransition)
	}
	if stored.Status.IsLive() && isPlaceholderURL(stored.JoinURL) {
		return nil, fmt.Errorf("resume session: %w", ErrInvalidJoinURL)
	}
	if stored.Recording.Status == "" {
		stored.Recording.Status = models.RecordingStatusAbsent
	}
	stored.ViewID = viewID

	c := newController(deps, stored)

	c.mu.Lock()
	if stored.Status.IsLive() {
		c.startPollingLocked()
	}
	snap := c.session
	c.mu.Unlock()

	c.persist(snap)
	return c, nil
}

// SetLeaver attaches the call surface that End and Close ask to leave.
func (c *SessionController) SetLeaver(l Leaver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.call = l
}

// Snapshot returns a copy of the current session state.
func (c *SessionController) Snapshot() models.InterviewSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *SessionController) Status() models.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Status
}

// Start asks the provider for a new session. It is valid only from draft; on
// failure the session stays in draft and the provider's error is returned.
func (c *SessionController) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrViewClosed
	}
	if c.session.Status != models.SessionStatusDraft {
		status := c.session.Status
		c.mu.Unlock()
		return "", fmt.Errorf("start from %s: %w", status, ErrInvalidTransition)
	}
	c.session.Status = models.SessionStatusStarting
	c.session.UpdatedAt = c.clock.Now()
	conversationID := c.session.ConversationID
	snap := c.session
	c.mu.Unlock()

	c.notify(models.EventStatusChanged, snap, "", nil)

	started, err := c.provider.StartSession(ctx, conversationID)
	if err == nil && (started.SessionID == "" || isPlaceholderURL(started.JoinURL)) {
		err = ErrInvalidJoinURL
	}
	if err != nil {
		c.mu.Lock()
		c.session.Status = models.SessionStatusDraft
		c.session.UpdatedAt = c.clock.Now()
		snap = c.session
		c.mu.Unlock()

		c.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to start session")
		c.notify(models.EventStartFailed, snap, err.Error(), nil)
		c.notify(models.EventStatusChanged, snap, "", nil)
		return "", fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	c.session.SessionID = started.SessionID
	c.session.JoinURL = started.JoinURL
	c.session.Status = models.SessionStatusActive
	c.session.UpdatedAt = c.clock.Now()
	if !c.closed {
		c.startPollingLocked()
	}
	snap = c.session
	c.mu.Unlock()

	c.log.Info().Str("session_id", started.SessionID).Msg("session started")
	c.persist(snap)
	c.notify(models.EventStatusChanged, snap, "", nil)
	return started.JoinURL, nil
}

// RefreshStatus runs one status poll now, outside the regular interval. It
// is a no-op without a session or once ended.
func (c *SessionController) RefreshStatus(ctx context.Context) error {
	return c.poll(ctx)
}

// End leaves the call and asks the provider to end the session. Local state
// changes only once the provider confirms.
func (c *SessionController) End(ctx context.Context) error {
	c.mu.Lock()
	if !c.session.Status.IsLive() {
		status := c.session.Status
		c.mu.Unlock()
		return fmt.Errorf("end from %s: %w", status, ErrInvalidTransition)
	}
	sessionID := c.session.SessionID
	call := c.call
	c.mu.Unlock()

	if call != nil {
		if err := call.Leave(ctx); err != nil {
			c.log.Warn().Err(err).Msg("leave before end failed")
		}
	}

	if err := c.provider.SetSessionStatus(ctx, sessionID, provider.RemoteStatusEnded); err != nil {
		c.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to end session")
		return fmt.Errorf("end session: %w", err)
	}

	c.transitionToEnded(nil)
	return nil
}

// OnRemoteStatusChange reconciles a polled status into local state. Repeated
// or stale reports are no-ops; ended is terminal. It reports whether the
// local status changed.
func (c *SessionController) OnRemoteStatusChange(status provider.RemoteStatus, detail provider.StatusDetail) bool {
	d := models.StatusDetail{
		ParticipantJoinedAt: detail.ParticipantJoinedAt,
		DurationSeconds:     detail.DurationSeconds,
		ProviderStatus:      detail.ProviderStatus,
	}

	var next models.SessionStatus
	switch status {
	case provider.RemoteStatusActive:
		next = models.SessionStatusActive
	case provider.RemoteStatusWaiting:
		next = models.SessionStatusWaiting
	case provider.RemoteStatusEnded:
		return c.transitionToEnded(&d)
	case provider.RemoteStatusPending:
		c.recordDetail(d)
		return false
	default:
		c.log.Warn().Str("status", string(status)).Msg("ignoring unknown provider status")
		c.recordDetail(d)
		return false
	}

	c.mu.Lock()
	if !c.session.Status.IsLive() {
		c.mu.Unlock()
		return false
	}
	c.session.Detail = d
	if c.session.Status == next {
		c.mu.Unlock()
		return false
	}
	c.session.Status = next
	c.session.UpdatedAt = c.clock.Now()
	snap := c.session
	c.mu.Unlock()

	c.persist(snap)
	c.notify(models.EventStatusChanged, snap, "", nil)
	return true
}

func (c *SessionController) recordDetail(d models.StatusDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Status.IsLive() {
		c.session.Detail = d
	}
}

// transitionToEnded is shared by End and the poll path. Only the first
// caller changes state and schedules the recording check.
func (c *SessionController) transitionToEnded(detail *models.StatusDetail) bool {
	c.mu.Lock()
	if !c.session.Status.IsLive() {
		c.mu.Unlock()
		return false
	}
	now := c.clock.Now()
	c.session.Status = models.SessionStatusEnded
	c.session.EndedAt = &now
	c.session.UpdatedAt = now
	if detail != nil {
		c.session.Detail = *detail
	}
	c.poller.Stop()
	c.poller = nil

	schedule := !c.recordingScheduled && !c.closed
	c.recordingScheduled = true
	snap := c.session
	c.mu.Unlock()

	c.log.Info().Str("session_id", snap.SessionID).Msg("session ended")
	c.persist(snap)
	c.notify(models.EventStatusChanged, snap, "", nil)

	if schedule {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.fetchRecording(c.ctx)
		}()
	}
	return true
}

// CheckRecording fetches the recording of an ended session. A ready
// recording is returned without asking the provider again.
func (c *SessionController) CheckRecording(ctx context.Context) (models.Recording, error) {
	c.mu.Lock()
	if c.session.Status != models.SessionStatusEnded {
		c.mu.Unlock()
		return models.Recording{Status: models.RecordingStatusAbsent}, ErrSessionNotEnded
	}
	if c.session.Recording.Status == models.RecordingStatusReady {
		rec := c.session.Recording
		c.mu.Unlock()
		return rec, nil
	}
	c.mu.Unlock()

	return c.fetchRecording(ctx), nil
}

func (c *SessionController) fetchRecording(ctx context.Context) models.Recording {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	c.mu.Lock()
	if c.session.Recording.Status == models.RecordingStatusReady {
		rec := c.session.Recording
		c.mu.Unlock()
		return rec
	}
	conversationID, sessionID := c.session.ConversationID, c.session.SessionID
	c.mu.Unlock()

	var next models.Recording
	remote, err := c.provider.GetRecording(ctx, conversationID, sessionID)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to fetch recording")
		next = models.Recording{Status: models.RecordingStatusError, Error: err.Error()}
	case remote.Status == provider.RecordingReady && remote.URL != "":
		next = models.Recording{Status: models.RecordingStatusReady, URL: remote.URL}
	case remote.Status == provider.RecordingReady, remote.Status == provider.RecordingProcessing:
		next = models.Recording{Status: models.RecordingStatusProcessing}
	case remote.Status == provider.RecordingError, remote.Status == provider.RecordingFailed:
		next = models.Recording{Status: models.RecordingStatusError, Error: "recording " + string(remote.Status)}
	default:
		c.log.Warn().Str("status", string(remote.Status)).Msg("unknown recording status")
		next = models.Recording{Status: models.RecordingStatusProcessing}
	}

	c.mu.Lock()
	c.session.Recording = next
	c.session.UpdatedAt = c.clock.Now()
	snap := c.session
	c.mu.Unlock()

	c.persist(snap)
	c.notify(models.EventRecordingUpdated, snap, next.Error, nil)
	return next
}

// startPollingLocked replaces any running poller. c.mu must be held.
func (c *SessionController) startPollingLocked() {
	c.poller.Stop()
	c.pollFailures = 0
	c.poller = scheduler.Every(c.ctx, c.clock, scheduler.Options{
		Interval:    c.cfg.PollInterval,
		Immediate:   true,
		MaxAttempts: c.cfg.MaxPollAttempts,
		OnExhausted: c.onPollExhausted,
	}, func(ctx context.Context) {
		_ = c.poll(ctx)
	})
}

func (c *SessionController) poll(ctx context.Context) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	c.mu.Lock()
	if c.session.SessionID == "" || !c.session.Status.IsLive() {
		c.mu.Unlock()
		return nil
	}
	conversationID, sessionID := c.session.ConversationID, c.session.SessionID
	c.mu.Unlock()

	status, err := c.provider.GetSessionStatus(ctx, conversationID, sessionID)
	if err != nil {
		// a stopped poller or a gone caller is not a provider failure
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		c.recordPollFailure(err)
		return fmt.Errorf("poll session status: %w", err)
	}

	c.mu.Lock()
	c.pollFailures = 0
	c.mu.Unlock()

	c.OnRemoteStatusChange(status.Status, status.Detail)
	return nil
}

func (c *SessionController) recordPollFailure(err error) {
	c.mu.Lock()
	c.pollFailures++
	failures := c.pollFailures
	snap := c.session
	c.mu.Unlock()

	c.log.Warn().Err(err).Int("consecutive_failures", failures).Msg("status poll failed")
	if failures%c.cfg.FailureNotifyEvery == 0 {
		c.notify(models.EventPollWarning, snap,
			fmt.Sprintf("could not refresh the interview status %d times in a row", failures),
			map[string]any{"consecutive_failures": failures})
	}
}

func (c *SessionController) onPollExhausted() {
	snap := c.Snapshot()

	c.log.Warn().Int("max_attempts", c.cfg.MaxPollAttempts).Msg("status polling exhausted")
	c.notify(models.EventPollWarning, snap, "automatic status updates stopped; refresh manually", map[string]any{"exhausted": true})
}

// Polling reports whether a status poller is scheduled.
func (c *SessionController) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poller.Running()
}

// Close unmounts the view: polling stops and the call is left. The remote
// session is never ended here.
func (c *SessionController) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.poller.Stop()
	c.poller = nil
	call := c.call
	c.mu.Unlock()

	c.cancel()

	var err error
	if call != nil {
		err = call.Leave(ctx)
	}
	c.wg.Wait()
	return err
}

func (c *SessionController) persist(snap models.InterviewSession) {
	if c.store == nil || snap.SessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.store.SaveSession(ctx, &snap); err != nil {
		c.log.Error().Err(err).Str("session_id", snap.SessionID).Msg("failed to persist session")
	}
}

func (c *SessionController) notify(t models.SessionEventType, snap models.InterviewSession, msg string, data map[string]any) {
	c.notifier.Publish(models.SessionEvent{
		Type:      t,
		ViewID:    snap.ViewID,
		Session:   &snap,
		Message:   msg,
		Data:      data,
		Timestamp: c.clock.Now(),
	})
}
