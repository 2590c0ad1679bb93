package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/models"
	"github.com/gitflash/interviewd/internal/provider"
	"github.com/gitflash/interviewd/internal/rtc"
)

// View is everything one hosting view works with.
type View struct {
	ID         uuid.UUID
	UserID     string
	Controller *SessionController
	Surface    *CallSurface
	Devices    *DevicePanel
}

// SurfaceFactory builds the auto-join controller for a view's embedded
// surface.
type SurfaceFactory func(viewID uuid.UUID, sessionID string) SurfaceController

// RoomCloser disconnects the event stream of a closed view.
type RoomCloser interface {
	CloseRoom(viewID uuid.UUID)
}

type InterviewServiceDeps struct {
	Provider    provider.SessionProvider
	Sessions    SessionStore
	Preferences PreferenceStore
	Transport   *rtc.Shared
	Notifier    Notifier
	Surfaces    SurfaceFactory
	Rooms       RoomCloser
	Clock       clockwork.Clock
	Log         zerolog.Logger

	Controller     ControllerConfig
	AutoJoin       AutoJoinConfig
	AcquireTimeout time.Duration
}

// InterviewService keeps the views opened by users.
type InterviewService struct {
	deps     InterviewServiceDeps
	autoJoin *AutoJoinAssistant
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	views map[uuid.UUID]*View
}

func NewInterviewService(deps InterviewServiceDeps) *InterviewService {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &InterviewService{
		deps:     deps,
		autoJoin: NewAutoJoinAssistant(deps.AutoJoin, deps.Clock, deps.Notifier, deps.Log),
		log:      deps.Log.With().Str("component", "interview_service").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		views:    make(map[uuid.UUID]*View),
	}
}

// OpenView creates a draft session view for a conversation template.
func (s *InterviewService) OpenView(ctx context.Context, userID, conversationID string) (*View, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}

	viewID := uuid.New()
	ctrl := NewSessionController(s.controllerDeps(), viewID, userID, conversationID)
	view := s.register(viewID, userID, ctrl)

	s.log.Info().Str("view_id", viewID.String()).Str("conversation_id", conversationID).Msg("view opened")
	return view, nil
}

// ResumeView reopens a stored session owned by userID under a new view.
func (s *InterviewService) ResumeView(ctx context.Context, userID, sessionID string) (*View, error) {
	if s.deps.Sessions == nil {
		return nil, ErrSessionNotFound
	}

	stored, err := s.deps.Sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if stored.UserID != userID {
		return nil, ErrSessionNotFound
	}

	// a session is driven by one view at a time
	if old := s.viewForSession(sessionID, userID); old != nil {
		if err := s.CloseView(ctx, old.ID, userID); err != nil {
			s.log.Warn().Err(err).Str("view_id", old.ID.String()).Msg("failed to close previous view")
		}
	}

	viewID := uuid.New()
	ctrl, err := ResumeSessionController(s.controllerDeps(), viewID, *stored)
	if err != nil {
		return nil, err
	}
	view := s.register(viewID, userID, ctrl)

	s.log.Info().Str("view_id", viewID.String()).Str("session_id", sessionID).Msg("view resumed")
	return view, nil
}

func (s *InterviewService) controllerDeps() ControllerDeps {
	return ControllerDeps{
		Provider: s.deps.Provider,
		Store:    s.deps.Sessions,
		Notifier: s.deps.Notifier,
		Clock:    s.deps.Clock,
		Log:      s.deps.Log,
		Config:   s.deps.Controller,
	}
}

func (s *InterviewService) register(viewID uuid.UUID, userID string, ctrl *SessionController) *View {
	surface := NewCallSurface(CallSurfaceDeps{
		Transport:      s.deps.Transport,
		Session:        ctrl,
		Preferences:    s.deps.Preferences,
		Notifier:       s.deps.Notifier,
		Clock:          s.deps.Clock,
		Log:            s.deps.Log,
		AcquireTimeout: s.deps.AcquireTimeout,
	}, viewID, userID)
	ctrl.SetLeaver(surface)

	view := &View{
		ID:         viewID,
		UserID:     userID,
		Controller: ctrl,
		Surface:    surface,
		Devices:    NewDevicePanel(s.deps.Transport, s.deps.Notifier, s.deps.Clock, s.deps.Log, viewID),
	}

	s.mu.Lock()
	s.views[viewID] = view
	s.mu.Unlock()
	return view
}

func (s *InterviewService) viewForSession(sessionID, userID string) *View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.views {
		if v.UserID == userID && v.Controller.Snapshot().SessionID == sessionID {
			return v
		}
	}
	return nil
}

// GetView returns ErrViewNotFound for unknown views and for views owned by
// another user.
func (s *InterviewService) GetView(viewID uuid.UUID, userID string) (*View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, ok := s.views[viewID]
	if !ok || view.UserID != userID {
		return nil, ErrViewNotFound
	}
	return view, nil
}

func (s *InterviewService) OwnsView(viewID uuid.UUID, userID string) bool {
	_, err := s.GetView(viewID, userID)
	return err == nil
}

func (s *InterviewService) ViewCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

// CloseView unmounts a view: polling stops and the call is left, but the
// remote session is not ended.
func (s *InterviewService) CloseView(ctx context.Context, viewID uuid.UUID, userID string) error {
	s.mu.Lock()
	view, ok := s.views[viewID]
	if !ok || view.UserID != userID {
		s.mu.Unlock()
		return ErrViewNotFound
	}
	delete(s.views, viewID)
	s.mu.Unlock()

	err := view.Controller.Close(ctx)
	s.autoJoin.Forget(viewID)
	if s.deps.Rooms != nil {
		s.deps.Rooms.CloseRoom(viewID)
	}

	s.log.Info().Str("view_id", viewID.String()).Msg("view closed")
	return err
}

// SurfaceLoaded is reported by the hosting view once the embedded surface
// is ready. It starts the auto-join attempts and reports whether they
// started.
func (s *InterviewService) SurfaceLoaded(ctx context.Context, viewID uuid.UUID, userID string) (bool, error) {
	view, err := s.GetView(viewID, userID)
	if err != nil {
		return false, err
	}

	snap := view.Controller.Snapshot()
	var surface SurfaceController
	if s.deps.Surfaces != nil {
		surface = s.deps.Surfaces(viewID, snap.SessionID)
	}

	_, started := s.autoJoin.Trigger(s.ctx, viewID, snap, surface)
	return started, nil
}

// Shutdown closes every view.
func (s *InterviewService) Shutdown(ctx context.Context) {
	s.cancel()

	s.mu.Lock()
	views := make([]*View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.views = make(map[uuid.UUID]*View)
	s.mu.Unlock()

	for _, v := range views {
		if err := v.Controller.Close(ctx); err != nil {
			s.log.Warn().Err(err).Str("view_id", v.ID.String()).Msg("failed to close view on shutdown")
		}
	}
}
