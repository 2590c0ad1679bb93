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
)

// SurfaceController drives an embedded call surface the server cannot
// script directly. Implementations may always fail.
type SurfaceController interface {
	AttemptAutoAdvance(ctx context.Context) error
}

type AutoJoinConfig struct {
	// Delays between retries after the immediate attempt.
	Delays []time.Duration
}

func DefaultAutoJoinConfig() AutoJoinConfig {
	return AutoJoinConfig{Delays: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}}
}

type AutoJoinOutcome struct {
	Joined   bool
	Attempts int
}

// AutoJoinAssistant tries, once per session, to press the embedded
// surface's join control. Its results are hints only.
type AutoJoinAssistant struct {
	clock    clockwork.Clock
	notifier Notifier
	log      zerolog.Logger
	delays   []time.Duration

	mu sync.Mutex
	// triggered maps a session to the view that triggered it.
	triggered map[string]uuid.UUID
}

func NewAutoJoinAssistant(cfg AutoJoinConfig, clock clockwork.Clock, notifier Notifier, log zerolog.Logger) *AutoJoinAssistant {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if cfg.Delays == nil {
		cfg = DefaultAutoJoinConfig()
	}
	return &AutoJoinAssistant{
		clock:     clock,
		notifier:  notifier,
		log:       log.With().Str("component", "autojoin").Logger(),
		delays:    cfg.Delays,
		triggered: make(map[string]uuid.UUID),
	}
}

// Trigger starts the attempts in the background. It returns false without
// doing anything when the session is draft or ended, or was already
// triggered. The outcome channel receives one value and is closed.
func (a *AutoJoinAssistant) Trigger(ctx context.Context, viewID uuid.UUID, session models.InterviewSession, surface SurfaceController) (<-chan AutoJoinOutcome, bool) {
	if session.SessionID == "" || session.Status == models.SessionStatusDraft || session.Status == models.SessionStatusEnded {
		return nil, false
	}

	a.mu.Lock()
	if _, done := a.triggered[session.SessionID]; done {
		a.mu.Unlock()
		return nil, false
	}
	a.triggered[session.SessionID] = viewID
	a.mu.Unlock()

	out := make(chan AutoJoinOutcome, 1)
	go func() {
		defer close(out)
		out <- a.run(ctx, viewID, surface)
	}()
	return out, true
}

// Forget drops the markers of sessions triggered by viewID, once the view
// is closed.
func (a *AutoJoinAssistant) Forget(viewID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sessionID, owner := range a.triggered {
		if owner == viewID {
			delete(a.triggered, sessionID)
		}
	}
}

func (a *AutoJoinAssistant) run(ctx context.Context, viewID uuid.UUID, surface SurfaceController) AutoJoinOutcome {
	log := a.log.With().Str("view_id", viewID.String()).Logger()
	a.hint(viewID, models.AutoJoinHintTrying)

	var outcome AutoJoinOutcome
	for i := 0; i <= len(a.delays); i++ {
		if i > 0 {
			timer := a.clock.NewTimer(a.delays[i-1])
			select {
			case <-ctx.Done():
				timer.Stop()
				return outcome
			case <-timer.Chan():
			}
		}

		outcome.Attempts++
		err := a.attempt(ctx, surface)
		if err == nil {
			outcome.Joined = true
			a.hint(viewID, models.AutoJoinHintJoined)
			return outcome
		}
		log.Debug().Err(err).Int("attempt", outcome.Attempts).Msg("auto-join attempt failed")
	}

	a.hint(viewID, models.AutoJoinHintManual)
	return outcome
}

func (a *AutoJoinAssistant) attempt(ctx context.Context, surface SurfaceController) (err error) {
	if surface == nil {
		return errors.New("no surface controller")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("surface controller panicked: %v", r)
		}
	}()
	return surface.AttemptAutoAdvance(ctx)
}

func (a *AutoJoinAssistant) hint(viewID uuid.UUID, hint string) {
	a.notifier.Publish(models.SessionEvent{
		Type:      models.EventAutoJoinHint,
		ViewID:    viewID,
		Message:   hint,
		Data:      map[string]any{"hint": hint},
		Timestamp: a.clock.Now(),
	})
}
