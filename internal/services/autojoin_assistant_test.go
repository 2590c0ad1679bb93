package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitflash/interviewd/internal/models"
)

type scriptedSurface struct {
	calls   atomic.Int32
	succeed int32 // attempt number that succeeds, 0 for never
	panics  bool
}

func (s *scriptedSurface) AttemptAutoAdvance(ctx context.Context) error {
	n := s.calls.Add(1)
	if s.panics {
		panic("surface document not reachable")
	}
	if s.succeed != 0 && n >= s.succeed {
		return nil
	}
	return errors.New("join control not found")
}

func liveSession() models.InterviewSession {
	return models.InterviewSession{SessionID: "s1", Status: models.SessionStatusActive}
}

func awaitOutcome(t *testing.T, out <-chan AutoJoinOutcome) AutoJoinOutcome {
	t.Helper()
	select {
	case o := <-out:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no auto-join outcome")
		return AutoJoinOutcome{}
	}
}

func hints(events *eventRecorder) []string {
	var out []string
	for _, e := range events.ofType(models.EventAutoJoinHint) {
		out = append(out, e.Message)
	}
	return out
}

func TestAutoJoinSucceedsImmediately(t *testing.T) {
	events := &eventRecorder{}
	a := NewAutoJoinAssistant(DefaultAutoJoinConfig(), clockwork.NewFakeClock(), events, zerolog.Nop())
	surface := &scriptedSurface{succeed: 1}

	out, ok := a.Trigger(context.Background(), uuid.New(), liveSession(), surface)
	require.True(t, ok)

	o := awaitOutcome(t, out)
	assert.True(t, o.Joined)
	assert.Equal(t, 1, o.Attempts)
	assert.Equal(t, []string{models.AutoJoinHintTrying, models.AutoJoinHintJoined}, hints(events))
}

func TestAutoJoinRetriesOnDelays(t *testing.T) {
	clock := clockwork.NewFakeClock()
	events := &eventRecorder{}
	a := NewAutoJoinAssistant(DefaultAutoJoinConfig(), clock, events, zerolog.Nop())
	surface := &scriptedSurface{succeed: 3}

	out, ok := a.Trigger(context.Background(), uuid.New(), liveSession(), surface)
	require.True(t, ok)

	clock.BlockUntil(1)
	assert.Equal(t, int32(1), surface.calls.Load())
	clock.Advance(time.Second)

	clock.BlockUntil(1)
	assert.Equal(t, int32(2), surface.calls.Load())
	clock.Advance(2 * time.Second)

	o := awaitOutcome(t, out)
	assert.True(t, o.Joined)
	assert.Equal(t, 3, o.Attempts)
}

func TestAutoJoinGivesUpAfterBoundedAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	events := &eventRecorder{}
	a := NewAutoJoinAssistant(AutoJoinConfig{Delays: []time.Duration{time.Second, time.Second}}, clock, events, zerolog.Nop())
	surface := &scriptedSurface{}

	out, ok := a.Trigger(context.Background(), uuid.New(), liveSession(), surface)
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
	}

	o := awaitOutcome(t, out)
	assert.False(t, o.Joined)
	assert.Equal(t, 3, o.Attempts)
	assert.Equal(t, int32(3), surface.calls.Load())
	assert.Equal(t, []string{models.AutoJoinHintTrying, models.AutoJoinHintManual}, hints(events))
}

func TestAutoJoinToleratesPanicsAndMissingSurface(t *testing.T) {
	a := NewAutoJoinAssistant(AutoJoinConfig{Delays: []time.Duration{}}, clockwork.NewFakeClock(), nil, zerolog.Nop())

	out, ok := a.Trigger(context.Background(), uuid.New(), liveSession(), &scriptedSurface{panics: true})
	require.True(t, ok)
	assert.False(t, awaitOutcome(t, out).Joined)

	session := liveSession()
	session.SessionID = "s2"
	out, ok = a.Trigger(context.Background(), uuid.New(), session, nil)
	require.True(t, ok)
	assert.False(t, awaitOutcome(t, out).Joined)
}

func TestAutoJoinTriggersOncePerLiveSession(t *testing.T) {
	a := NewAutoJoinAssistant(AutoJoinConfig{Delays: []time.Duration{}}, clockwork.NewFakeClock(), nil, zerolog.Nop())
	surface := &scriptedSurface{succeed: 1}

	for _, status := range []models.SessionStatus{models.SessionStatusDraft, models.SessionStatusEnded} {
		_, ok := a.Trigger(context.Background(), uuid.New(), models.InterviewSession{SessionID: "s1", Status: status}, surface)
		assert.False(t, ok, status)
	}

	out, ok := a.Trigger(context.Background(), uuid.New(), liveSession(), surface)
	require.True(t, ok)
	awaitOutcome(t, out)

	_, ok = a.Trigger(context.Background(), uuid.New(), liveSession(), surface)
	assert.False(t, ok)
	assert.Equal(t, int32(1), surface.calls.Load())
}

func TestAutoJoinForgetsClosedViews(t *testing.T) {
	a := NewAutoJoinAssistant(AutoJoinConfig{Delays: []time.Duration{}}, clockwork.NewFakeClock(), nil, zerolog.Nop())
	surface := &scriptedSurface{succeed: 1}
	view, other := uuid.New(), uuid.New()

	out, ok := a.Trigger(context.Background(), view, liveSession(), surface)
	require.True(t, ok)
	awaitOutcome(t, out)

	a.Forget(other)
	_, ok = a.Trigger(context.Background(), other, liveSession(), surface)
	assert.False(t, ok)

	a.Forget(view)
	a.mu.Lock()
	assert.Empty(t, a.triggered)
	a.mu.Unlock()

	out, ok = a.Trigger(context.Background(), other, liveSession(), surface)
	require.True(t, ok)
	assert.True(t, awaitOutcome(t, out).Joined)
}

func TestAutoJoinStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := NewAutoJoinAssistant(DefaultAutoJoinConfig(), clock, nil, zerolog.Nop())
	surface := &scriptedSurface{}

	ctx, cancel := context.WithCancel(context.Background())
	out, ok := a.Trigger(ctx, uuid.New(), liveSession(), surface)
	require.True(t, ok)

	clock.BlockUntil(1)
	cancel()

	o := awaitOutcome(t, out)
	assert.False(t, o.Joined)
	assert.Equal(t, 1, o.Attempts)
}
