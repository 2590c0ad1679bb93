package websocket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestAutoJoin asks the connections of a view to activate the embedded
// call surface's join control and waits for the first answer.
func (h *Hub) RequestAutoJoin(ctx context.Context, viewID uuid.UUID, sessionID string) error {
	room := h.GetRoom(viewID)
	if room == nil || room.Size() == 0 {
		return ErrNoSurface
	}

	attemptID := uuid.NewString()
	result := make(chan AutoJoinResultPayload, 1)

	h.mu.Lock()
	h.pending[attemptID] = result
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, attemptID)
		h.mu.Unlock()
	}()

	msg, err := NewMessage(TypeAutoJoinRequest, AutoJoinRequestPayload{AttemptID: attemptID, SessionID: sessionID})
	if err != nil {
		return err
	}
	room.Broadcast(msg)

	select {
	case res := <-result:
		if !res.Success {
			return fmt.Errorf("%w: %s", ErrAutoJoinRejected, res.Reason)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CompleteAutoJoin routes a view's answer to the waiting request. Answers
// for unknown or finished attempts are dropped.
func (h *Hub) CompleteAutoJoin(res AutoJoinResultPayload) bool {
	h.mu.RLock()
	ch, ok := h.pending[res.AttemptID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case ch <- res:
		return true
	default:
		return false
	}
}

// SurfaceController drives the embedded surface of one view through the
// hosting page.
type SurfaceController struct {
	hub       *Hub
	viewID    uuid.UUID
	sessionID string
	timeout   time.Duration
}

func NewSurfaceController(hub *Hub, viewID uuid.UUID, sessionID string, timeout time.Duration) *SurfaceController {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &SurfaceController{hub: hub, viewID: viewID, sessionID: sessionID, timeout: timeout}
}

func (s *SurfaceController) AttemptAutoAdvance(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.hub.RequestAutoJoin(ctx, s.viewID, s.sessionID)
}
