package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Shared is the single transport of the process. Only one owner can hold it
// at a time, and an owner's Leave completes before the next owner gets it.
type Shared struct {
	transport Transport
	slot      chan struct{}
	log       zerolog.Logger

	mu    sync.Mutex
	owner uuid.UUID
}

func NewShared(transport Transport, log zerolog.Logger) *Shared {
	return &Shared{
		transport: transport,
		slot:      make(chan struct{}, 1),
		log:       log.With().Str("component", "shared_transport").Logger(),
	}
}

// Transport gives direct access for call-independent operations such as
// device enumeration and the test tone.
func (s *Shared) Transport() Transport {
	return s.transport
}

// Acquire blocks until the transport is free or ctx is done.
func (s *Shared) Acquire(ctx context.Context, owner uuid.UUID) (*Lease, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire transport: %w", ctx.Err())
	}

	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()

	s.log.Debug().Str("owner", owner.String()).Msg("transport acquired")
	return &Lease{shared: s, owner: owner}, nil
}

// Owner returns the current lease holder.
func (s *Shared) Owner() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, s.owner != uuid.Nil
}

type Lease struct {
	shared *Shared
	owner  uuid.UUID
	once   sync.Once
	err    error
}

func (l *Lease) Transport() Transport {
	return l.shared.transport
}

func (l *Lease) Owner() uuid.UUID {
	return l.owner
}

// Release leaves the call and frees the transport. Safe to call repeatedly;
// the slot is freed even when Leave fails. The owner's participant handler
// still sees the departures Leave reports.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		s := l.shared
		l.err = s.transport.Leave(ctx)
		if l.err != nil {
			s.log.Warn().Err(l.err).Str("owner", l.owner.String()).Msg("leave failed while releasing transport")
		}
		s.transport.OnParticipantChange(nil)

		s.mu.Lock()
		s.owner = uuid.Nil
		s.mu.Unlock()
		<-s.slot

		s.log.Debug().Str("owner", l.owner.String()).Msg("transport released")
	})
	return l.err
}
