// Package scheduler runs cancellable, strictly sequential periodic tasks.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is one run of a scheduled job. It receives the handle's context,
// which is cancelled as soon as the handle is stopped.
type Task func(ctx context.Context)

type Options struct {
	Interval time.Duration
	// Immediate runs the task once before waiting for the first interval.
	Immediate bool
	// MaxAttempts bounds the number of runs. Zero means unbounded.
	MaxAttempts int
	// OnExhausted is called when MaxAttempts runs completed without Stop.
	OnExhausted func()
}

// Handle controls one scheduled loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	runs int
}

// Every starts a loop that runs task on clock every opts.Interval until the
// handle is stopped, ctx is cancelled, or MaxAttempts is reached. A run never
// starts before the previous one returned.
func Every(ctx context.Context, clock clockwork.Clock, opts Options, task Task) *Handle {
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go h.loop(loopCtx, clock, opts, task)
	return h
}

func (h *Handle) loop(ctx context.Context, clock clockwork.Clock, opts Options, task Task) {
	defer close(h.done)
	defer h.cancel()

	for attempt := 0; opts.MaxAttempts <= 0 || attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 || !opts.Immediate {
			timer := clock.NewTimer(opts.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.Chan():
			}
		}

		if ctx.Err() != nil {
			return
		}

		task(ctx)

		h.mu.Lock()
		h.runs++
		h.mu.Unlock()
	}

	if ctx.Err() == nil && opts.OnExhausted != nil {
		opts.OnExhausted()
	}
}

// Stop cancels the loop. It is idempotent and does not wait, so a task may
// stop its own handle.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Running reports whether the loop is still scheduled.
func (h *Handle) Running() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Runs returns how many times the task has completed.
func (h *Handle) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs
}
