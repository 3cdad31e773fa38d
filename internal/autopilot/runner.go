package autopilot

import (
	"context"
	"errors"
	"sync"
	"time"

	"magabot/internal/models"
)

var errRunnerClosed = errors.New("case runner closed")

// runner owns the event queue of one case. proc serializes event handling
// between the queue goroutine and synchronous Process calls.
type runner struct {
	caseID string
	queue  chan models.CaseEvent
	proc   sync.Mutex
	now    func() time.Time

	mu            sync.Mutex
	gen           uint64
	cancelStage   context.CancelFunc
	cancelPending bool
	busy          bool
	closed        bool
	lastActive    time.Time
}

func newRunner(caseID string, size int, now func() time.Time) *runner {
	return &runner{
		caseID:     caseID,
		queue:      make(chan models.CaseEvent, size),
		now:        now,
		lastActive: now(),
	}
}

func (r *runner) enqueue(ev models.CaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRunnerClosed
	}
	select {
	case r.queue <- ev:
		r.lastActive = r.now()
		return nil
	default:
		return ErrQueueFull
	}
}

// interrupt bumps the generation and cancels the in-flight stage. No stage
// starts until the cancel event has been handled.
func (r *runner) interrupt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cancelPending = true
	if r.cancelStage != nil {
		r.cancelStage()
	}
}

func (r *runner) clearCancel() {
	r.mu.Lock()
	r.cancelPending = false
	r.mu.Unlock()
}

// beginStage returns the stage context and its generation, or false while a cancel is pending
func (r *runner) beginStage(parent context.Context) (context.Context, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelPending {
		return nil, 0, false
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancelStage = cancel
	return ctx, r.gen, true
}

// endStage releases the stage context and reports whether gen is still current
func (r *runner) endStage(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelStage != nil {
		r.cancelStage()
		r.cancelStage = nil
	}
	return r.gen == gen
}

func (r *runner) setBusy(busy bool) {
	r.mu.Lock()
	r.busy = busy
	r.lastActive = r.now()
	r.mu.Unlock()
}

// pending reports whether the runner is handling or holding events
func (r *runner) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy || len(r.queue) > 0
}

func (r *runner) closeIfIdle(now time.Time, idle time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.busy || len(r.queue) > 0 || now.Sub(r.lastActive) < idle {
		return false
	}
	r.closed = true
	close(r.queue)
	return true
}

func (r *runner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.queue)
	if r.cancelStage != nil {
		r.cancelStage()
	}
}
