package guard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"magabot/internal/config"
	"magabot/internal/models"
)

// ErrThrottled is returned (wrapped) when a request exceeds a ceiling
var ErrThrottled = errors.New("throttled")

// Reason names the ceiling that denied a request
type Reason string

const (
	ReasonPerUser Reason = "per-user"
	ReasonGlobal  Reason = "global"
)

// Decision is the result of a guard check
type Decision struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// Err returns nil for allowed decisions and a wrapped ErrThrottled otherwise
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w (%s, retry after %s)", ErrThrottled, d.Reason, d.RetryAfter.Round(time.Second))
}

// Limits are the sliding-window ceilings per latency class. A missing or
// non-positive ceiling means the class is unlimited on that dimension.
type Limits struct {
	Window  time.Duration
	PerUser map[models.LatencyClass]int
	Global  map[models.LatencyClass]int
}

// LimitsFromConfig converts the assistant guard section
func LimitsFromConfig(cfg config.GuardConfig) Limits {
	l := Limits{
		Window:  cfg.Window,
		PerUser: make(map[models.LatencyClass]int, len(cfg.PerUser)),
		Global:  make(map[models.LatencyClass]int, len(cfg.Global)),
	}
	for class, n := range cfg.PerUser {
		l.PerUser[models.LatencyClass(class)] = n
	}
	for class, n := range cfg.Global {
		l.Global[models.LatencyClass(class)] = n
	}
	return l
}

// Backend stores the sliding windows. Check must be atomic across the
// per-user and global windows and must not count denied requests.
type Backend interface {
	Check(ctx context.Context, userID string, class models.LatencyClass, limits Limits, now time.Time) (Decision, error)
}

// Pruner is implemented by backends that hold windows in process memory
type Pruner interface {
	Prune(now time.Time, window time.Duration) int
}

// DenialObserver receives one call per denied request
type DenialObserver interface {
	ObserveDenial(reason string)
}

// Guard enforces per-user and global throughput ceilings
type Guard struct {
	backend  Backend
	limits   atomic.Pointer[Limits]
	observer DenialObserver
	now      func() time.Time
}

// New creates a guard over a backend
func New(backend Backend, limits Limits, observer DenialObserver) *Guard {
	g := &Guard{backend: backend, observer: observer, now: time.Now}
	g.SetLimits(limits)
	return g
}

// SetLimits swaps the ceilings. Existing window contents are kept.
func (g *Guard) SetLimits(limits Limits) {
	if limits.Window <= 0 {
		limits.Window = time.Minute
	}
	g.limits.Store(&limits)
}

// Limits returns the active ceilings
func (g *Guard) Limits() Limits {
	return *g.limits.Load()
}

// Check counts one request for (userID, class) if it fits both windows.
// Backend errors fail open so a Redis outage does not take the bot down.
func (g *Guard) Check(ctx context.Context, userID string, class models.LatencyClass) Decision {
	if class == "" {
		class = models.ClassFast
	}
	decision, err := g.backend.Check(ctx, userID, class, g.Limits(), g.now())
	if err != nil {
		log.Printf("⚠️ [GUARD] Backend check failed for user %s (%s), allowing: %v", userID, class, err)
		return Decision{Allowed: true}
	}
	if !decision.Allowed {
		if g.observer != nil {
			g.observer.ObserveDenial(string(decision.Reason))
		}
		log.Printf("🚫 [GUARD] Denied user %s (%s): %s, retry after %s", userID, class, decision.Reason, decision.RetryAfter.Round(time.Millisecond))
	}
	return decision
}

// Prune drops expired window entries from in-memory backends
func (g *Guard) Prune() int {
	p, ok := g.backend.(Pruner)
	if !ok {
		return 0
	}
	return p.Prune(g.now(), g.Limits().Window)
}
