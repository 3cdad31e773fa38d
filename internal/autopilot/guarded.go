package autopilot

import (
	"context"
	"fmt"
	"sync"

	"magabot/internal/capability"
	"magabot/internal/guard"
	"magabot/internal/models"
)

// guardedInvoker charges the guard for every invocation a stage issues,
// negotiation rounds included. The first deny is kept so the stage can be
// paused instead of failed.
type guardedInvoker struct {
	next  capability.Invoker
	guard Guard

	mu     sync.Mutex
	denied *guard.Decision
}

func newGuardedInvoker(next capability.Invoker, g Guard) *guardedInvoker {
	return &guardedInvoker{next: next, guard: g}
}

func (g *guardedInvoker) Class(kind models.CapabilityKind) models.LatencyClass {
	if g.next == nil {
		return models.ClassSlow
	}
	return g.next.Class(kind)
}

func (g *guardedInvoker) Invoke(ctx context.Context, inv models.Invocation) (*models.Result, error) {
	if g.next == nil {
		return nil, fmt.Errorf("no capability invoker configured")
	}
	if g.guard != nil {
		if d := g.guard.Check(ctx, inv.UserID, g.next.Class(inv.Kind)); !d.Allowed {
			g.mu.Lock()
			if g.denied == nil {
				g.denied = &d
			}
			g.mu.Unlock()
			return nil, d.Err()
		}
	}
	return g.next.Invoke(ctx, inv)
}

// throttled returns the first deny seen, if any
func (g *guardedInvoker) throttled() (guard.Decision, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.denied == nil {
		return guard.Decision{}, false
	}
	return *g.denied, true
}
