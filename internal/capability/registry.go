package capability

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"magabot/internal/logging"
	"magabot/internal/models"
)

// DefaultTimeout applies when neither the invocation nor the spec declares one
const DefaultTimeout = 30 * time.Second

// Handler executes one capability against an external collaborator
type Handler func(ctx context.Context, payload models.Payload) (*models.Result, error)

// Spec is one registry entry
type Spec struct {
	Kind        models.CapabilityKind
	Class       models.LatencyClass
	Timeout     time.Duration
	Description string
	Primary     Handler
	Fallback    Handler // optional, tried once when the primary times out
}

// Observer receives one record per handler attempt
type Observer interface {
	ObserveInvocation(kind models.CapabilityKind, outcome string, duration time.Duration)
}

// Invoker is what the router, dispatcher and state machine depend on
type Invoker interface {
	Invoke(ctx context.Context, inv models.Invocation) (*models.Result, error)
	Class(kind models.CapabilityKind) models.LatencyClass
}

// Registry maps capability kinds to handlers
type Registry struct {
	specs    map[models.CapabilityKind]*Spec
	mutex    sync.RWMutex
	breaker  *CircuitBreaker
	observer Observer
}

// NewRegistry creates an empty registry
func NewRegistry(breaker *CircuitBreaker, observer Observer) *Registry {
	if breaker == nil {
		breaker = NewCircuitBreaker(0, 0)
	}
	return &Registry{
		specs:    make(map[models.CapabilityKind]*Spec),
		breaker:  breaker,
		observer: observer,
	}
}

// Register adds a capability handler to the registry
func (r *Registry) Register(spec Spec) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !spec.Kind.Valid() {
		return fmt.Errorf("unknown capability kind %q", spec.Kind)
	}
	if spec.Primary == nil {
		return fmt.Errorf("capability %s must have a primary handler", spec.Kind)
	}
	if _, exists := r.specs[spec.Kind]; exists {
		return fmt.Errorf("capability %s is already registered", spec.Kind)
	}
	if spec.Class == "" {
		spec.Class = models.ClassFast
	}

	r.specs[spec.Kind] = &spec
	return nil
}

// SetTimeout updates the declared timeout of a registered kind
func (r *Registry) SetTimeout(kind models.CapabilityKind, timeout time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if spec, ok := r.specs[kind]; ok && timeout > 0 {
		spec.Timeout = timeout
	}
}

// Get retrieves a spec by kind
func (r *Registry) Get(kind models.CapabilityKind) (Spec, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	spec, exists := r.specs[kind]
	if !exists {
		return Spec{}, false
	}
	return *spec, true
}

// Class returns the declared latency class, defaulting to slow for unknown kinds
func (r *Registry) Class(kind models.CapabilityKind) models.LatencyClass {
	if spec, ok := r.Get(kind); ok {
		return spec.Class
	}
	return models.ClassSlow
}

// Count returns the number of registered capabilities
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.specs)
}

// Info is a JSON-serializable view of a registry entry
type Info struct {
	Kind        models.CapabilityKind `json:"kind"`
	Class       models.LatencyClass   `json:"class"`
	Timeout     string                `json:"timeout"`
	Description string                `json:"description,omitempty"`
	HasFallback bool                  `json:"has_fallback"`
	Tripped     bool                  `json:"tripped"`
}

// List returns all registered capabilities sorted by kind
func (r *Registry) List() []Info {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]Info, 0, len(r.specs))
	for _, spec := range r.specs {
		result = append(result, Info{
			Kind:        spec.Kind,
			Class:       spec.Class,
			Timeout:     effectiveTimeout(0, spec.Timeout).String(),
			Description: spec.Description,
			HasFallback: spec.Fallback != nil,
			Tripped:     r.breaker.IsTripped(string(spec.Kind)),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// Invoke runs the handler for inv.Kind under its timeout. On timeout it retries
// exactly once against the fallback handler with the same payload. It never
// retries more than once; callers own any further retry budget.
func (r *Registry) Invoke(ctx context.Context, inv models.Invocation) (*models.Result, error) {
	spec, ok := r.Get(inv.Kind)
	if !ok {
		r.observe(inv.Kind, "unavailable", 0)
		return nil, &Error{Kind: inv.Kind, Category: CategoryUnavailable, Message: "no handler registered"}
	}

	timeout := effectiveTimeout(inv.Timeout, spec.Timeout)
	source := string(spec.Kind)
	attempts := 0

	// An open circuit skips straight to the fallback when there is one
	skipPrimary := spec.Fallback != nil && r.breaker.IsTripped(source)
	if skipPrimary {
		log.Printf("⚡ [CAPABILITY] %s circuit open, using fallback", spec.Kind)
	} else {
		attempts++
		result, err := r.attempt(ctx, spec.Kind, spec.Primary, inv.Payload, timeout, attempts)
		if err == nil {
			r.breaker.RecordSuccess(source)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, &Error{Kind: spec.Kind, Category: CategoryCancelled, Attempts: attempts, Cause: ctx.Err()}
		}
		if r.breaker.RecordFailure(source) {
			log.Printf("⚠️  [CAPABILITY] %s circuit tripped after repeated failures", spec.Kind)
		}
		if !isDeadline(err) {
			return nil, &Error{Kind: spec.Kind, Category: CategoryFailed, Message: truncateString(err.Error(), 200), Attempts: attempts, Cause: err}
		}
		if spec.Fallback == nil {
			return nil, &Error{Kind: spec.Kind, Category: CategoryTimeout, Message: fmt.Sprintf("no response within %s", timeout), Attempts: attempts, Cause: err}
		}
		log.Printf("🔄 [CAPABILITY] %s timed out after %s, retrying once on fallback", spec.Kind, timeout)
	}

	attempts++
	result, err := r.attempt(ctx, spec.Kind, spec.Fallback, inv.Payload, timeout, attempts)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, &Error{Kind: spec.Kind, Category: CategoryCancelled, Attempts: attempts, Cause: ctx.Err()}
	}
	if isDeadline(err) {
		return nil, &Error{Kind: spec.Kind, Category: CategoryTimeout, Message: fmt.Sprintf("primary and fallback gave no response within %s", timeout), Attempts: attempts, Cause: err}
	}
	return nil, &Error{Kind: spec.Kind, Category: CategoryFailed, Message: truncateString(err.Error(), 200), Attempts: attempts, Cause: err}
}

type attemptResult struct {
	result *models.Result
	err    error
}

// attempt runs one handler call. The handler runs in its own goroutine so a
// handler that ignores its context still cannot hold the caller past the timeout.
func (r *Registry) attempt(ctx context.Context, kind models.CapabilityKind, h Handler, payload models.Payload, timeout time.Duration, n int) (*models.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("🔥 [CAPABILITY] PANIC in %s handler (attempt %d): %v\n%s", kind, n, rec, debug.Stack())
				done <- attemptResult{err: fmt.Errorf("handler panic: %v", rec)}
			}
		}()
		res, err := h(callCtx, payload)
		done <- attemptResult{result: res, err: err}
	}()

	var out attemptResult
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = attemptResult{err: callCtx.Err()}
	}

	if out.err == nil && out.result == nil {
		out.result = &models.Result{}
	}

	outcome := "success"
	switch {
	case out.err == nil:
	case ctx.Err() != nil:
		outcome = "cancelled"
	case isDeadline(out.err):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	elapsed := time.Since(start)
	r.observe(kind, outcome, elapsed)
	if out.err != nil {
		logging.WithCapability(nil, string(kind), n).Debug("capability attempt failed",
			"outcome", outcome, "elapsed_ms", elapsed.Milliseconds(), "error", out.err)
	}
	return out.result, out.err
}

func (r *Registry) observe(kind models.CapabilityKind, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveInvocation(kind, outcome, d)
	}
}

func effectiveTimeout(invocation, declared time.Duration) time.Duration {
	if invocation > 0 {
		return invocation
	}
	if declared > 0 {
		return declared
	}
	return DefaultTimeout
}
