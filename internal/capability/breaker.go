package capability

import (
	"sync"
	"time"
)

// CircuitBreaker tracks consecutive failures per capability kind. After threshold
// consecutive failures the primary handler is skipped in favour of the fallback
// until the recovery window elapses; the next call after that is a trial.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails map[string]int
	trippedAt        map[string]time.Time
	threshold        int
	recovery         time.Duration
	now              func() time.Time
}

// NewCircuitBreaker creates a circuit breaker. Zero values fall back to 5 failures / 60s.
func NewCircuitBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recovery <= 0 {
		recovery = 60 * time.Second
	}
	return &CircuitBreaker{
		consecutiveFails: make(map[string]int),
		trippedAt:        make(map[string]time.Time),
		threshold:        threshold,
		recovery:         recovery,
		now:              time.Now,
	}
}

// RecordFailure records a failure for source. Returns true if the circuit is now open.
func (cb *CircuitBreaker) RecordFailure(source string) bool {
	if source == "" {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails[source]++
	if cb.consecutiveFails[source] >= cb.threshold {
		cb.trippedAt[source] = cb.now()
		return true
	}
	return false
}

// RecordSuccess closes the circuit for source
func (cb *CircuitBreaker) RecordSuccess(source string) {
	if source == "" {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.consecutiveFails, source)
	delete(cb.trippedAt, source)
}

// IsTripped returns true while the circuit for source is open
func (cb *CircuitBreaker) IsTripped(source string) bool {
	if source == "" {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	at, ok := cb.trippedAt[source]
	if !ok {
		return false
	}
	if cb.now().Sub(at) >= cb.recovery {
		// Half-open: allow one trial, a failure re-trips immediately
		delete(cb.trippedAt, source)
		cb.consecutiveFails[source] = cb.threshold - 1
		return false
	}
	return true
}
