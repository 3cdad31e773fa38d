package guard

import (
	"context"
	"sync"
	"time"

	"magabot/internal/models"
)

// MemoryBackend is an exact sliding log held in process memory
type MemoryBackend struct {
	mu     sync.Mutex
	users  map[string][]time.Time
	global map[models.LatencyClass][]time.Time
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		users:  make(map[string][]time.Time),
		global: make(map[models.LatencyClass][]time.Time),
	}
}

func userKey(userID string, class models.LatencyClass) string {
	return string(class) + ":" + userID
}

// Check implements Backend
func (m *MemoryBackend) Check(_ context.Context, userID string, class models.LatencyClass, limits Limits, now time.Time) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userKey(userID, class)
	userLog := expire(m.users[key], now, limits.Window)
	globalLog := expire(m.global[class], now, limits.Window)
	m.users[key] = userLog
	m.global[class] = globalLog

	if ceiling := limits.PerUser[class]; ceiling > 0 && len(userLog) >= ceiling {
		return Decision{Reason: ReasonPerUser, RetryAfter: userLog[len(userLog)-ceiling].Add(limits.Window).Sub(now)}, nil
	}
	if ceiling := limits.Global[class]; ceiling > 0 && len(globalLog) >= ceiling {
		return Decision{Reason: ReasonGlobal, RetryAfter: globalLog[len(globalLog)-ceiling].Add(limits.Window).Sub(now)}, nil
	}

	m.users[key] = append(userLog, now)
	m.global[class] = append(globalLog, now)
	return Decision{Allowed: true}, nil
}

// Prune implements Pruner and returns the number of user windows dropped
func (m *MemoryBackend) Prune(now time.Time, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, entries := range m.users {
		entries = expire(entries, now, window)
		if len(entries) == 0 {
			delete(m.users, key)
			dropped++
			continue
		}
		m.users[key] = entries
	}
	for class, entries := range m.global {
		m.global[class] = expire(entries, now, window)
	}
	return dropped
}

// expire drops entries at or before now-window. Entries are appended in time order.
func expire(entries []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0:0], entries[i:]...)
}
