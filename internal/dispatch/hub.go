package dispatch

import (
	"sync"
	"time"

	"magabot/internal/models"
)

// CaseUpdate is a case notice as streamed to progress subscribers
type CaseUpdate struct {
	CaseID string       `json:"case_id"`
	UserID string       `json:"user_id"`
	Stage  models.Stage `json:"stage"`
	Kind   string       `json:"kind"`
	Text   string       `json:"text"`
	At     time.Time    `json:"at"`
}

// Hub fans case updates out to subscribers. Slow subscribers miss updates
// rather than blocking the auto-pilot.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan CaseUpdate]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan CaseUpdate]struct{})}
}

// Subscribe streams updates of one case, or of every case when caseID is empty.
// The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe(caseID string, buffer int) (<-chan CaseUpdate, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan CaseUpdate, buffer)
	h.mu.Lock()
	if h.subs[caseID] == nil {
		h.subs[caseID] = make(map[chan CaseUpdate]struct{})
	}
	h.subs[caseID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[caseID], ch)
			if len(h.subs[caseID]) == 0 {
				delete(h.subs, caseID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers u to subscribers of its case and to catch-all subscribers
func (h *Hub) Publish(u CaseUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range []string{u.CaseID, ""} {
		for ch := range h.subs[key] {
			select {
			case ch <- u:
			default:
			}
		}
		if u.CaseID == "" {
			break
		}
	}
}

// Subscribers returns the number of open subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
