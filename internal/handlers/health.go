package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	capabilities func() int
	runners      func() int
	sessions     func() int
	subscribers  func() int
	started      time.Time
}

// NewHealthHandler creates a new health handler. Nil counters report zero.
func NewHealthHandler(capabilities, runners, sessions, subscribers func() int) *HealthHandler {
	return &HealthHandler{
		capabilities: capabilities,
		runners:      runners,
		sessions:     sessions,
		subscribers:  subscribers,
		started:      time.Now(),
	}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "healthy",
		"capabilities":   count(h.capabilities),
		"active_cases":   count(h.runners),
		"sessions":       count(h.sessions),
		"subscribers":    count(h.subscribers),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func count(fn func() int) int {
	if fn == nil {
		return 0
	}
	return fn()
}
