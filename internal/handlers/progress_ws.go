package handlers

import (
	"log"
	"time"

	"magabot/internal/dispatch"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// ProgressHandler streams auto-pilot case updates over WebSocket
type ProgressHandler struct {
	hub *dispatch.Hub
}

// NewProgressHandler creates a new progress stream handler
func NewProgressHandler(hub *dispatch.Hub) *ProgressHandler {
	return &ProgressHandler{hub: hub}
}

// Upgrade rejects plain HTTP requests on the stream route
func (h *ProgressHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle subscribes to one case (/ws/cases/:id) or every case (/ws/cases)
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	caseID := c.Params("id")
	updates, unsubscribe := h.hub.Subscribe(caseID, 32)
	defer unsubscribe()

	log.Printf("🔌 [PROGRESS] Subscriber connected (case=%q)", caseID)
	defer log.Printf("🔌 [PROGRESS] Subscriber disconnected (case=%q)", caseID)

	// the client only sends control frames; a read error means it went away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			c.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.WriteJSON(u); err != nil {
				log.Printf("⚠️ [PROGRESS] Write failed: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
