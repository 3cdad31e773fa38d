package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"magabot/internal/dispatch"
	"magabot/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Dispatcher handles one normalized inbound event
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *models.InboundEvent) ([]dispatch.Reply, error)
}

// EventRequest is the body of POST /api/v1/events. Media is base64 in JSON.
type EventRequest struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	ChatID      string           `json:"chat_id"`
	Kind        models.EventKind `json:"kind"`
	Text        string           `json:"text"`
	Audio       []byte           `json:"audio,omitempty"`
	AudioFormat string           `json:"audio_format,omitempty"`
	Image       []byte           `json:"image,omitempty"`
	MimeType    string           `json:"mime_type,omitempty"`
	FileName    string           `json:"file_name,omitempty"`
}

// EventsHandler injects events from non-Telegram transports and tests
type EventsHandler struct {
	dispatcher Dispatcher
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(d Dispatcher) *EventsHandler {
	return &EventsHandler{dispatcher: d}
}

// Handle dispatches one event and returns the replies it produced
func (h *EventsHandler) Handle(c *fiber.Ctx) error {
	var req EventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.ID == "" || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id and user_id are required",
		})
	}

	ev := &models.InboundEvent{
		ID:          req.ID,
		UserID:      req.UserID,
		ChatID:      req.ChatID,
		Kind:        req.Kind,
		Text:        strings.TrimSpace(req.Text),
		Audio:       req.Audio,
		AudioFormat: req.AudioFormat,
		Image:       req.Image,
		MimeType:    req.MimeType,
		FileName:    req.FileName,
		ReceivedAt:  time.Now(),
	}
	if ev.ChatID == "" {
		ev.ChatID = ev.UserID
	}
	if ev.Kind == "" {
		switch {
		case len(ev.Audio) > 0:
			ev.Kind = models.EventVoice
		case strings.HasPrefix(ev.Text, "/"):
			ev.Kind = models.EventCommand
		default:
			ev.Kind = models.EventText
		}
	}

	replies, err := h.dispatcher.Dispatch(c.UserContext(), ev)
	if err != nil {
		log.Printf("❌ [EVENTS] Dispatch failed for event %s: %v", ev.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to handle event",
			"replies": replies,
		})
	}
	if replies == nil {
		replies = []dispatch.Reply{}
	}
	return c.JSON(fiber.Map{"replies": replies})
}
