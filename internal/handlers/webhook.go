package handlers

import (
	"context"
	"crypto/subtle"
	"log"

	"magabot/internal/telegram"

	"github.com/gofiber/fiber/v2"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateQueue accepts Telegram updates for background handling. Updates
// from one user must be handled in the order they were queued.
type UpdateQueue interface {
	Submit(ctx context.Context, u telegram.Update)
}

// TelegramWebhookHandler receives updates pushed by Telegram. Updates are
// acknowledged at once and handled in the background so Telegram never
// retries a slow capability call.
type TelegramWebhookHandler struct {
	bot    UpdateQueue
	secret string
}

// NewTelegramWebhookHandler creates the webhook handler. An empty secret
// disables header validation.
func NewTelegramWebhookHandler(bot UpdateQueue, secret string) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{bot: bot, secret: secret}
}

// Handle validates the secret token and queues the update
func (h *TelegramWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.secret != "" {
		got := c.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Printf("🚫 [WEBHOOK] Rejected update with bad secret token from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid secret token",
			})
		}
	}

	var u telegram.Update
	if err := c.BodyParser(&u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid update",
		})
	}

	// The request context ends with this response, so the queue gets its own
	h.bot.Submit(context.Background(), u)
	return c.JSON(fiber.Map{"ok": true})
}
