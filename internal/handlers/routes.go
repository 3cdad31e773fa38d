package handlers

import (
	"magabot/internal/middleware"
	"magabot/pkg/auth"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Routes groups every HTTP handler of the server
type Routes struct {
	Health       *HealthHandler
	Events       *EventsHandler
	Webhook      *TelegramWebhookHandler // nil in polling mode
	Cases        *CasesHandler
	Capabilities *CapabilitiesHandler
	Auth         *AuthHandler
	Progress     *ProgressHandler

	OperatorAuth *auth.OperatorAuth
	Production   bool
	RateLimits   *middleware.RateLimitConfig
}

// Register mounts the routes on app
func (r *Routes) Register(app *fiber.App) {
	limits := r.RateLimits
	if limits == nil {
		limits = middleware.DefaultRateLimitConfig()
	}

	app.Get("/health", r.Health.Handle)

	if r.Webhook != nil {
		app.Post("/telegram/webhook", middleware.IngressRateLimiter(limits), r.Webhook.Handle)
	}

	api := app.Group("/api/v1")
	api.Post("/auth/login", middleware.LoginRateLimiter(limits), r.Auth.Login)

	protected := api.Group("", middleware.OperatorAuth(r.OperatorAuth, r.Production), middleware.APIRateLimiter(limits))
	protected.Post("/events", r.Events.Handle)
	protected.Get("/capabilities", r.Capabilities.List)
	protected.Get("/cases/:id", r.Cases.Get)
	protected.Get("/cases/:id/export", r.Cases.Export)
	protected.Post("/cases/:id/:action", r.Cases.Control)
	protected.Get("/users/:userId/cases", r.Cases.ListForUser)

	ws := app.Group("/ws",
		middleware.WebSocketRateLimiter(limits),
		middleware.OperatorAuth(r.OperatorAuth, r.Production),
		r.Progress.Upgrade,
	)
	ws.Get("/cases", websocket.New(r.Progress.Handle))
	ws.Get("/cases/:id", websocket.New(r.Progress.Handle))
}
