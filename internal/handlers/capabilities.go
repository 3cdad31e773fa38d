package handlers

import (
	"magabot/internal/capability"

	"github.com/gofiber/fiber/v2"
)

// CapabilitiesHandler lists the registered capabilities
type CapabilitiesHandler struct {
	registry *capability.Registry
}

// NewCapabilitiesHandler creates a new capabilities handler
func NewCapabilitiesHandler(registry *capability.Registry) *CapabilitiesHandler {
	return &CapabilitiesHandler{registry: registry}
}

// List returns every capability with its class, timeout and breaker state
func (h *CapabilitiesHandler) List(c *fiber.Ctx) error {
	list := h.registry.List()
	return c.JSON(fiber.Map{"capabilities": list, "count": len(list)})
}
