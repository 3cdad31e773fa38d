package handlers

import (
	"errors"
	"log"
	"time"

	"magabot/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler issues operator tokens
type AuthHandler struct {
	auth *auth.OperatorAuth
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(a *auth.OperatorAuth) *AuthHandler {
	return &AuthHandler{auth: a}
}

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Login exchanges the operator password for a token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	if h.auth == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Authentication service unavailable",
		})
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "password is required",
		})
	}

	token, expires, err := h.auth.Login(req.Name, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Printf("🚫 [AUTH] Failed operator login from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}
		log.Printf("❌ [AUTH] Login error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	log.Printf("✅ [AUTH] Operator %q logged in", req.Name)
	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
}
