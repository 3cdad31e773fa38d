package middleware

import (
	"log"

	"magabot/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// OperatorAuth verifies operator JWTs from the Authorization header or the
// token query parameter (WebSocket upgrades). A nil authenticator is only
// accepted outside production.
func OperatorAuth(a *auth.OperatorAuth, production bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a == nil {
			if production {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Authentication service unavailable",
				})
			}
			c.Locals("operator", "dev-operator")
			return c.Next()
		}

		var token string
		if header := c.Get("Authorization"); header != "" {
			if t, err := auth.ExtractToken(header); err == nil {
				token = t
			}
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		op, err := a.Verify(token)
		if err != nil {
			log.Printf("❌ [AUTH] Operator token rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("operator", op.Name)
		return c.Next()
	}
}
