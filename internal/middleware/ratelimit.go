package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds HTTP rate limiting settings. Chat traffic is governed
// by the guard package; these limits protect the HTTP surface itself.
type RateLimitConfig struct {
	// Operator API (per operator, falling back to IP)
	APIMax        int
	APIExpiration time.Duration

	// Login attempts (per IP)
	LoginMax        int
	LoginExpiration time.Duration

	// Inbound webhooks and events (per IP)
	IngressMax        int
	IngressExpiration time.Duration

	// Progress stream connections (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		APIMax:        120,
		APIExpiration: 1 * time.Minute,

		LoginMax:        5,
		LoginExpiration: 1 * time.Minute,

		// Telegram delivers from a small set of IPs
		IngressMax:        600,
		IngressExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads overrides from the environment
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if n := positiveEnv("RATE_LIMIT_API"); n > 0 {
		config.APIMax = n
	}
	if n := positiveEnv("RATE_LIMIT_LOGIN"); n > 0 {
		config.LoginMax = n
	}
	if n := positiveEnv("RATE_LIMIT_INGRESS"); n > 0 {
		config.IngressMax = n
	}
	if n := positiveEnv("RATE_LIMIT_WEBSOCKET"); n > 0 {
		config.WebSocketMax = n
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.APIMax = 1000
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}
	return config
}

func positiveEnv(key string) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func tooMany(message string, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       message,
			"retry_after": int(window.Seconds()),
		})
	}
}

// APIRateLimiter limits operator API calls
func APIRateLimiter(config *RateLimitConfig) fiber.Handler {
	reached := tooMany("Too many requests. Please wait before trying again.", config.APIExpiration)
	return limiter.New(limiter.Config{
		Max:        config.APIMax,
		Expiration: config.APIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if op, ok := c.Locals("operator").(string); ok && op != "" {
				return "api:" + op
			}
			return "api-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] API limit reached for %v on %s", c.Locals("operator"), c.Path())
			return reached(c)
		},
	})
}

// LoginRateLimiter slows down password guessing
func LoginRateLimiter(config *RateLimitConfig) fiber.Handler {
	reached := tooMany("Too many login attempts. Please wait.", config.LoginExpiration)
	return limiter.New(limiter.Config{
		Max:        config.LoginMax,
		Expiration: config.LoginExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "login:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Login limit reached for IP: %s", c.IP())
			return reached(c)
		},
		SkipSuccessfulRequests: true,
	})
}

// IngressRateLimiter limits webhook and event ingestion
func IngressRateLimiter(config *RateLimitConfig) fiber.Handler {
	reached := tooMany("Too many requests. Please slow down.", config.IngressExpiration)
	return limiter.New(limiter.Config{
		Max:        config.IngressMax,
		Expiration: config.IngressExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ingress:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Ingress limit reached for IP: %s", c.IP())
			return reached(c)
		},
	})
}

// WebSocketRateLimiter limits progress stream connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	reached := tooMany("Too many connection attempts. Please wait before reconnecting.", config.WebSocketExpiration)
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return reached(c)
		},
	})
}
