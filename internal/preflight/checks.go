package preflight

import (
	"fmt"
	"log"
	"net/url"

	"magabot/internal/config"
	"magabot/internal/crypto"
	"magabot/internal/jobs"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker validates the deployment settings before the server starts
type Checker struct {
	cfg       *config.Config
	assistant *config.AssistantConfig
}

// NewChecker creates a new preflight checker
func NewChecker(cfg *config.Config, assistant *config.AssistantConfig) *Checker {
	return &Checker{cfg: cfg, assistant: assistant}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkTelegram(),
		c.checkStorage(),
		c.checkEncryption(),
		c.checkOperatorAuth(),
		c.checkLLM(),
		c.checkResumeCron(),
		c.checkGuardBackend(),
	}

	passed, failed, warnings := 0, 0, 0
	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)
	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func pass(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "pass", Message: msg}
}

func warn(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: "warning", Message: msg}
}

func fail(name, msg string, err error) CheckResult {
	return CheckResult{Name: name, Status: "fail", Message: msg, Error: err}
}

func (c *Checker) checkTelegram() CheckResult {
	const name = "Telegram"
	if c.cfg.TelegramToken == "" {
		return warn(name, "TELEGRAM_BOT_TOKEN not set, only the HTTP event API will accept messages")
	}
	switch c.cfg.TelegramMode {
	case "polling":
		return pass(name, "long polling")
	case "webhook":
		u, err := url.Parse(c.cfg.TelegramWebhookURL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fail(name, "webhook mode needs an https TELEGRAM_WEBHOOK_URL", err)
		}
		if c.cfg.TelegramWebhookSecret == "" {
			return warn(name, "TELEGRAM_WEBHOOK_SECRET not set, webhook requests are not authenticated")
		}
		return pass(name, "webhook at "+u.Host)
	}
	return fail(name, fmt.Sprintf("unknown TELEGRAM_MODE %q", c.cfg.TelegramMode), nil)
}

func (c *Checker) checkStorage() CheckResult {
	const name = "Storage"
	switch c.cfg.StoreBackend {
	case "memory":
		if c.cfg.IsProduction() {
			return warn(name, "memory store loses every case on restart")
		}
		return pass(name, "memory store")
	case "sqlite":
		if c.cfg.SQLitePath == "" {
			return fail(name, "SQLITE_PATH is empty", nil)
		}
		return pass(name, "sqlite at "+c.cfg.SQLitePath)
	case "mysql":
		if c.cfg.DatabaseURL == "" {
			return fail(name, "DATABASE_URL is required for the mysql store", nil)
		}
		return pass(name, "mysql")
	case "mongo":
		if c.cfg.MongoURI == "" {
			return fail(name, "MONGODB_URI is required for the mongo store", nil)
		}
		return pass(name, "mongodb")
	}
	return fail(name, fmt.Sprintf("unknown STORE_BACKEND %q", c.cfg.StoreBackend), nil)
}

func (c *Checker) checkEncryption() CheckResult {
	const name = "Record Encryption"
	if c.cfg.EncryptionKey == "" {
		if c.cfg.StoreBackend != "memory" {
			return warn(name, "ENCRYPTION_MASTER_KEY not set, case records are stored in plain text")
		}
		return pass(name, "not needed for the memory store")
	}
	if _, err := crypto.NewRecordCipher(c.cfg.EncryptionKey); err != nil {
		return fail(name, "ENCRYPTION_MASTER_KEY is invalid", err)
	}
	return pass(name, "AES-256-GCM")
}

func (c *Checker) checkOperatorAuth() CheckResult {
	const name = "Operator Auth"
	if c.cfg.JWTSecret == "" {
		if c.cfg.IsProduction() {
			return fail(name, "JWT_SECRET is required in production", nil)
		}
		return warn(name, "JWT_SECRET not set, the operator API is open")
	}
	if c.cfg.OperatorPassword == "" {
		return warn(name, "OPERATOR_PASSWORD_HASH not set, login is disabled")
	}
	return pass(name, "password login enabled")
}

func (c *Checker) checkLLM() CheckResult {
	const name = "Language Model"
	if c.cfg.LLMAPIKey == "" && c.cfg.LLMFallbackAPIKey == "" {
		return warn(name, "no LLM provider configured, answers and briefs use offline templates")
	}
	if c.cfg.LLMFallbackAPIKey == "" {
		return pass(name, c.cfg.LLMModel+" (no fallback provider)")
	}
	return pass(name, c.cfg.LLMModel+" with fallback "+c.cfg.LLMFallbackModel)
}

func (c *Checker) checkResumeCron() CheckResult {
	const name = "Resume Schedule"
	expr := c.assistant.AutoPilot.ResumeCron
	if expr == "" {
		return warn(name, "autopilot.resume_cron empty, stalled cases are not resumed automatically")
	}
	if err := jobs.ValidateCron(expr); err != nil {
		return fail(name, "autopilot.resume_cron is invalid", err)
	}
	return pass(name, expr)
}

func (c *Checker) checkGuardBackend() CheckResult {
	const name = "Rate Guard"
	if c.assistant.Guard.Backend == "redis" && c.cfg.RedisURL == "" {
		return warn(name, "guard.backend is redis but REDIS_URL is not set, falling back to memory")
	}
	return pass(name, c.assistant.Guard.Backend+" backend")
}
