package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithSession returns a logger with chat session fields attached.
// Use this for everything logged while dispatching one inbound event.
func WithSession(userID, chatID, eventID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"chat_id", chatID,
		"event_id", eventID,
	)
}

// WithCase returns a logger scoped to an automation case
func WithCase(logger *slog.Logger, caseID, stage string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		"case_id", caseID,
		"stage", stage,
	)
}

// WithCapability returns a logger scoped to one capability invocation
func WithCapability(logger *slog.Logger, kind string, attempt int) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		"capability", kind,
		"attempt", attempt,
	)
}
