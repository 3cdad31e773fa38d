package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"magabot/internal/models"
)

var (
	// ErrUnavailable means no handler is registered for the capability kind
	ErrUnavailable = errors.New("capability unavailable")
	// ErrTimeout means the primary (and fallback, if any) exceeded the declared timeout
	ErrTimeout = errors.New("capability timeout")
	// ErrFailed means the handler returned an error that is not a timeout
	ErrFailed = errors.New("capability failed")
	// ErrCancelled means the caller abandoned the invocation
	ErrCancelled = errors.New("capability invocation cancelled")
)

// ErrorCategory classifies invocation errors
type ErrorCategory int

const (
	CategoryFailed ErrorCategory = iota
	CategoryUnavailable
	CategoryTimeout
	CategoryCancelled
)

// String returns a human-readable category name
func (c ErrorCategory) String() string {
	switch c {
	case CategoryUnavailable:
		return "unavailable"
	case CategoryTimeout:
		return "timeout"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

func (c ErrorCategory) sentinel() error {
	switch c {
	case CategoryUnavailable:
		return ErrUnavailable
	case CategoryTimeout:
		return ErrTimeout
	case CategoryCancelled:
		return ErrCancelled
	default:
		return ErrFailed
	}
}

// Error wraps an invocation failure with its classification
type Error struct {
	Kind     models.CapabilityKind
	Category ErrorCategory
	Message  string
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Category.sentinel())
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match the category sentinel
func (e *Error) Is(target error) bool {
	return target == e.Category.sentinel()
}

// Retryable reports whether the caller may usefully re-invoke later.
// Unavailable handlers stay unavailable until the registry changes.
func (e *Error) Retryable() bool {
	return e.Category == CategoryTimeout || e.Category == CategoryFailed
}

// CategoryOf returns the category of err, or CategoryFailed for foreign errors
func CategoryOf(err error) ErrorCategory {
	var capErr *Error
	if errors.As(err, &capErr) {
		return capErr.Category
	}
	return CategoryFailed
}

// isDeadline reports whether a handler error means it ran out of time
func isDeadline(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "Client.Timeout exceeded") ||
		strings.Contains(errStr, "i/o timeout")
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
