package autopilot

import (
	"errors"
	"fmt"

	"magabot/internal/capability"
	"magabot/internal/models"
	"magabot/internal/negotiation"
)

var (
	// ErrStageFailure wraps every stage outcome that counts as a failed attempt
	ErrStageFailure = errors.New("stage failed")
	// ErrCaseNotFound is returned for events addressed to an unknown case
	ErrCaseNotFound = errors.New("case not found")
	// ErrNotRetryable is returned when retry is requested for a cancelled or finished case
	ErrNotRetryable = errors.New("case cannot be retried")
	// ErrQueueFull is returned when a case's event queue is saturated
	ErrQueueFull = errors.New("case queue full")
	// ErrShuttingDown is returned for events submitted after Shutdown
	ErrShuttingDown = errors.New("auto-pilot is shutting down")

	// errDailyCap pauses the Apply stage until the next day without using an attempt
	errDailyCap = errors.New("daily application limit reached")
)

// StageError is a failed stage attempt
type StageError struct {
	Stage  models.Stage
	Reason string
	Cause  error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s stage failed: %s: %v", e.Stage, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Reason)
}

func (e *StageError) Unwrap() error { return e.Cause }

// Is makes every StageError match ErrStageFailure
func (e *StageError) Is(target error) bool { return target == ErrStageFailure }

func stageFailure(stage models.Stage, reason string, cause error) error {
	return &StageError{Stage: stage, Reason: reason, Cause: cause}
}

// userReason renders a failure for the chat without internal detail
func userReason(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Cause == nil {
		return se.Reason
	}
	switch {
	case errors.Is(err, capability.ErrTimeout):
		return "the service did not respond in time"
	case errors.Is(err, capability.ErrUnavailable):
		return "the service is unavailable right now"
	case errors.Is(err, negotiation.ErrExhausted):
		return "no negotiation strategy produced an offer"
	case se != nil:
		return se.Reason
	}
	return "an unexpected error occurred"
}
