package capability

import (
	"testing"
	"time"
)

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	if cb.RecordFailure("ocr") {
		t.Error("should not trip after 1 failure")
	}
	if cb.RecordFailure("ocr") {
		t.Error("should not trip after 2 failures")
	}
	if cb.IsTripped("ocr") {
		t.Error("should not be tripped before threshold")
	}
	if !cb.RecordFailure("ocr") {
		t.Error("should trip after 3 consecutive failures")
	}
	if !cb.IsTripped("ocr") {
		t.Error("should be tripped after threshold reached")
	}
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	cb.RecordFailure("apply")
	cb.RecordSuccess("apply")
	cb.RecordFailure("apply")
	if cb.IsTripped("apply") {
		t.Error("success should reset the consecutive count")
	}
}

func TestCircuitBreaker_IndependentSources(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)

	cb.RecordFailure("ocr")
	cb.RecordFailure("apply")
	if cb.IsTripped("ocr") || cb.IsTripped("apply") {
		t.Error("sources must be tracked independently")
	}
}

func TestCircuitBreaker_HalfOpenAfterRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure("ocr")
	cb.RecordFailure("ocr")
	if !cb.IsTripped("ocr") {
		t.Fatal("expected open circuit")
	}

	now = now.Add(61 * time.Second)
	if cb.IsTripped("ocr") {
		t.Error("circuit should allow a trial after recovery window")
	}
	if !cb.RecordFailure("ocr") {
		t.Error("a failed trial should re-trip immediately")
	}
}

func TestCircuitBreaker_EmptySource(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	if cb.RecordFailure("") || cb.IsTripped("") {
		t.Error("empty source must never trip")
	}
}
