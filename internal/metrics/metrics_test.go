package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"magabot/internal/models"
)

func TestObserveTransition_ActiveCases(t *testing.T) {
	m := New(prometheus.NewRegistry())

	steps := []struct {
		from, to string
		want     float64
	}{
		{"", "discover", 1},
		{"discover", "apply", 1},
		{"apply", "failed", 0},
		{"failed", "apply", 1},
		{"apply", "interview", 1},
		{"", "discover", 2},
		{"discover", "failed", 1},
		{"close", "done", 0},
	}
	for _, s := range steps {
		m.ObserveTransition(s.from, s.to)
		if got := testutil.ToFloat64(m.ActiveCases); got != s.want {
			t.Errorf("after %s→%s active = %v, want %v", s.from, s.to, got, s.want)
		}
	}
	if got := testutil.ToFloat64(m.CaseTransitions.WithLabelValues("new", "discover")); got != 2 {
		t.Errorf("new→discover = %v, want 2", got)
	}
}

func TestObservers(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveInvocation(models.CapOCR, "success", 300*time.Millisecond)
	m.ObserveInvocation(models.CapOCR, "timeout", 2*time.Second)
	m.ObserveDenial("per-user")
	m.ObserveRun("hard_professional", "success")
	m.RecordInbound(models.EventVoice, "telegram")

	if got := testutil.ToFloat64(m.CapabilityInvocations.WithLabelValues("ocr", "timeout")); got != 1 {
		t.Errorf("ocr timeouts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GuardDenials.WithLabelValues("per-user")); got != 1 {
		t.Errorf("denials = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.NegotiationRuns.WithLabelValues("hard_professional", "success")); got != 1 {
		t.Errorf("runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InboundEvents.WithLabelValues("voice", "telegram")); got != 1 {
		t.Errorf("inbound = %v, want 1", got)
	}
	if GetMetrics() != m {
		t.Errorf("GetMetrics did not return the last instance")
	}
}

func TestRegisterGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RegisterGauges(func() int { return 3 }, func() int { return 2 }, nil)

	n, err := testutil.GatherAndCount(reg, "magabot_sessions_resident", "magabot_case_runners", "magabot_progress_subscribers")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if n != 2 {
		t.Errorf("gauge series = %d, want 2", n)
	}
}
