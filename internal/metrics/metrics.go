package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"magabot/internal/models"
)

// Metrics holds the assistant's Prometheus metrics. It implements the
// observer interfaces of the capability registry, the guard, the
// negotiation engine and the auto-pilot.
type Metrics struct {
	reg prometheus.Registerer

	// Capability metrics
	CapabilityInvocations *prometheus.CounterVec
	CapabilityDuration    *prometheus.HistogramVec

	// Guard metrics
	GuardDenials *prometheus.CounterVec

	// Auto-pilot metrics
	CaseTransitions *prometheus.CounterVec
	ActiveCases     prometheus.Gauge

	// Negotiation metrics
	NegotiationRuns *prometheus.CounterVec

	// Inbound events by kind and transport
	InboundEvents *prometheus.CounterVec
}

var globalMetrics *Metrics

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		reg: reg,

		CapabilityInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magabot_capability_invocations_total",
			Help: "Capability handler attempts by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: success, timeout, failed, cancelled, fallback_*

		// up to 2 minutes for slow browser and LLM handlers
		CapabilityDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "magabot_capability_duration_seconds",
			Help:    "Capability handler latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),

		GuardDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magabot_guard_denials_total",
			Help: "Requests denied by the rate guard",
		}, []string{"reason"}),

		CaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magabot_case_transitions_total",
			Help: "Auto-pilot stage transitions",
		}, []string{"from", "to"}),

		ActiveCases: factory.NewGauge(prometheus.GaugeOpts{
			Name: "magabot_active_cases",
			Help: "Auto-pilot cases neither done nor failed, as seen by this instance",
		}),

		NegotiationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magabot_negotiation_runs_total",
			Help: "Negotiation strategy runs by strategy and result",
		}, []string{"strategy", "result"}),

		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "magabot_inbound_events_total",
			Help: "Inbound user events by kind and transport",
		}, []string{"kind", "transport"}),
	}
	globalMetrics = m
	return m
}

// GetMetrics returns the last metrics instance created by New
func GetMetrics() *Metrics {
	return globalMetrics
}

// RegisterGauges exposes live counts read at scrape time
func (m *Metrics) RegisterGauges(sessions, runners, subscribers func() int) {
	gauge := func(name, help string, fn func() int) {
		if fn == nil {
			return
		}
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(fn())
		}))
	}
	gauge("magabot_sessions_resident", "Sessions held in memory", sessions)
	gauge("magabot_case_runners", "Live per-case event runners", runners)
	gauge("magabot_progress_subscribers", "Open progress stream subscriptions", subscribers)
}

// ObserveInvocation implements capability.Observer
func (m *Metrics) ObserveInvocation(kind models.CapabilityKind, outcome string, d time.Duration) {
	m.CapabilityInvocations.WithLabelValues(string(kind), outcome).Inc()
	m.CapabilityDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObserveDenial implements guard.DenialObserver
func (m *Metrics) ObserveDenial(reason string) {
	m.GuardDenials.WithLabelValues(reason).Inc()
}

// ObserveRun implements negotiation.RunObserver
func (m *Metrics) ObserveRun(strategyID, result string) {
	m.NegotiationRuns.WithLabelValues(strategyID, result).Inc()
}

// ObserveTransition implements autopilot.TransitionObserver. A move from ""
// is a new case.
func (m *Metrics) ObserveTransition(from, to string) {
	if from == "" {
		from = "new"
	}
	m.CaseTransitions.WithLabelValues(from, to).Inc()

	wasActive := from != "new" && !models.Stage(from).IsTerminal()
	isActive := !models.Stage(to).IsTerminal()
	switch {
	case isActive && !wasActive:
		m.ActiveCases.Inc()
	case wasActive && !isActive:
		m.ActiveCases.Dec()
	}
}

// RecordInbound counts one inbound event
func (m *Metrics) RecordInbound(kind models.EventKind, transport string) {
	m.InboundEvents.WithLabelValues(string(kind), transport).Inc()
}
