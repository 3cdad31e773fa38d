package main

import (
	"context"
	"fmt"
	"log"

	"magabot/internal/browser"
	"magabot/internal/capability"
	"magabot/internal/config"
	"magabot/internal/dispatch"
	"magabot/internal/jobboard"
	"magabot/internal/llm"
	"magabot/internal/metrics"
	"magabot/internal/models"
	"magabot/internal/negotiation"
	"magabot/internal/speech"
	"magabot/internal/vision"
)

// buildRegistry registers every configured capability adapter and applies
// the class and timeout overrides from assistant.yaml
func buildRegistry(cfg *config.Config, assistant *config.AssistantConfig, m *metrics.Metrics, chrome browser.Runner) (*capability.Registry, error) {
	breaker := capability.NewCircuitBreaker(assistant.Breaker.Threshold, assistant.Breaker.Recovery)
	registry := capability.NewRegistry(breaker, m)

	var specs []capability.Spec

	primary := llm.Provider{Name: "primary", BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: cfg.LLMModel}
	fallback := llm.Provider{Name: "fallback", BaseURL: cfg.LLMFallbackBaseURL, APIKey: cfg.LLMFallbackAPIKey, Model: cfg.LLMFallbackModel}
	var primaryLLM, fallbackLLM llm.Completer
	if primary.Configured() {
		primaryLLM = llm.NewClient(primary, nil)
	} else {
		log.Println("⚠️ [CAPABILITY] LLM_API_KEY not set, text capabilities run offline")
	}
	if fallback.Configured() {
		fallbackLLM = llm.NewClient(fallback, nil)
	}
	specs = append(specs, llm.Specs(primaryLLM, fallbackLLM)...)

	specs = append(specs, speech.Specs(cfg.GroqAPIKey, cfg.OpenAIAPIKey, cfg.TTSBaseURL, cfg.OpenAIAPIKey, cfg.TTSModel, cfg.TTSVoice)...)

	var describer *vision.Describer
	if visionProvider := (llm.Provider{Name: "vision", BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: cfg.VisionModel}); visionProvider.Configured() {
		describer = vision.NewDescriber(llm.NewClient(visionProvider, nil), cfg.VisionModel)
	}
	specs = append(specs, vision.Spec(describer))

	limiter := jobboard.NewRateLimiter(cfg.JobBoardRPS)
	hh := jobboard.NewHHClient(cfg.JobBoardBaseURL, cfg.JobBoardUserAgent, limiter, nil)
	var enricher *jobboard.Enricher
	if cfg.JobBoardEnrich > 0 {
		enricher = jobboard.NewEnricher(cfg.JobBoardUserAgent, limiter, nil)
	}
	specs = append(specs, jobboard.Spec(hh, enricher, cfg.JobBoardEnrich))

	specs = append(specs, browser.Spec(chrome, browser.DefaultSites()))

	employer := negotiation.NewSimulatedEmployer(assistant.AutoPilot.Criteria.TargetSalary)
	specs = append(specs, capability.Spec{
		Kind:        models.CapNegotiate,
		Class:       models.ClassFast,
		Description: "Simulated employer counter-offers",
		Primary:     employer.Handler(),
	})

	for _, spec := range specs {
		spec = applyCapabilityConfig(spec, assistant.Capabilities)
		if err := registry.Register(spec); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.Kind, err)
		}
		log.Printf("✅ [CAPABILITY] %s registered (%s, timeout %s, fallback=%t)",
			spec.Kind, spec.Class, spec.Timeout, spec.Fallback != nil)
	}
	return registry, nil
}

func applyCapabilityConfig(spec capability.Spec, overrides map[string]config.CapabilityConfig) capability.Spec {
	o, ok := overrides[string(spec.Kind)]
	if !ok {
		return spec
	}
	if o.Class != "" {
		spec.Class = models.LatencyClass(o.Class)
	}
	if o.Timeout > 0 {
		spec.Timeout = o.Timeout
	}
	return spec
}

// applyTimeouts re-applies reloaded capability timeouts
func applyTimeouts(registry *capability.Registry, overrides map[string]config.CapabilityConfig) {
	for kind, o := range overrides {
		if o.Timeout > 0 {
			registry.SetTimeout(models.CapabilityKind(kind), o.Timeout)
		}
	}
}

// countingDispatcher records inbound events per transport before dispatching
type countingDispatcher struct {
	next      *dispatch.Dispatcher
	metrics   *metrics.Metrics
	transport string
}

func (d countingDispatcher) Dispatch(ctx context.Context, ev *models.InboundEvent) ([]dispatch.Reply, error) {
	d.metrics.RecordInbound(ev.Kind, d.transport)
	return d.next.Dispatch(ctx, ev)
}
