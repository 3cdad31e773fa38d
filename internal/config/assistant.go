package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AssistantConfig is the behaviour file (assistant.yaml). Everything here can be
// tuned without a rebuild; the mode, router and negotiation sections are hot-reloaded.
type AssistantConfig struct {
	Mode         ModeConfig                  `yaml:"mode"`
	Router       RouterConfig                `yaml:"router"`
	Capabilities map[string]CapabilityConfig `yaml:"capabilities"`
	Breaker      BreakerConfig               `yaml:"breaker"`
	Guard        GuardConfig                 `yaml:"guard"`
	AutoPilot    AutoPilotConfig             `yaml:"autopilot"`
	Negotiation  NegotiationConfig           `yaml:"negotiation"`
}

// ModeConfig controls response mode resolution
type ModeConfig struct {
	VoiceMarkers []string `yaml:"voice_markers"`
}

// RouterConfig controls free-text intent detection
type RouterConfig struct {
	JobIntents []string `yaml:"job_intents"`
}

// CapabilityConfig declares the latency class and timeout of one capability kind
type CapabilityConfig struct {
	Class   string        `yaml:"class"`
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig controls the per-capability circuit breaker
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Recovery  time.Duration `yaml:"recovery"`
}

// GuardConfig holds per-class throughput ceilings
type GuardConfig struct {
	Backend string         `yaml:"backend"` // "memory" or "redis"
	Window  time.Duration  `yaml:"window"`
	PerUser map[string]int `yaml:"per_user"`
	Global  map[string]int `yaml:"global"`
}

// AutoPilotConfig controls the automation case state machine
type AutoPilotConfig struct {
	MaxAttempts        map[string]int `yaml:"max_attempts"`
	DefaultMaxAttempts int            `yaml:"default_max_attempts"`
	AutoAdvance        *bool          `yaml:"auto_advance"`
	QueueSize          int            `yaml:"queue_size"`
	ResumeCron         string         `yaml:"resume_cron"`
	StallAfter         time.Duration  `yaml:"stall_after"`
	Criteria           CriteriaConfig `yaml:"criteria"`
	Profile            ProfileConfig  `yaml:"profile"`
}

// CriteriaConfig holds default job-search criteria for new cases
type CriteriaConfig struct {
	TargetRole      string   `yaml:"target_role"`
	Keywords        []string `yaml:"keywords"`
	Locations       []string `yaml:"locations"`
	TargetCompanies []string `yaml:"target_companies"`
	MinSalary       int      `yaml:"min_salary"`
	TargetSalary    int      `yaml:"target_salary"`
	Currency        string   `yaml:"currency"`
	MaxApplyPerDay  int      `yaml:"max_applications_per_day"`
	MaxPostings     int      `yaml:"max_postings"`
	MinMatchScore   float64  `yaml:"min_match_score"` // 0 disables the match filter
}

// ProfileConfig is the applicant profile used for applications
type ProfileConfig struct {
	Name        string   `yaml:"name"`
	Email       string   `yaml:"email"`
	Phone       string   `yaml:"phone"`
	ResumeURL   string   `yaml:"resume_url"`
	CoverLetter string   `yaml:"cover_letter"`
	Skills      []string `yaml:"skills"`
	Level       string   `yaml:"level"`
}

// NegotiationConfig controls the parallel strategy engine
type NegotiationConfig struct {
	Count         int              `yaml:"count"`
	PerRunTimeout time.Duration    `yaml:"per_run_timeout"`
	MaxRounds     int              `yaml:"max_rounds"`
	MaxParallel   int              `yaml:"max_parallel"` // 0 runs every strategy at once
	Weights       WeightsConfig    `yaml:"weights"`
	Strategies    []StrategyConfig `yaml:"strategies"`
}

// WeightsConfig are the scoring weights applied to each completed run
type WeightsConfig struct {
	Offer  float64 `yaml:"offer"`
	Rounds float64 `yaml:"rounds"`
	Risk   float64 `yaml:"risk"`
}

// StrategyConfig describes one negotiation strategy in the catalog
type StrategyConfig struct {
	ID               string  `yaml:"id"`
	Personality      string  `yaml:"personality"` // soft, neutral or hard
	Style            string  `yaml:"style"`
	Risk             string  `yaml:"risk"` // low, medium or high
	TargetMultiplier float64 `yaml:"target_multiplier"`
	ConcessionStep   float64 `yaml:"concession_step"`
	FloorRatio       float64 `yaml:"floor_ratio"`
}

// LoadAssistant reads assistant.yaml and fills unset fields with defaults.
// A missing file is not an error: the defaults are returned.
func LoadAssistant(path string) (*AssistantConfig, error) {
	cfg := DefaultAssistant()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read assistant config: %w", err)
	}

	var fromFile AssistantConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("failed to parse assistant config: %w", err)
	}
	cfg.merge(&fromFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with
func (c *AssistantConfig) Validate() error {
	if c.Negotiation.Count < 1 {
		return fmt.Errorf("negotiation.count must be at least 1, got %d", c.Negotiation.Count)
	}
	if c.Negotiation.Count > len(c.Negotiation.Strategies) {
		return fmt.Errorf("negotiation.count %d exceeds the %d configured strategies", c.Negotiation.Count, len(c.Negotiation.Strategies))
	}
	if c.Negotiation.PerRunTimeout <= 0 {
		return fmt.Errorf("negotiation.per_run_timeout must be positive")
	}
	if c.Negotiation.MaxParallel < 0 {
		return fmt.Errorf("negotiation.max_parallel must not be negative, got %d", c.Negotiation.MaxParallel)
	}
	seen := make(map[string]bool)
	for _, s := range c.Negotiation.Strategies {
		if s.ID == "" {
			return fmt.Errorf("negotiation strategy with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate negotiation strategy %q", s.ID)
		}
		seen[s.ID] = true
	}
	for name, cc := range c.Capabilities {
		if cc.Class != "" && cc.Class != "fast" && cc.Class != "slow" {
			return fmt.Errorf("capability %s: class must be fast or slow, got %q", name, cc.Class)
		}
	}
	if c.Guard.Window <= 0 {
		return fmt.Errorf("guard.window must be positive")
	}
	if s := c.AutoPilot.Criteria.MinMatchScore; s < 0 || s > 1 {
		return fmt.Errorf("auto_pilot.criteria.min_match_score must be between 0 and 1, got %g", s)
	}
	return nil
}

// ShouldAutoAdvance reports whether a successful stage enqueues the next one. Defaults to true.
func (a AutoPilotConfig) ShouldAutoAdvance() bool {
	return a.AutoAdvance == nil || *a.AutoAdvance
}

// MaxAttemptsFor returns the retry budget of a stage
func (c *AssistantConfig) MaxAttemptsFor(stage string) int {
	if n, ok := c.AutoPilot.MaxAttempts[stage]; ok && n > 0 {
		return n
	}
	return c.AutoPilot.DefaultMaxAttempts
}

// merge overlays non-zero values from the file onto the defaults
func (c *AssistantConfig) merge(f *AssistantConfig) {
	if len(f.Mode.VoiceMarkers) > 0 {
		c.Mode.VoiceMarkers = f.Mode.VoiceMarkers
	}
	if len(f.Router.JobIntents) > 0 {
		c.Router.JobIntents = f.Router.JobIntents
	}
	for name, cc := range f.Capabilities {
		base := c.Capabilities[name]
		if cc.Class != "" {
			base.Class = cc.Class
		}
		if cc.Timeout > 0 {
			base.Timeout = cc.Timeout
		}
		c.Capabilities[name] = base
	}
	if f.Breaker.Threshold > 0 {
		c.Breaker.Threshold = f.Breaker.Threshold
	}
	if f.Breaker.Recovery > 0 {
		c.Breaker.Recovery = f.Breaker.Recovery
	}

	if f.Guard.Backend != "" {
		c.Guard.Backend = f.Guard.Backend
	}
	if f.Guard.Window > 0 {
		c.Guard.Window = f.Guard.Window
	}
	for class, n := range f.Guard.PerUser {
		c.Guard.PerUser[class] = n
	}
	for class, n := range f.Guard.Global {
		c.Guard.Global[class] = n
	}

	for stage, n := range f.AutoPilot.MaxAttempts {
		c.AutoPilot.MaxAttempts[stage] = n
	}
	if f.AutoPilot.DefaultMaxAttempts > 0 {
		c.AutoPilot.DefaultMaxAttempts = f.AutoPilot.DefaultMaxAttempts
	}
	if f.AutoPilot.AutoAdvance != nil {
		c.AutoPilot.AutoAdvance = f.AutoPilot.AutoAdvance
	}
	if f.AutoPilot.ResumeCron != "" {
		c.AutoPilot.ResumeCron = f.AutoPilot.ResumeCron
	}
	if f.AutoPilot.QueueSize > 0 {
		c.AutoPilot.QueueSize = f.AutoPilot.QueueSize
	}
	if f.AutoPilot.StallAfter > 0 {
		c.AutoPilot.StallAfter = f.AutoPilot.StallAfter
	}
	mergeCriteria(&c.AutoPilot.Criteria, &f.AutoPilot.Criteria)
	if f.AutoPilot.Profile.Name != "" {
		c.AutoPilot.Profile = f.AutoPilot.Profile
	}

	if f.Negotiation.Count > 0 {
		c.Negotiation.Count = f.Negotiation.Count
	}
	if f.Negotiation.PerRunTimeout > 0 {
		c.Negotiation.PerRunTimeout = f.Negotiation.PerRunTimeout
	}
	if f.Negotiation.MaxRounds > 0 {
		c.Negotiation.MaxRounds = f.Negotiation.MaxRounds
	}
	if f.Negotiation.MaxParallel > 0 {
		c.Negotiation.MaxParallel = f.Negotiation.MaxParallel
	}
	if f.Negotiation.Weights != (WeightsConfig{}) {
		c.Negotiation.Weights = f.Negotiation.Weights
	}
	if len(f.Negotiation.Strategies) > 0 {
		c.Negotiation.Strategies = f.Negotiation.Strategies
	}
}

func mergeCriteria(dst, src *CriteriaConfig) {
	if src.TargetRole != "" {
		dst.TargetRole = src.TargetRole
	}
	if len(src.Keywords) > 0 {
		dst.Keywords = src.Keywords
	}
	if len(src.Locations) > 0 {
		dst.Locations = src.Locations
	}
	if len(src.TargetCompanies) > 0 {
		dst.TargetCompanies = src.TargetCompanies
	}
	if src.MinSalary > 0 {
		dst.MinSalary = src.MinSalary
	}
	if src.TargetSalary > 0 {
		dst.TargetSalary = src.TargetSalary
	}
	if src.Currency != "" {
		dst.Currency = src.Currency
	}
	if src.MaxApplyPerDay > 0 {
		dst.MaxApplyPerDay = src.MaxApplyPerDay
	}
	if src.MaxPostings > 0 {
		dst.MaxPostings = src.MaxPostings
	}
	if src.MinMatchScore > 0 {
		dst.MinMatchScore = src.MinMatchScore
	}
}
