package config

import "time"

// DefaultVoiceMarkers trigger voice replies for text messages in auto mode
var DefaultVoiceMarkers = []string{"voice", "/voice", "голос", "говори", "скажи"}

// DefaultJobIntents route free text to a job search instead of text generation
var DefaultJobIntents = []string{
	"find me a job",
	"find a job",
	"job search",
	"найди работу",
	"найти работу",
	"ищу работу",
}

// DefaultStrategies is the nine-strategy catalog: three personalities, three flavours each
func DefaultStrategies() []StrategyConfig {
	return []StrategyConfig{
		{ID: "soft_professional", Personality: "soft", Style: "professional", Risk: "low", TargetMultiplier: 1.05, ConcessionStep: 0.02, FloorRatio: 0.95},
		{ID: "soft_friendly", Personality: "soft", Style: "friendly", Risk: "low", TargetMultiplier: 1.08, ConcessionStep: 0.03, FloorRatio: 0.93},
		{ID: "soft_analytical", Personality: "soft", Style: "analytical", Risk: "medium", TargetMultiplier: 1.12, ConcessionStep: 0.03, FloorRatio: 0.95},

		{ID: "neutral_professional", Personality: "neutral", Style: "professional", Risk: "medium", TargetMultiplier: 1.15, ConcessionStep: 0.04, FloorRatio: 0.97},
		{ID: "neutral_balanced", Personality: "neutral", Style: "friendly", Risk: "medium", TargetMultiplier: 1.18, ConcessionStep: 0.04, FloorRatio: 0.98},
		{ID: "neutral_data_driven", Personality: "neutral", Style: "analytical", Risk: "medium", TargetMultiplier: 1.20, ConcessionStep: 0.05, FloorRatio: 1.0},

		{ID: "hard_professional", Personality: "hard", Style: "professional", Risk: "high", TargetMultiplier: 1.25, ConcessionStep: 0.05, FloorRatio: 1.02},
		{ID: "hard_aggressive", Personality: "hard", Style: "aggressive", Risk: "high", TargetMultiplier: 1.30, ConcessionStep: 0.04, FloorRatio: 1.05},
		{ID: "hard_maximum", Personality: "hard", Style: "analytical", Risk: "high", TargetMultiplier: 1.35, ConcessionStep: 0.03, FloorRatio: 1.08},
	}
}

// DefaultAssistant returns the built-in behaviour used when assistant.yaml is absent
func DefaultAssistant() *AssistantConfig {
	autoAdvance := true
	return &AssistantConfig{
		Mode: ModeConfig{
			VoiceMarkers: append([]string(nil), DefaultVoiceMarkers...),
		},
		Router: RouterConfig{
			JobIntents: append([]string(nil), DefaultJobIntents...),
		},
		Capabilities: map[string]CapabilityConfig{
			"text-generate":     {Class: "fast", Timeout: 30 * time.Second},
			"speech-synthesize": {Class: "fast", Timeout: 20 * time.Second},
			"speech-recognize":  {Class: "fast", Timeout: 30 * time.Second},
			"ocr":               {Class: "slow", Timeout: 45 * time.Second},
			"job-search":        {Class: "slow", Timeout: 20 * time.Second},
			"apply":             {Class: "slow", Timeout: 90 * time.Second},
			"interview-prep":    {Class: "slow", Timeout: 60 * time.Second},
			"negotiate":         {Class: "fast", Timeout: 10 * time.Second},
			"finalize":          {Class: "slow", Timeout: 60 * time.Second},
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Recovery:  60 * time.Second,
		},
		Guard: GuardConfig{
			Backend: "memory",
			Window:  60 * time.Second,
			PerUser: map[string]int{"fast": 10, "slow": 4},
			Global:  map[string]int{"fast": 600, "slow": 120},
		},
		AutoPilot: AutoPilotConfig{
			MaxAttempts:        map[string]int{"discover": 3, "apply": 3, "interview": 2, "negotiate": 2, "close": 2},
			DefaultMaxAttempts: 3,
			AutoAdvance:        &autoAdvance,
			QueueSize:          32,
			ResumeCron:         "*/10 * * * *",
			StallAfter:         15 * time.Minute,
			Criteria: CriteriaConfig{
				TargetRole:     "Senior Go Developer",
				Keywords:       []string{"go", "golang", "backend"},
				Locations:      []string{"Москва", "Remote"},
				MinSalary:      150000,
				TargetSalary:   250000,
				Currency:       "RUR",
				MaxApplyPerDay: 5,
				MaxPostings:    20,
			},
		},
		Negotiation: NegotiationConfig{
			Count:         3,
			PerRunTimeout: 60 * time.Second,
			MaxRounds:     5,
			Weights:       WeightsConfig{Offer: 1},
			Strategies:    DefaultStrategies(),
		},
	}
}
