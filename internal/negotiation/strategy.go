package negotiation

import "magabot/internal/config"

// Personalities used to diversify the first picks
const (
	PersonalitySoft    = "soft"
	PersonalityNeutral = "neutral"
	PersonalityHard    = "hard"
)

// Strategy is one entry of the negotiation catalog
type Strategy struct {
	ID               string
	Personality      string
	Style            string
	Risk             string
	TargetMultiplier float64
	ConcessionStep   float64
	FloorRatio       float64
}

// RiskValue maps the risk label onto the scoring scale
func (s Strategy) RiskValue() float64 {
	switch s.Risk {
	case "low":
		return 1
	case "high":
		return 3
	default:
		return 2
	}
}

// CatalogFromConfig converts configured strategies, preserving order
func CatalogFromConfig(cfgs []config.StrategyConfig) []Strategy {
	out := make([]Strategy, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Strategy{
			ID:               c.ID,
			Personality:      c.Personality,
			Style:            c.Style,
			Risk:             c.Risk,
			TargetMultiplier: c.TargetMultiplier,
			ConcessionStep:   c.ConcessionStep,
			FloorRatio:       c.FloorRatio,
		})
	}
	return out
}

// Select picks count strategies: the first soft, neutral and hard entries of the
// catalog, then the remaining entries in catalog order. Selection is deterministic.
func Select(catalog []Strategy, count int) []Strategy {
	if count > len(catalog) {
		count = len(catalog)
	}
	if count <= 0 {
		return nil
	}

	selected := make([]Strategy, 0, count)
	taken := make(map[string]bool, count)
	for _, personality := range []string{PersonalitySoft, PersonalityNeutral, PersonalityHard} {
		if len(selected) == count {
			break
		}
		for _, s := range catalog {
			if s.Personality == personality && !taken[s.ID] {
				selected = append(selected, s)
				taken[s.ID] = true
				break
			}
		}
	}
	for _, s := range catalog {
		if len(selected) == count {
			break
		}
		if !taken[s.ID] {
			selected = append(selected, s)
			taken[s.ID] = true
		}
	}
	return selected
}
