package negotiation

import (
	"fmt"

	"magabot/internal/models"
)

// Confidence scores how comfortable the user can be accepting the winning offer
func Confidence(winner models.StrategyRun, target int) float64 {
	c := 0.5
	ratio := offerRatio(winner.FinalOffer, target)
	switch {
	case ratio >= 1.0:
		c += 0.3
	case ratio >= 0.9:
		c += 0.1
	}
	switch winner.Risk {
	case "high":
		c -= 0.1
	case "low":
		c += 0.1
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Recommendation renders the advice line shown after a negotiation
func Recommendation(winner models.StrategyRun, runs []models.StrategyRun, target int, currency string) string {
	ratio := offerRatio(winner.FinalOffer, target)
	var text string
	switch {
	case ratio >= 1.0:
		text = fmt.Sprintf("🎉 Excellent result: %s reached %d %s (+%.1f%% over target). Use this approach.",
			winner.StrategyID, winner.FinalOffer, currency, (ratio-1)*100)
	case ratio >= 0.95:
		text = fmt.Sprintf("👍 Good result: %s reached %d %s. There may be room to push a little further.",
			winner.StrategyID, winner.FinalOffer, currency)
	case ratio >= 0.85:
		text = fmt.Sprintf("🤝 Acceptable result: %d %s is a solid base to start from.", winner.FinalOffer, currency)
	default:
		text = fmt.Sprintf("📈 Below expectations: %d %s. Try other arguments before accepting.", winner.FinalOffer, currency)
	}

	runnerUp := 0
	for _, r := range runs {
		if r.Succeeded && r.Order != winner.Order && r.FinalOffer > runnerUp {
			runnerUp = r.FinalOffer
		}
	}
	if runnerUp > 0 && winner.FinalOffer-runnerUp > 10000 {
		text += fmt.Sprintf(" It beat the next strategy by %d %s.", winner.FinalOffer-runnerUp, currency)
	}
	return text
}

func offerRatio(offer, target int) float64 {
	if target <= 0 {
		return 0
	}
	return float64(offer) / float64(target)
}
