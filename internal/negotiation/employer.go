package negotiation

import (
	"context"
	"fmt"

	"magabot/internal/models"
)

// SimulatedEmployer is a deterministic budget model of an HR counter-party.
// It accepts any ask within budget, otherwise counters from an opening figure
// toward the budget as rounds go on. Asks far above the budget get the opening
// offer as final.
type SimulatedEmployer struct {
	Budget        int
	Opening       int
	Step          float64 // share of the opening-to-budget gap conceded per round
	Patience      int     // round at which the counter becomes final
	WalkAwayRatio float64
}

// NewSimulatedEmployer models an employer whose budget sits slightly above the target
func NewSimulatedEmployer(target int) *SimulatedEmployer {
	return &SimulatedEmployer{
		Budget:        roundAmount(float64(target) * 1.1),
		Opening:       roundAmount(float64(target) * 0.8),
		Step:          0.35,
		Patience:      4,
		WalkAwayRatio: 1.4,
	}
}

// Respond implements CounterParty. It holds no state, so concurrent runs are independent.
func (e *SimulatedEmployer) Respond(ctx context.Context, offer models.Offer) (models.CounterOffer, error) {
	if err := ctx.Err(); err != nil {
		return models.CounterOffer{}, err
	}
	if offer.Amount <= 0 {
		return models.CounterOffer{}, fmt.Errorf("offer amount must be positive")
	}

	if offer.Amount <= e.Budget {
		return models.CounterOffer{
			Amount:   offer.Amount,
			Accepted: true,
			Final:    true,
			Message:  fmt.Sprintf("Deal. We can offer %d %s.", offer.Amount, offer.Currency),
		}, nil
	}

	if e.WalkAwayRatio > 0 && float64(offer.Amount) > float64(e.Budget)*e.WalkAwayRatio {
		return models.CounterOffer{
			Amount:  e.Opening,
			Final:   true,
			Message: fmt.Sprintf("That is far beyond our range. Our offer stands at %d %s.", e.Opening, offer.Currency),
		}, nil
	}

	share := e.Step * float64(offer.Round)
	if share > 1 {
		share = 1
	}
	counter := roundAmount(float64(e.Opening) + float64(e.Budget-e.Opening)*share)
	final := e.Patience > 0 && offer.Round >= e.Patience
	if final {
		counter = e.Budget
	}

	msg := fmt.Sprintf("That's above our budget. We could do %d %s.", counter, offer.Currency)
	if final {
		msg = fmt.Sprintf("%d %s is our ceiling for this position.", counter, offer.Currency)
	}
	return models.CounterOffer{Amount: counter, Final: final, Message: msg}, nil
}
