package negotiation

import (
	"context"
	"fmt"
	"math"

	"magabot/internal/models"
)

// CounterParty answers salary offers. Implementations must be safe for
// concurrent use: every strategy run talks to the same counter-party.
type CounterParty interface {
	Respond(ctx context.Context, offer models.Offer) (models.CounterOffer, error)
}

// Request is the read-only context shared by all strategy runs
type Request struct {
	Company  string
	Position string
	Target   int
	Minimum  int
	Currency string
}

type ladderResult struct {
	FinalOffer int
	Rounds     int
}

type runFunc func(ctx context.Context, s Strategy, req Request, cp CounterParty, maxRounds int) (ladderResult, error)

// concessionLadder opens at target*multiplier and steps down by the strategy's
// concession step each round. It settles when the counter-party accepts, when
// the counter reaches the strategy's floor, or when the counter-party says its
// offer is final. After maxRounds the best counter seen is taken.
func concessionLadder(ctx context.Context, s Strategy, req Request, cp CounterParty, maxRounds int) (ladderResult, error) {
	if maxRounds <= 0 {
		maxRounds = 1
	}
	ask := roundAmount(float64(req.Target) * s.TargetMultiplier)
	floor := roundAmount(float64(req.Target) * s.FloorRatio)
	if floor < req.Minimum {
		floor = req.Minimum
	}

	best := 0
	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return ladderResult{}, err
		}

		counter, err := cp.Respond(ctx, models.Offer{
			Amount:   ask,
			Currency: req.Currency,
			Round:    round,
			Company:  req.Company,
			Message:  pitch(s, ask, req.Currency),
		})
		if err != nil {
			return ladderResult{}, fmt.Errorf("round %d: %w", round, err)
		}

		if counter.Accepted || counter.Amount >= ask {
			return ladderResult{FinalOffer: ask, Rounds: round}, nil
		}
		if counter.Amount > best {
			best = counter.Amount
		}
		if counter.Final || counter.Amount >= floor {
			return ladderResult{FinalOffer: best, Rounds: round}, nil
		}

		next := roundAmount(float64(ask) * (1 - s.ConcessionStep))
		if next < floor {
			next = floor
		}
		ask = next
	}
	return ladderResult{FinalOffer: best, Rounds: maxRounds}, nil
}

func pitch(s Strategy, ask int, currency string) string {
	switch s.Personality {
	case PersonalitySoft:
		return fmt.Sprintf("I'm excited about the role. Would %d %s work for you?", ask, currency)
	case PersonalityHard:
		return fmt.Sprintf("Given my track record, my requirement is %d %s.", ask, currency)
	default:
		return fmt.Sprintf("Based on market data for this role, I'm looking at %d %s.", ask, currency)
	}
}

// roundAmount rounds to whole units first, then to the nearest thousand
func roundAmount(v float64) int {
	return int(math.Round(math.Round(v)/1000) * 1000)
}
