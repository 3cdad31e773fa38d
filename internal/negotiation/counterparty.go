package negotiation

import (
	"context"
	"fmt"

	"magabot/internal/capability"
	"magabot/internal/models"
)

// CapabilityCounterParty proposes offers through the negotiate capability
type CapabilityCounterParty struct {
	invoker capability.Invoker
	userID  string
	caseID  string
}

// NewCapabilityCounterParty routes offers for a case through the registry
func NewCapabilityCounterParty(invoker capability.Invoker, userID, caseID string) *CapabilityCounterParty {
	return &CapabilityCounterParty{invoker: invoker, userID: userID, caseID: caseID}
}

// Respond implements CounterParty
func (c *CapabilityCounterParty) Respond(ctx context.Context, offer models.Offer) (models.CounterOffer, error) {
	res, err := c.invoker.Invoke(ctx, models.Invocation{
		Kind:    models.CapNegotiate,
		Payload: models.Payload{Offer: &offer},
		UserID:  c.userID,
		CaseID:  c.caseID,
	})
	if err != nil {
		return models.CounterOffer{}, err
	}
	if res == nil || res.Counter == nil {
		return models.CounterOffer{}, fmt.Errorf("negotiate capability returned no counter-offer")
	}
	return *res.Counter, nil
}

// Handler exposes the employer model as the negotiate capability
func (e *SimulatedEmployer) Handler() capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		if p.Offer == nil {
			return nil, fmt.Errorf("negotiate: missing offer")
		}
		offer := *p.Offer
		if offer.Round <= 0 {
			offer.Round = 1
		}
		counter, err := e.Respond(ctx, offer)
		if err != nil {
			return nil, err
		}
		return &models.Result{Text: counter.Message, Counter: &counter}, nil
	}
}
