package autopilot

import (
	"fmt"
	"strings"

	"magabot/internal/models"
)

// StatusText renders the chat summary of a case
func StatusText(c *models.Case, s Settings) string {
	var b strings.Builder
	a := c.Artifacts

	fmt.Fprintf(&b, "📋 Case %s\n", shortID(c.ID))
	switch {
	case c.Cancelled:
		fmt.Fprintf(&b, "Stage: Cancelled (at %s)\n", c.FailedStage.Title())
	case c.Stage == models.StageFailed:
		fmt.Fprintf(&b, "Stage: Failed at %s: %s\n", c.FailedStage.Title(), c.FailureReason)
	default:
		fmt.Fprintf(&b, "Stage: %s\n", c.Stage.Title())
	}
	if c.Active() {
		if n := c.Attempts[c.Stage]; n > 0 {
			fmt.Fprintf(&b, "Attempts: %d of %d\n", n, s.MaxAttemptsFor(c.Stage))
		}
	}

	fmt.Fprintf(&b, "Postings: %d\n", len(a.Postings))
	fmt.Fprintf(&b, "Applications: %d sent, %d successful\n", len(a.Applications), len(a.SuccessfulApplications()))
	if c.Criteria.MaxApplyPerDay > 0 {
		fmt.Fprintf(&b, "Applied today: %d of %d\n", c.AppliedToday, c.Criteria.MaxApplyPerDay)
	}
	if len(a.Briefs) > 0 {
		fmt.Fprintf(&b, "Interview briefs: %d\n", len(a.Briefs))
	}
	if out := a.Negotiation; out != nil {
		fmt.Fprintf(&b, "Best offer: %d %s (%s)\n", out.Winner.FinalOffer, out.Currency, out.Winner.StrategyID)
	}
	if cl := a.Close; cl != nil {
		fmt.Fprintf(&b, "Closed: %s, %d %s\n", cl.Company, cl.Salary, cl.Currency)
	}
	fmt.Fprintf(&b, "Updated: %s", c.UpdatedAt.UTC().Format("2006-01-02 15:04 MST"))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
