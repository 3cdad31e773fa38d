package autopilot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"magabot/internal/guard"
	"magabot/internal/models"
	"magabot/internal/negotiation"
)

// stageFunc runs one stage against a working copy of the case. Artifacts it
// records are committed only when the stage result is accepted. Every
// capability call goes through inv, which consults the guard first.
type stageFunc func(ctx context.Context, c *models.Case, inv *guardedInvoker) error

func (m *Machine) stageHandler(stage models.Stage) (stageFunc, bool) {
	switch stage {
	case models.StageDiscover:
		return m.discover, true
	case models.StageApply:
		return m.apply, true
	case models.StageInterview:
		return m.interview, true
	case models.StageNegotiate:
		return m.negotiate, true
	case models.StageClose:
		return m.closeDeal, true
	}
	return nil, false
}

func (m *Machine) invoke(ctx context.Context, inv *guardedInvoker, c *models.Case, kind models.CapabilityKind, p models.Payload) (*models.Result, error) {
	return inv.Invoke(ctx, models.Invocation{
		Kind:    kind,
		Payload: p,
		UserID:  c.UserID,
		CaseID:  c.ID,
	})
}

func (m *Machine) discover(ctx context.Context, c *models.Case, inv *guardedInvoker) error {
	if len(c.Artifacts.Postings) > 0 {
		return nil
	}
	criteria := c.Criteria
	res, err := m.invoke(ctx, inv, c, models.CapJobSearch, models.Payload{
		Text:     criteria.TargetRole,
		Criteria: &criteria,
	})
	if err != nil {
		return stageFailure(models.StageDiscover, "job search failed", err)
	}
	var found []models.Posting
	if res != nil {
		found = res.Postings
	}
	postings := FilterPostings(found, c.Criteria, c.Profile)
	if len(postings) == 0 {
		return stageFailure(models.StageDiscover, "no matching postings found", nil)
	}
	c.Artifacts.Postings = postings
	return nil
}

func (m *Machine) apply(ctx context.Context, c *models.Case, inv *guardedInvoker) error {
	now := m.now()
	if day := now.Format("2006-01-02"); c.AppliedDay != day {
		c.AppliedDay = day
		c.AppliedToday = 0
	}
	limit := c.Criteria.MaxApplyPerDay
	profile := c.Profile

	attempted, succeeded := 0, 0
	var lastErr error
	for _, p := range c.Artifacts.Postings {
		if c.Artifacts.Applied(p.ID) {
			continue
		}
		if limit > 0 && c.AppliedToday >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		posting := p
		res, err := m.invoke(ctx, inv, c, models.CapApply, models.Payload{Posting: &posting, Profile: &profile})
		if errors.Is(err, guard.ErrThrottled) {
			// applications sent so far are kept; the rest wait for the guard
			return err
		}
		attempted++
		app := models.Application{
			PostingID:   p.ID,
			Company:     p.Company,
			Title:       p.Title,
			SubmittedAt: m.now(),
		}
		switch {
		case err != nil:
			lastErr = err
			app.Message = userReason(err)
			app.MatchScore = p.MatchScore
		case res != nil && res.Application != nil:
			app = *res.Application
			if app.PostingID == "" {
				app.PostingID = p.ID
			}
			if app.SubmittedAt.IsZero() {
				app.SubmittedAt = m.now()
			}
			app.MatchScore = p.MatchScore
		default:
			app.Success = true
			app.MatchScore = p.MatchScore
			if res != nil {
				app.Message = res.Text
			}
		}
		if app.Success {
			succeeded++
			c.AppliedToday++
		}
		c.Artifacts.Applications = append(c.Artifacts.Applications, app)
	}

	hasSuccess := len(c.Artifacts.SuccessfulApplications()) > 0
	switch {
	case attempted == 0 && hasSuccess:
		return nil
	case attempted == 0 && limit > 0 && c.AppliedToday >= limit:
		return errDailyCap
	case attempted == 0:
		return stageFailure(models.StageApply, "no postings left to apply to", nil)
	case !hasSuccess:
		return stageFailure(models.StageApply, "every application failed", lastErr)
	}
	return nil
}

func (m *Machine) interview(ctx context.Context, c *models.Case, inv *guardedInvoker) error {
	apps := c.Artifacts.SuccessfulApplications()
	if len(apps) == 0 {
		return stageFailure(models.StageInterview, "no successful application to prepare for", nil)
	}
	first := apps[0]
	posting := models.Posting{ID: first.PostingID, Title: first.Title, Company: first.Company}
	profile := c.Profile
	res, err := m.invoke(ctx, inv, c, models.CapInterviewPrep, models.Payload{
		Text:    c.Criteria.TargetRole,
		Posting: &posting,
		Profile: &profile,
		Context: map[string]string{"company": first.Company, "position": first.Title},
	})
	if err != nil {
		return stageFailure(models.StageInterview, "interview preparation failed", err)
	}

	brief := models.InterviewBrief{Company: first.Company, Position: first.Title, PreparedAt: m.now()}
	if res != nil && res.Brief != nil {
		brief = *res.Brief
		if brief.PreparedAt.IsZero() {
			brief.PreparedAt = m.now()
		}
	} else if res != nil {
		brief.Brief = res.Text
	}
	if strings.TrimSpace(brief.Brief) == "" {
		return stageFailure(models.StageInterview, "interview preparation returned nothing", nil)
	}
	c.Artifacts.Briefs = append(c.Artifacts.Briefs, brief)
	return nil
}

func (m *Machine) negotiate(ctx context.Context, c *models.Case, inv *guardedInvoker) error {
	if m.deps.Negotiator == nil {
		return stageFailure(models.StageNegotiate, "negotiation is not configured", nil)
	}
	target := c.Criteria.TargetSalary
	if target <= 0 {
		target = c.Criteria.MinSalary
	}
	if target <= 0 {
		return stageFailure(models.StageNegotiate, "no target salary set", nil)
	}

	req := negotiation.Request{
		Target:   target,
		Minimum:  c.Criteria.MinSalary,
		Currency: c.Criteria.Currency,
		Position: c.Criteria.TargetRole,
	}
	if apps := c.Artifacts.SuccessfulApplications(); len(apps) > 0 {
		req.Company = apps[0].Company
		req.Position = apps[0].Title
	}

	cp := negotiation.NewCapabilityCounterParty(inv, c.UserID, c.ID)
	out, err := m.deps.Negotiator.Negotiate(ctx, req, cp)
	if d, denied := inv.throttled(); denied {
		// a run cut short by the guard would skew the selection
		return d.Err()
	}
	if err != nil {
		return stageFailure(models.StageNegotiate, "negotiation failed", err)
	}
	c.Artifacts.Negotiation = out
	return nil
}

func (m *Machine) closeDeal(ctx context.Context, c *models.Case, inv *guardedInvoker) error {
	out := c.Artifacts.Negotiation
	if out == nil {
		return stageFailure(models.StageClose, "no negotiation outcome to finalize", nil)
	}
	position := c.Criteria.TargetRole
	if apps := c.Artifacts.SuccessfulApplications(); len(apps) > 0 {
		position = apps[0].Title
	}
	outcome := *out
	profile := c.Profile
	res, err := m.invoke(ctx, inv, c, models.CapFinalize, models.Payload{
		Outcome: &outcome,
		Profile: &profile,
		Posting: &models.Posting{Company: out.Company, Title: position},
	})
	if err != nil {
		return stageFailure(models.StageClose, "finalizing the offer failed", err)
	}

	summary := &models.CloseSummary{
		Company:  out.Company,
		Position: position,
		Salary:   out.Winner.FinalOffer,
		Currency: out.Currency,
		ClosedAt: m.now(),
	}
	if res != nil {
		summary.Letter = res.Text
	}
	c.Artifacts.Close = summary
	return nil
}

// stageSummary is the progress line sent after a stage completes
func stageSummary(stage models.Stage, c *models.Case) string {
	a := c.Artifacts
	switch stage {
	case models.StageDiscover:
		return fmt.Sprintf("🔎 Found %d matching postings. Applying next.", len(a.Postings))
	case models.StageApply:
		return fmt.Sprintf("📨 %d of %d applications went through. Preparing for interviews.",
			len(a.SuccessfulApplications()), len(a.Applications))
	case models.StageInterview:
		if n := len(a.Briefs); n > 0 {
			return fmt.Sprintf("🎓 Interview brief for %s is ready. Negotiating salary next.", a.Briefs[n-1].Company)
		}
	case models.StageNegotiate:
		if out := a.Negotiation; out != nil {
			return fmt.Sprintf("🤝 Best offer %d %s via %s strategy (confidence %.0f%%). %s",
				out.Winner.FinalOffer, out.Currency, out.Winner.StrategyID, out.Confidence*100, out.Recommendation)
		}
	case models.StageClose:
		if cl := a.Close; cl != nil {
			return fmt.Sprintf("✅ Offer from %s closed at %d %s.", cl.Company, cl.Salary, cl.Currency)
		}
	}
	return fmt.Sprintf("✅ %s complete.", stage.Title())
}
