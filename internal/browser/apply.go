package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"magabot/internal/capability"
	"magabot/internal/models"
)

// ApplyHandler submits applications through the browser for boards with a known recipe
func ApplyHandler(runner Runner, sites []Site, now func() time.Time) capability.Handler {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		if p.Posting == nil {
			return nil, fmt.Errorf("apply: missing posting")
		}
		posting := *p.Posting
		if posting.URL == "" {
			return nil, fmt.Errorf("apply: posting %s has no URL", posting.ID)
		}
		site, ok := SiteFor(sites, posting.URL)
		if !ok {
			return nil, fmt.Errorf("apply: no browser recipe for %s", posting.URL)
		}

		plan := Plan{URL: posting.URL, Site: site, CoverLetter: coverLetter(p.Profile, posting)}
		if err := runner.Run(ctx, plan); err != nil {
			return nil, err
		}
		app := application(posting, "browser", "Applied on "+site.Name, now())
		return &models.Result{Text: app.Message, Application: &app}, nil
	}
}

// RecordedIntentHandler does not submit anything. It records the application
// with its link so the user can finish it by hand.
func RecordedIntentHandler(now func() time.Time) capability.Handler {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context, p models.Payload) (*models.Result, error) {
		if p.Posting == nil {
			return nil, fmt.Errorf("apply: missing posting")
		}
		posting := *p.Posting
		msg := "Saved for manual follow-up"
		if posting.URL != "" {
			msg += ": " + posting.URL
		}
		app := application(posting, "manual", msg, now())
		return &models.Result{Text: msg, Application: &app}, nil
	}
}

// Spec builds the apply registry entry. Without a runner the recorded intent is the primary.
func Spec(runner Runner, sites []Site) capability.Spec {
	spec := capability.Spec{
		Kind:        models.CapApply,
		Class:       models.ClassSlow,
		Description: "Job application (recorded for manual follow-up)",
		Primary:     RecordedIntentHandler(nil),
	}
	if runner != nil {
		spec.Description = "Job application (browser automation)"
		spec.Primary = ApplyHandler(runner, sites, nil)
		spec.Fallback = RecordedIntentHandler(nil)
	}
	return spec
}

func application(p models.Posting, method, message string, at time.Time) models.Application {
	return models.Application{
		PostingID:   p.ID,
		Company:     p.Company,
		Title:       p.Title,
		Success:     true,
		Method:      method,
		Message:     message,
		SubmittedAt: at,
	}
}

func coverLetter(profile *models.Profile, p models.Posting) string {
	if profile == nil {
		return ""
	}
	letter := strings.TrimSpace(profile.CoverLetter)
	if letter == "" {
		return ""
	}
	r := strings.NewReplacer("{company}", p.Company, "{title}", p.Title, "{name}", profile.Name)
	return r.Replace(letter)
}
