package llm

import (
	"context"
	"fmt"
	"strings"

	"magabot/internal/capability"
	"magabot/internal/models"
)

// Offline is a rule-based Completer used when no chat provider is reachable.
// It classifies the last user message by keyword and answers from canned text.
type Offline struct{}

var offlineIntents = []struct {
	intent   string
	keywords []string
}{
	{"interview_prep", []string{"interview", "собес", "интервью"}},
	{"negotiation", []string{"salary", "offer", "negotiat", "зарплат", "оффер", "переговор"}},
	{"job_search", []string{"job", "vacanc", "ваканси", "работ", "найди"}},
	{"letter", []string{"letter", "email", "письмо"}},
	{"greeting", []string{"hello", "hi ", "привет", "здравств"}},
}

var offlineAnswers = map[string]string{
	"interview_prep": "Research the company's product and stack, prepare a two-minute story about your most relevant project, and have three questions ready for them.",
	"negotiation":    "Anchor slightly above your target, justify it with market data, and concede in small steps only in exchange for something.",
	"job_search":     "Send /autopilot <role> and I will search, apply and keep you posted.",
	"letter":         "Keep it short: thank them, confirm the key terms, and state your start date.",
	"greeting":       "Hello! Send /help to see what I can do.",
	"unknown":        "My language model is offline right now. Try again in a minute, or send /help.",
}

// Complete implements Completer
func (Offline) Complete(_ context.Context, messages []Message, _ int) (string, error) {
	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if text, ok := messages[i].Content.(string); ok && messages[i].Role == "user" {
			last = text
			break
		}
	}
	return offlineAnswers[classify(last)], nil
}

func classify(prompt string) string {
	lower := strings.ToLower(prompt) + " "
	for _, it := range offlineIntents {
		for _, kw := range it.keywords {
			if strings.Contains(lower, kw) {
				return it.intent
			}
		}
	}
	return "unknown"
}

// TemplateBrief is the offline interview briefing for one employer
func TemplateBrief(company, position string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Interview prep: %s at %s\n\n", orDefault(position, "the role"), company)
	b.WriteString("About the company: read their careers page, recent news and engineering blog; note values and stack.\n\n")
	b.WriteString("Likely questions:\n")
	for _, q := range []string{
		"Tell us about yourself.",
		"Why do you want to join " + company + "?",
		"Describe a difficult project and your role in it.",
		"How do you handle disagreement in a team?",
		"What are your salary expectations?",
	} {
		b.WriteString("• " + q + "\n")
	}
	b.WriteString("\nAsk them: team size, how success is measured, what the first 90 days look like.")
	return b.String()
}

// TemplateLetter is the offline acceptance letter
func TemplateLetter(out *models.NegotiationOutcome, profile *models.Profile, position string) string {
	name := "Candidate"
	if profile != nil && profile.Name != "" {
		name = profile.Name
	}
	company := orDefault(out.Company, "the team")
	return fmt.Sprintf(
		"Dear %s,\n\nThank you for the offer for the %s position. I am happy to accept it at %d %s.\n"+
			"I look forward to the next steps and to joining the team.\n\nBest regards,\n%s",
		company, orDefault(position, "offered"), out.Winner.FinalOffer, out.Currency, name,
	)
}

// offlineHandlers are template-backed handlers for the kinds Specs covers. They never call out.
func offlineHandlers() map[models.CapabilityKind]capability.Handler {
	return map[models.CapabilityKind]capability.Handler{
		models.CapTextGenerate: TextHandler(Offline{}),
		models.CapInterviewPrep: func(_ context.Context, p models.Payload) (*models.Result, error) {
			company, position := target(p)
			if company == "" {
				return nil, fmt.Errorf("interview-prep: no company given")
			}
			brief := TemplateBrief(company, position)
			return &models.Result{Text: brief, Brief: &models.InterviewBrief{Company: company, Position: position, Brief: brief}}, nil
		},
		models.CapFinalize: func(_ context.Context, p models.Payload) (*models.Result, error) {
			if p.Outcome == nil {
				return nil, fmt.Errorf("finalize: missing negotiation outcome")
			}
			_, position := target(p)
			return &models.Result{Text: TemplateLetter(p.Outcome, p.Profile, position)}, nil
		},
	}
}
