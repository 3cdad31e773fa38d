package llm

import (
	"context"
	"fmt"
	"strings"

	"magabot/internal/capability"
	"magabot/internal/models"
)

const assistantPrompt = `You are magabot, a concise career assistant in a chat.
Answer in the user's language unless asked otherwise. Keep answers short enough for a chat message.
Use plain text with at most light Markdown (bold, lists).`

// Completer is the part of Client the handlers need
type Completer interface {
	Complete(ctx context.Context, messages []Message, maxTokens int) (string, error)
}

// TextHandler answers free-form questions (text-generate)
func TextHandler(c Completer) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		question := strings.TrimSpace(p.Text)
		if question == "" {
			return nil, fmt.Errorf("text-generate: empty prompt")
		}
		messages := []Message{System(withLanguage(assistantPrompt, p.Language)), User(question)}
		answer, err := c.Complete(ctx, messages, 800)
		if err != nil {
			return nil, err
		}
		return &models.Result{Text: answer}, nil
	}
}

// InterviewPrepHandler prepares a company briefing and likely questions (interview-prep)
func InterviewPrepHandler(c Completer) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		company, position := target(p)
		if company == "" {
			return nil, fmt.Errorf("interview-prep: no company given")
		}

		var prompt strings.Builder
		fmt.Fprintf(&prompt, "I have an interview for the %s position at %s.\n", position, company)
		prompt.WriteString("1. Summarize what is publicly known about the company: values, culture, tech stack.\n")
		prompt.WriteString("2. List the 7 most likely interview questions for this role with a one-line hint each.\n")
		prompt.WriteString("3. Suggest 3 questions I should ask them.\n")
		if p.Profile != nil && p.Profile.Name != "" {
			fmt.Fprintf(&prompt, "The candidate's name is %s.\n", p.Profile.Name)
		}

		brief, err := c.Complete(ctx, []Message{System(withLanguage(assistantPrompt, p.Language)), User(prompt.String())}, 1500)
		if err != nil {
			return nil, err
		}
		return &models.Result{
			Text:  brief,
			Brief: &models.InterviewBrief{Company: company, Position: position, Brief: brief},
		}, nil
	}
}

// FinalizeHandler drafts the offer acceptance letter (finalize)
func FinalizeHandler(c Completer) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		if p.Outcome == nil {
			return nil, fmt.Errorf("finalize: missing negotiation outcome")
		}
		company, position := target(p)
		if company == "" {
			company = p.Outcome.Company
		}

		name := "the candidate"
		if p.Profile != nil && p.Profile.Name != "" {
			name = p.Profile.Name
		}
		prompt := fmt.Sprintf(
			"Write a short, polite offer acceptance letter from %s to %s for the %s position "+
				"at an agreed salary of %d %s. Mention that the candidate looks forward to the next steps. "+
				"Return only the letter text.",
			name, orDefault(company, "the employer"), orDefault(position, "offered"), p.Outcome.Winner.FinalOffer, p.Outcome.Currency,
		)

		letter, err := c.Complete(ctx, []Message{System(withLanguage(assistantPrompt, p.Language)), User(prompt)}, 600)
		if err != nil {
			return nil, err
		}
		return &models.Result{Text: letter}, nil
	}
}

// Specs builds the registry entries backed by the chat model. The fallback
// provider backs the same kinds; without one the offline templates do. A nil
// primary registers the offline handlers alone.
func Specs(primary, fallback Completer) []capability.Spec {
	type entry struct {
		kind        models.CapabilityKind
		class       models.LatencyClass
		description string
		build       func(Completer) capability.Handler
	}
	entries := []entry{
		{models.CapTextGenerate, models.ClassSlow, "Free-form answers", TextHandler},
		{models.CapInterviewPrep, models.ClassSlow, "Interview briefing", InterviewPrepHandler},
		{models.CapFinalize, models.ClassSlow, "Offer acceptance letter", FinalizeHandler},
	}

	offline := offlineHandlers()
	specs := make([]capability.Spec, 0, len(entries))
	for _, e := range entries {
		spec := capability.Spec{
			Kind:        e.kind,
			Class:       e.class,
			Description: e.description,
		}
		switch {
		case primary == nil:
			spec.Primary = offline[e.kind]
			spec.Description += " (offline)"
		case fallback != nil:
			spec.Primary = e.build(primary)
			spec.Fallback = e.build(fallback)
		default:
			spec.Primary = e.build(primary)
			spec.Fallback = offline[e.kind]
		}
		specs = append(specs, spec)
	}
	return specs
}

func target(p models.Payload) (company, position string) {
	if p.Posting != nil {
		company, position = p.Posting.Company, p.Posting.Title
	}
	if company == "" {
		company = p.Context["company"]
	}
	if position == "" {
		position = p.Context["position"]
	}
	if position == "" {
		position = p.Text
	}
	return strings.TrimSpace(company), strings.TrimSpace(position)
}

func withLanguage(prompt, language string) string {
	if language == "" {
		return prompt
	}
	return prompt + "\nReply in language: " + language + "."
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
