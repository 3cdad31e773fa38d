package dispatch

import (
	"fmt"
	"strings"
	"time"

	"magabot/internal/guard"
	"magabot/internal/models"
)

// ReplyKind is how a reply is delivered
type ReplyKind string

const (
	ReplyText     ReplyKind = "text"
	ReplyVoice    ReplyKind = "voice"
	ReplyDocument ReplyKind = "document"
)

// Reply is one outbound message produced for an inbound event. Transports
// deliver replies in order.
type Reply struct {
	Kind     ReplyKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Audio    []byte    `json:"audio,omitempty"`
	Format   string    `json:"format,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	Data     []byte    `json:"data,omitempty"`
}

func textReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

func textReplyf(format string, args ...interface{}) Reply {
	return textReply(fmt.Sprintf(format, args...))
}

func throttledText(d guard.Decision) string {
	wait := d.RetryAfter.Round(time.Second)
	if wait < time.Second {
		wait = time.Second
	}
	if d.Reason == guard.ReasonGlobal {
		return fmt.Sprintf("⏳ I'm handling too many requests right now. Please try again in %s.", wait)
	}
	return fmt.Sprintf("⏳ You're sending requests too fast. Please try again in %s.", wait)
}

var capabilityLabels = map[models.CapabilityKind]string{
	models.CapTextGenerate:     "Answering",
	models.CapSpeechSynthesize: "Speech synthesis",
	models.CapSpeechRecognize:  "Speech recognition",
	models.CapOCR:              "Text recognition",
	models.CapJobSearch:        "Job search",
	models.CapApply:            "Applying",
	models.CapInterviewPrep:    "Interview preparation",
	models.CapNegotiate:        "Negotiation",
	models.CapFinalize:         "Finalizing the offer",
}

func label(kind models.CapabilityKind) string {
	if l, ok := capabilityLabels[kind]; ok {
		return l
	}
	return string(kind)
}

// formatPostings renders search results for the chat
func formatPostings(postings []models.Posting, limit int) string {
	if len(postings) == 0 {
		return "🔎 No vacancies found for these criteria."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Found %d vacancies:\n", len(postings))
	for i, p := range postings {
		if i == limit {
			fmt.Fprintf(&b, "…and %d more", len(postings)-limit)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s, %s", i+1, p.Title, p.Company)
		if s := salaryRange(p); s != "" {
			fmt.Fprintf(&b, " (%s)", s)
		}
		if p.URL != "" {
			fmt.Fprintf(&b, "\n   %s", p.URL)
		}
	}
	return b.String()
}

func salaryRange(p models.Posting) string {
	switch {
	case p.SalaryFrom > 0 && p.SalaryTo > 0:
		return fmt.Sprintf("%d-%d %s", p.SalaryFrom, p.SalaryTo, p.Currency)
	case p.SalaryFrom > 0:
		return fmt.Sprintf("from %d %s", p.SalaryFrom, p.Currency)
	case p.SalaryTo > 0:
		return fmt.Sprintf("up to %d %s", p.SalaryTo, p.Currency)
	}
	return ""
}

func formatCounter(c *models.CounterOffer) string {
	switch {
	case c == nil:
		return "🤝 The counter-party did not answer."
	case c.Accepted:
		return fmt.Sprintf("🤝 Accepted: %d. %s", c.Amount, c.Message)
	case c.Final:
		return fmt.Sprintf("🤝 Final counter-offer: %d. %s", c.Amount, c.Message)
	}
	return fmt.Sprintf("🤝 Counter-offer: %d. %s", c.Amount, c.Message)
}
