package router

import (
	"fmt"
	"strings"

	"magabot/internal/models"
)

// commandHelp is the command list shown by /help and for unknown commands
var commandHelp = []struct {
	usage string
	about string
}{
	{"/mode auto|text|voice", "change how I reply"},
	{"/ask <question>", "ask anything"},
	{"/say <text>", "read text aloud"},
	{"/ocr (with a photo or PDF)", "extract text from an image or document"},
	{"/jobs [keywords]", "search vacancies"},
	{"/prep <company>", "prepare for an interview"},
	{"/negotiate <amount>", "test a salary ask against the counter-party"},
	{"/autopilot [role]", "start the job-search auto-pilot"},
	{"/status", "show the auto-pilot case"},
	{"/retry", "retry a failed auto-pilot stage"},
	{"/cancel", "stop the running auto-pilot case"},
	{"/export", "download the case report"},
}

// HelpText renders the welcome/help message for the session's current mode
func HelpText(current models.ResponseMode, describe func(models.ResponseMode) string) string {
	var b strings.Builder
	b.WriteString("Hi! I'm your job-search assistant.\n\n")
	fmt.Fprintf(&b, "Current mode: %s\n%s\n\n", current, describe(current))
	b.WriteString("Commands:\n")
	for _, c := range commandHelp {
		fmt.Fprintf(&b, "• %s - %s\n", c.usage, c.about)
	}
	b.WriteString("\nOr just write to me, or send a voice message.")
	return b.String()
}

// UnknownCommandText is the single reply sent for a command outside the grammar
func UnknownCommandText(cmd string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I don't know the command %s.\n\nAvailable commands:\n", cmd)
	for _, c := range commandHelp {
		fmt.Fprintf(&b, "• %s\n", c.usage)
	}
	return b.String()
}

// UsageText returns the usage line for a known command, used when arguments are missing
func UsageText(cmd string) string {
	for _, c := range commandHelp {
		if strings.HasPrefix(c.usage, cmd) {
			return fmt.Sprintf("Usage: %s - %s", c.usage, c.about)
		}
	}
	return ""
}
