package telegram

import (
	"bytes"
	"log"
	"regexp"
	"strings"

	"github.com/leonid-shevtsov/telegold"
	"github.com/yuin/goldmark"
)

// maxChunkSize leaves headroom under Telegram's 4096 character limit
const maxChunkSize = 4000

var markdownConverter = goldmark.New(goldmark.WithRenderer(telegold.NewRenderer()))

// toHTML converts Markdown to the HTML subset Telegram accepts
func toHTML(text string) string {
	var buf bytes.Buffer
	if err := markdownConverter.Convert([]byte(text), &buf); err != nil {
		log.Printf("⚠️ [TELEGRAM] Markdown conversion failed: %v", err)
		return text
	}
	return strings.TrimSpace(buf.String())
}

var (
	codeBlockPattern = regexp.MustCompile("```[a-zA-Z]*\\n([\\s\\S]*?)```")
	headerPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	linkPattern      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// stripMarkdown is the plain text fallback when Telegram rejects the HTML
func stripMarkdown(text string) string {
	text = codeBlockPattern.ReplaceAllString(text, "$1")
	for _, marker := range []string{"**", "__", "`", "~~"} {
		text = strings.ReplaceAll(text, marker, "")
	}
	text = headerPattern.ReplaceAllString(text, "")
	return linkPattern.ReplaceAllString(text, "$1 ($2)")
}

// splitChunks splits text at the nicest boundary in the second half of each chunk
func splitChunks(text string, maxSize int) []string {
	if len(text) <= maxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxSize {
			chunks = append(chunks, remaining)
			break
		}

		chunk := remaining[:maxSize]
		breakPoint := maxSize
		for _, sep := range []string{"\n```", "\n\n", "\n", ". ", " "} {
			if idx := strings.LastIndex(chunk, sep); idx > maxSize/2 {
				breakPoint = idx + len(sep)
				if sep == "\n```" {
					breakPoint = idx + 1
				}
				break
			}
		}
		// never cut a multi-byte rune
		for breakPoint > 0 && breakPoint < len(remaining) && remaining[breakPoint]&0xC0 == 0x80 {
			breakPoint--
		}

		chunks = append(chunks, strings.TrimSpace(remaining[:breakPoint]))
		remaining = strings.TrimSpace(remaining[breakPoint:])
	}
	return chunks
}

func truncateCaption(caption string) string {
	if len(caption) <= 1024 {
		return caption
	}
	cut := 1021
	for cut > 0 && caption[cut]&0xC0 == 0x80 {
		cut--
	}
	return caption[:cut] + "..."
}
