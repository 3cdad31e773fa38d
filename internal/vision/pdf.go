package vision

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	maxPDFChars = 20000
	maxPDFPages = 100
)

// IsPDF checks the declared type, the file name and finally the magic bytes
func IsPDF(mimeType, fileName string, data []byte) bool {
	if mimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(fileName), ".pdf") {
		return true
	}
	return len(data) > 4 && http.DetectContentType(data) == "application/pdf"
}

// ExtractPDFText returns the plain text of every page, capped at limit characters
func ExtractPDFText(data []byte, limit int) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}
	if total > maxPDFPages {
		return "", fmt.Errorf("PDF has too many pages (%d), max allowed is %d", total, maxPDFPages)
	}

	var b strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		// unreadable pages are skipped
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
		if limit > 0 && b.Len() >= limit {
			break
		}
	}

	out := b.String()
	if limit > 0 && len(out) > limit {
		out = truncateUTF8(out, limit)
	}
	return out, nil
}

func truncateUTF8(s string, n int) string {
	r := strings.NewReader(s)
	var b strings.Builder
	for b.Len() < n {
		ch, size, err := r.ReadRune()
		if err == io.EOF || b.Len()+size > n {
			break
		}
		b.WriteRune(ch)
	}
	return b.String()
}
