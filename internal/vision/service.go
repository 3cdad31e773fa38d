package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"magabot/internal/capability"
	"magabot/internal/llm"
	"magabot/internal/models"
)

const defaultOCRPrompt = "Extract all text from this image exactly as written. " +
	"Keep the line structure. If there is no text, describe the image in one sentence."

// Describer reads images through a vision-capable chat model
type Describer struct {
	client llm.Completer
	name   string
}

// NewDescriber wraps a chat client whose model accepts image input
func NewDescriber(client llm.Completer, name string) *Describer {
	return &Describer{client: client, name: name}
}

// DescribeRequest contains parameters for image analysis
type DescribeRequest struct {
	ImageData []byte
	MimeType  string
	Question  string // optional, defaults to plain text extraction
}

// Describe sends the image inline as a data URL and returns the model's answer
func (d *Describer) Describe(ctx context.Context, req DescribeRequest) (string, error) {
	if len(req.ImageData) == 0 {
		return "", fmt.Errorf("empty image")
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", fmt.Errorf("unsupported image type %q", mimeType)
	}

	log.Printf("🔍 [VISION] Analyzing image (%d bytes, %s) via %s", len(req.ImageData), mimeType, d.name)

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(req.ImageData))
	prompt := defaultOCRPrompt
	if q := strings.TrimSpace(req.Question); q != "" {
		prompt = q
	}

	messages := []llm.Message{{
		Role: "user",
		Content: []llm.ContentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &llm.ImageURL{URL: dataURL, Detail: "auto"}},
		},
	}}
	answer, err := d.client.Complete(ctx, messages, 1000)
	if err != nil {
		return "", fmt.Errorf("vision call failed: %w", err)
	}
	if answer == "" {
		return "", fmt.Errorf("no response from vision model")
	}
	return answer, nil
}

// OCRHandler is the ocr capability. PDFs with a text layer are read locally;
// images and scanned PDFs go to the vision model.
func OCRHandler(d *Describer) capability.Handler {
	return func(ctx context.Context, p models.Payload) (*models.Result, error) {
		if len(p.Image) == 0 {
			return nil, fmt.Errorf("ocr: no attachment")
		}

		if IsPDF(p.MimeType, p.FileName, p.Image) {
			text, err := ExtractPDFText(p.Image, maxPDFChars)
			if err == nil && strings.TrimSpace(text) != "" {
				log.Printf("✅ [VISION] Extracted %d chars from PDF text layer", len(text))
				return &models.Result{Text: text}, nil
			}
			if err != nil {
				log.Printf("⚠️ [VISION] PDF text extraction failed: %v", err)
			}
			return nil, fmt.Errorf("ocr: the PDF has no text layer; send the pages as images")
		}

		if d == nil {
			return nil, fmt.Errorf("ocr: no vision model configured")
		}
		text, err := d.Describe(ctx, DescribeRequest{ImageData: p.Image, MimeType: p.MimeType, Question: p.Text})
		if err != nil {
			return nil, err
		}
		return &models.Result{Text: text}, nil
	}
}

// Spec builds the ocr registry entry. A nil describer still serves PDFs.
func Spec(d *Describer) capability.Spec {
	desc := "Text extraction from images and PDFs"
	if d == nil {
		desc = "Text extraction from PDFs"
	}
	return capability.Spec{
		Kind:        models.CapOCR,
		Class:       models.ClassSlow,
		Description: desc,
		Primary:     OCRHandler(d),
	}
}
