package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	GroqBaseURL   = "https://api.groq.com/openai/v1"
	OpenAIBaseURL = "https://api.openai.com/v1"
)

// Provider is one Whisper-compatible transcription endpoint
type Provider struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// Groq returns the Groq Whisper endpoint (whisper-large-v3)
func Groq(apiKey string) Provider {
	return Provider{Name: "Groq", BaseURL: GroqBaseURL, APIKey: apiKey, Model: "whisper-large-v3"}
}

// OpenAI returns the OpenAI Whisper endpoint (whisper-1)
func OpenAI(apiKey string) Provider {
	return Provider{Name: "OpenAI", BaseURL: OpenAIBaseURL, APIKey: apiKey, Model: "whisper-1"}
}

// Configured reports whether the provider has credentials
func (p Provider) Configured() bool {
	return p.APIKey != "" && p.BaseURL != ""
}

// Clip is one voice note to transcribe
type Clip struct {
	Audio    []byte
	Format   string // file extension: ogg, mp3, wav...
	Language string
	Prompt   string
}

// Transcript is the recognized text of a clip
type Transcript struct {
	Text     string
	Language string
	Duration float64
	Provider string
}

// Transcriber turns audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip) (*Transcript, error)
}

// WhisperClient talks to one Whisper-compatible /audio/transcriptions endpoint
type WhisperClient struct {
	provider   Provider
	httpClient *http.Client
}

// NewWhisperClient creates a client. A nil httpClient gets a 60s timeout client.
func NewWhisperClient(provider Provider, httpClient *http.Client) *WhisperClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &WhisperClient{provider: provider, httpClient: httpClient}
}

// Transcribe uploads the clip as multipart form data and returns the transcript
func (w *WhisperClient) Transcribe(ctx context.Context, clip Clip) (*Transcript, error) {
	if len(clip.Audio) == 0 {
		return nil, fmt.Errorf("empty audio clip")
	}
	format := normalizeFormat(clip.Format)
	if !IsSupportedFormat(format) {
		return nil, fmt.Errorf("unsupported audio format %q", clip.Format)
	}

	log.Printf("🔄 [SPEECH] Sending audio to %s Whisper API (%d bytes, model: %s)", w.provider.Name, len(clip.Audio), w.provider.Model)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "voice."+format)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(clip.Audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio data: %w", err)
	}

	fields := map[string]string{
		"model":           w.provider.Model,
		"response_format": "verbose_json",
		"language":        clip.Language,
		"prompt":          clip.Prompt,
	}
	for _, name := range []string{"model", "response_format", "language", "prompt"} {
		if fields[name] == "" {
			continue
		}
		if err := writer.WriteField(name, fields[name]); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := strings.TrimRight(w.provider.BaseURL, "/") + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+w.provider.APIKey)

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [SPEECH] %s Whisper API error: %d - %s", w.provider.Name, resp.StatusCode, string(respBody))
		return nil, apiError(w.provider.Name+" Whisper", resp.StatusCode, respBody)
	}

	var apiResp struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	log.Printf("✅ [SPEECH] %s transcription successful (%d chars, %.1fs duration)", w.provider.Name, len(apiResp.Text), apiResp.Duration)

	return &Transcript{
		Text:     strings.TrimSpace(apiResp.Text),
		Language: apiResp.Language,
		Duration: apiResp.Duration,
		Provider: w.provider.Name,
	}, nil
}

// apiError extracts the OpenAI-style error message from a failed response
func apiError(api string, status int, body []byte) error {
	var errorResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return fmt.Errorf("%s API error: %s", api, errorResp.Error.Message)
	}
	return fmt.Errorf("%s API error: %d", api, status)
}

// GetSupportedFormats returns the audio file extensions Whisper accepts
func GetSupportedFormats() []string {
	return []string{
		"mp3", "mp4", "mpeg", "mpga", "m4a", "wav", "webm", "ogg", "flac",
	}
}

// IsSupportedFormat checks a file extension or MIME type against GetSupportedFormats
func IsSupportedFormat(format string) bool {
	format = normalizeFormat(format)
	for _, f := range GetSupportedFormats() {
		if f == format {
			return true
		}
	}
	return false
}

// normalizeFormat maps MIME types and Telegram's "oga" to a Whisper file extension
func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	format = strings.TrimPrefix(format, ".")
	if mime, ok := strings.CutPrefix(format, "audio/"); ok {
		format = strings.TrimPrefix(mime, "x-")
	}
	switch format {
	case "", "oga", "opus":
		return "ogg"
	case "wave":
		return "wav"
	}
	return format
}
