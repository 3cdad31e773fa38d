package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// maxSpeechInput is the /audio/speech input limit in characters
const maxSpeechInput = 4096

// Synthesizer turns text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, format string, err error)
}

// TTSClient calls an OpenAI-compatible /audio/speech endpoint. It asks for
// opus so the result can be sent as a Telegram voice note without transcoding.
type TTSClient struct {
	baseURL    string
	apiKey     string
	model      string
	voice      string
	httpClient *http.Client
}

// NewTTSClient creates a speech synthesis client
func NewTTSClient(baseURL, apiKey, model, voice string, httpClient *http.Client) *TTSClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if model == "" {
		model = "tts-1"
	}
	if voice == "" {
		voice = "alloy"
	}
	return &TTSClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		voice:      voice,
		httpClient: httpClient,
	}
}

// Synthesize returns ogg/opus audio for text
func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", fmt.Errorf("nothing to synthesize")
	}
	if runes := []rune(text); len(runes) > maxSpeechInput {
		text = string(runes[:maxSpeechInput])
	}

	payload, err := json.Marshal(map[string]string{
		"model":           c.model,
		"input":           text,
		"voice":           c.voice,
		"response_format": "opus",
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [SPEECH] TTS API error: %d - %s", resp.StatusCode, string(audio))
		return nil, "", apiError("TTS", resp.StatusCode, audio)
	}
	if len(audio) == 0 {
		return nil, "", fmt.Errorf("TTS returned empty audio")
	}

	log.Printf("✅ [SPEECH] Synthesized %d chars into %d bytes (voice: %s)", len([]rune(text)), len(audio), c.voice)
	return audio, "ogg", nil
}
