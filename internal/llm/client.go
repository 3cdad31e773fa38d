package llm

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

// Provider is one OpenAI-compatible chat completions endpoint
type Provider struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// Configured reports whether the provider can be called
func (p Provider) Configured() bool {
	return p.BaseURL != "" && p.APIKey != "" && p.Model != ""
}

// Message is one chat message. Content is a string or a list of content parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an inline data URL or a remote image
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// System and User build plain text messages
func System(text string) Message { return Message{Role: "system", Content: text} }
func User(text string) Message   { return Message{Role: "user", Content: text} }

// Client calls /chat/completions on one provider
type Client struct {
	provider   Provider
	httpClient *http.Client
}

// NewClient creates a chat client. A nil httpClient gets a 120s timeout client.
func NewClient(provider Provider, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	provider.BaseURL = strings.TrimSuffix(provider.BaseURL, "/")
	return &Client{provider: provider, httpClient: httpClient}
}

// Provider returns the endpoint this client talks to
func (c *Client) Provider() Provider {
	return c.provider
}

// Complete sends messages and returns the first choice's content
func (c *Client) Complete(ctx context.Context, messages []Message, maxTokens int) (string, error) {
	requestBody := map[string]interface{}{
		"model":    c.provider.Model,
		"messages": messages,
	}
	if maxTokens > 0 {
		// OpenAI's newer models reject max_tokens
		if strings.Contains(strings.ToLower(c.provider.BaseURL), "openai.com") {
			requestBody["max_completion_tokens"] = maxTokens
		} else {
			requestBody["max_tokens"] = maxTokens
		}
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := c.provider.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(requestJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.provider.APIKey))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [LLM] API error from %s: %d - %s", c.provider.Name, resp.StatusCode, truncate(string(body), 300))
		return "", &APIError{Provider: c.provider.Name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", c.provider.Name)
	}

	content := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	log.Printf("✅ [LLM] %s/%s answered in %v (%d chars)", c.provider.Name, c.provider.Model, time.Since(start).Round(time.Millisecond), len(content))
	return content, nil
}

// APIError is a non-200 answer from a provider
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, parsed.Error.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
}

// IsQuota reports rate limit and quota responses
func (e *APIError) IsQuota() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(e.Body)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
