package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const DefaultAPIBase = "https://api.telegram.org"

// Client is a minimal Bot API client
type Client struct {
	token         string
	apiBase       string
	httpClient    *http.Client
	pollingClient *http.Client
	chunkDelay    time.Duration
}

// NewClient creates a Bot API client for one bot token
func NewClient(token, apiBase string) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	return &Client{
		token:         token,
		apiBase:       strings.TrimSuffix(apiBase, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		pollingClient: &http.Client{Timeout: 60 * time.Second},
		chunkDelay:    300 * time.Millisecond,
	}
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, name)
}

// apiResponse is the Bot API envelope
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (c *Client) postJSON(ctx context.Context, method string, payload any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.httpClient, req)
}

func (c *Client) do(client *http.Client, req *http.Request) (*apiResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("telegram API error %d: %s", resp.StatusCode, string(raw))
	}
	if !out.OK {
		return &out, fmt.Errorf("telegram API error: %s", out.Description)
	}
	return &out, nil
}

// SendMessage sends one message as HTML and falls back to plain text when
// Telegram cannot parse the markup
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := c.postJSON(ctx, "sendMessage", map[string]any{
		"chat_id":    chatID,
		"text":       toHTML(text),
		"parse_mode": "HTML",
	})
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "can't parse entities") {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}

	log.Printf("⚠️ [TELEGRAM] HTML parsing failed, retrying without parse_mode")
	if _, err := c.postJSON(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    stripMarkdown(text),
	}); err != nil {
		return fmt.Errorf("failed to send Telegram message (plain): %w", err)
	}
	return nil
}

// SendText implements dispatch.TextSender. Long texts are split into numbered parts.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	if len(text) <= maxChunkSize {
		return c.SendMessage(ctx, chatID, text)
	}

	chunks := splitChunks(text, maxChunkSize)
	log.Printf("📨 [TELEGRAM] Splitting message (%d chars) into %d chunks", len(text), len(chunks))
	for i, chunk := range chunks {
		chunk = fmt.Sprintf("**[Part %d/%d]**\n\n%s", i+1, len(chunks), chunk)
		if err := c.SendMessage(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i < len(chunks)-1 && c.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.chunkDelay):
			}
		}
	}
	return nil
}

// SendTyping shows the "typing" indicator for about five seconds
func (c *Client) SendTyping(ctx context.Context, chatID string) error {
	_, err := c.postJSON(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": "typing"})
	return err
}

// SendVoice sends OGG/Opus audio as a voice note
func (c *Client) SendVoice(ctx context.Context, chatID string, audio []byte, caption string) error {
	if err := c.sendFile(ctx, "sendVoice", "voice", "voice.ogg", chatID, audio, caption, false); err != nil {
		return err
	}
	log.Printf("🎤 [TELEGRAM] Sent voice to chat %s", chatID)
	return nil
}

// SendDocument sends a file download
func (c *Client) SendDocument(ctx context.Context, chatID string, data []byte, filename, caption string) error {
	if err := c.sendFile(ctx, "sendDocument", "document", filename, chatID, data, caption, true); err != nil {
		return err
	}
	log.Printf("📄 [TELEGRAM] Sent document '%s' to chat %s", filename, chatID)
	return nil
}

func (c *Client) sendFile(ctx context.Context, method, field, filename, chatID string, data []byte, caption string, html bool) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.WriteField("chat_id", chatID)
	if caption != "" {
		if html {
			writer.WriteField("caption", truncateCaption(toHTML(caption)))
			writer.WriteField("parse_mode", "HTML")
		} else {
			writer.WriteField("caption", truncateCaption(caption))
		}
	}
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method(method), &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if _, err := c.do(c.httpClient, req); err != nil {
		return fmt.Errorf("failed to %s: %w", method, err)
	}
	return nil
}

// DownloadFile resolves a file id and returns its bytes and file name
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.method("getFile")+"?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file info: %w", err)
	}
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(resp.Result, &file); err != nil || file.FilePath == "" {
		return nil, "", fmt.Errorf("file not found")
	}

	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", c.apiBase, c.token, file.FilePath)
	dreq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	dresp, err := c.pollingClient.Do(dreq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer dresp.Body.Close()
	if dresp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("file download failed: %d", dresp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(dresp.Body, 20<<20))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	filename := path.Base(file.FilePath)
	log.Printf("📥 [TELEGRAM] Downloaded file: %s (%d bytes)", filename, len(data))
	return data, filename, nil
}

// GetUpdates long-polls for new messages
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	params.Set("allowed_updates", `["message"]`)
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.method("getUpdates")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(c.pollingClient, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", err)
	}
	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return updates, nil
}

// SetWebhook registers the webhook URL with a secret token Telegram echoes back
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	payload := map[string]any{"url": webhookURL, "allowed_updates": []string{"message"}}
	if secret != "" {
		payload["secret_token"] = secret
	}
	if _, err := c.postJSON(ctx, "setWebhook", payload); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.postJSON(ctx, "deleteWebhook", map[string]any{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}
