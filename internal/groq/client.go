// Package groq is a minimal client for the Groq OpenAI-compatible
// chat-completions endpoint.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lfarias/groqchat/internal/prompt"
)

// DefaultModel is used when a request does not name a model.
const DefaultModel = "llama3-70b-8192"

// temperature is fixed for all turns; sampling policy is not part of the
// request surface.
const temperature = 0.7

// Models returns the advertised model identifiers. The list is closed, not
// discovered; unknown models pass through and fail at the provider.
func Models() []string {
	return []string{
		"llama3-70b-8192",
		"gemma2-9b-it",
		"mixtral-8x7b-32768",
	}
}

type Client struct {
	apiKey string
	url    string
	http   *http.Client
}

func NewClient(apiKey, url string, timeout time.Duration) *Client {
	return &Client{
		apiKey: apiKey,
		url:    url,
		http:   &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []prompt.Turn `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatCompletion sends the assembled turns to the provider and returns the
// reply text. No internal retry: network errors, non-2xx statuses, and
// malformed bodies all surface to the caller.
func (c *Client) ChatCompletion(ctx context.Context, model string, turns []prompt.Turn) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    turns,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling groq request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating groq request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading groq response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("groq: status %d: %s", resp.StatusCode, truncate(string(respBody), 400))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("groq: unmarshal: %s", truncate(string(respBody), 400))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("groq: response has no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("groq: empty completion content")
	}
	return content, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
