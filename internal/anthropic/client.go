// Package anthropic calls the Anthropic messages API for transcript
// summarization.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultModel = "claude-3-haiku-20240307"
	apiVersion   = "2023-06-01"

	// Summaries favor faithfulness over creativity.
	maxTokens   = 768
	temperature = 0.5
)

// Client calls the messages endpoint. There is no local retry loop here;
// summarization failures are left to the scheduler's coarse retry.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewClient creates a client against the public API.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    "https://api.anthropic.com",
		APIKey:     apiKey,
		Model:      defaultModel,
		HTTPClient: http.DefaultClient,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends a system instruction, a user message, and an
// assistant-priming prefix, and returns the text of the first completion
// block.
func (c *Client) Complete(ctx context.Context, system, user, assistantPrefix string) (string, error) {
	reqBody := map[string]any{
		"model":       c.Model,
		"max_tokens":  maxTokens,
		"temperature": temperature,
		"system":      system,
		"messages": []message{
			{Role: "user", Content: user},
			{Role: "assistant", Content: assistantPrefix},
		},
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("completion returned %d: %s", resp.StatusCode, strings.TrimSpace(string(tail)))
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
		return "", fmt.Errorf("completion response had no content")
	}
	return parsed.Content[0].Text, nil
}
