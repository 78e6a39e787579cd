// Package deepgram calls the Deepgram speech-recognition API and knows how
// to navigate the transcripts it returns.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sbbp/pipeline/internal/retry"
)

// ProviderFormat tags stored transcripts so downstream consumers know how
// to navigate them.
const ProviderFormat = "deepgram_v1"

// requestTimeout bounds one transcription call. Long videos still come
// back well within this.
const requestTimeout = 5 * time.Minute

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepgram returned %d: %s", e.Code, e.Body)
}

// RetryableStatus reports whether a response status is worth retrying:
// server errors, rate limiting, and request timeouts. Everything else,
// including connection failures before any response, is not.
func RetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// Retryable classifies an error for the retry policy.
func Retryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && RetryableStatus(se.Code)
}

// Client calls the Deepgram listen endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Policy     retry.Policy
}

// NewClient creates a client against the public API.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    "https://api.deepgram.com",
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
		Policy:     retry.DefaultPolicy,
	}
}

// Transcribe streams audio to the speech API and returns the raw response
// tagged with the provider format. audio is invoked once per attempt so a
// retry re-reads the asset from the start; its failure is not retried,
// since a missing asset is not transient.
func (c *Client) Transcribe(ctx context.Context, tag string, audio func() (io.ReadCloser, error)) (json.RawMessage, error) {
	var result json.RawMessage
	err := retry.Do(ctx, c.Policy, Retryable, func() error {
		raw, err := c.send(ctx, tag, audio)
		if err != nil {
			return err
		}
		result = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) send(ctx context.Context, tag string, audio func() (io.ReadCloser, error)) (json.RawMessage, error) {
	body, err := audio()
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	defer body.Close()

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	q := url.Values{
		"paragraphs":   {"true"},
		"punctuate":    {"true"},
		"utterances":   {"true"},
		"smart_format": {"true"},
		"tag":          {tag},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/listen?"+q.Encode(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "audio/mp4")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(tail))}
	}

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	parsed["_provider_format"] = ProviderFormat

	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	return raw, nil
}
