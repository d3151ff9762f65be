// Package llm speaks the OpenAI-compatible chat-completions API used by the
// generation upstream. The client is side-effect free with respect to billing:
// it either returns generated text or a classified failure.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/noteforge/noteforge/internal/config"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second

	// Output budget scales with requested pages so long documents are not truncated.
	baseMaxTokens    = 2048
	perPageMaxTokens = 1536
)

// StatusError is a non-2xx reply from the upstream.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Transient reports whether the status is worth another attempt.
func (e *StatusError) Transient() bool {
	switch e.Status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529: // vendor overload
		return true
	}
	return false
}

type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxAttempts int
	retryDelay  time.Duration
	httpClient  *http.Client
	log         *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &Client{
		apiKey:      cfg.LLMAPIKey,
		baseURL:     strings.TrimRight(cfg.LLMBaseURL, "/"),
		model:       cfg.LLMModel,
		maxAttempts: attempts,
		retryDelay:  delay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate runs the prompt against the upstream, retrying transient failures
// up to the attempt budget with a fixed delay between attempts. Non-transient
// statuses abort immediately without consuming remaining attempts.
func (c *Client) Generate(ctx context.Context, prompt string, pageCount int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   MaxTokensFor(pageCount),
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.attempt(ctx, endpoint, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		statusErr, isStatus := asStatusError(err)
		if isStatus && !statusErr.Transient() {
			if c.log != nil {
				c.log.Error("generation aborted on terminal status", "status", statusErr.Status, "attempt", attempt)
			}
			return "", err
		}

		if attempt < c.maxAttempts {
			if c.log != nil {
				c.log.Warn("generation attempt failed, retrying", "attempt", attempt, "max_attempts", c.maxAttempts, "err", err)
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	return "", fmt.Errorf("all %d attempts failed: %w", c.maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post upstream: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		return "", &StatusError{Status: resp.StatusCode, Body: truncateBody(rawBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("upstream error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty completion in response")
	}

	return parsed.Choices[0].Message.Content, nil
}

// MaxTokensFor returns the output budget for a page count.
func MaxTokensFor(pageCount int) int {
	if pageCount < 1 {
		pageCount = 1
	}
	return baseMaxTokens + perPageMaxTokens*pageCount
}

func asStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
