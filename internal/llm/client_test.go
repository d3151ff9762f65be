package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noteforge/noteforge/internal/config"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		LLMAPIKey:      "test-key",
		LLMBaseURL:     baseURL,
		LLMModel:       "test-model",
		RequestTimeout: 5 * time.Second,
		MaxAttempts:    3,
		RetryDelay:     20 * time.Millisecond,
	}
}

func completionBody(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return body
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(completionBody("<!DOCTYPE html><html></html>"))
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	start := time.Now()
	text, err := client.Generate(context.Background(), "prompt", 1)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
	if text == "" {
		t.Fatal("expected generated text")
	}
	// Two inter-attempt delays must have elapsed.
	if elapsed < 2*20*time.Millisecond {
		t.Fatalf("retries not spaced by the configured delay, elapsed %v", elapsed)
	}
}

func TestGenerateAbortsOnTerminalStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	_, err := client.Generate(context.Background(), "prompt", 1)
	if err == nil {
		t.Fatal("expected error for terminal status")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("terminal status must not consume retries, got %d attempts", got)
	}

	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("expected StatusError with 400, got %v", err)
	}
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL), nil)

	_, err := client.Generate(context.Background(), "prompt", 1)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected all 3 attempts, got %d", got)
	}
}

func TestStatusErrorClassification(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504, 529}
	for _, status := range transient {
		if !(&StatusError{Status: status}).Transient() {
			t.Errorf("status %d should be transient", status)
		}
	}
	terminal := []int{400, 401, 403, 404, 422}
	for _, status := range terminal {
		if (&StatusError{Status: status}).Transient() {
			t.Errorf("status %d should be terminal", status)
		}
	}
}

func TestMaxTokensScalesWithPages(t *testing.T) {
	one := MaxTokensFor(1)
	five := MaxTokensFor(5)
	if five <= one {
		t.Fatalf("multi-page budget should exceed single page: %d vs %d", five, one)
	}
	if MaxTokensFor(0) != one {
		t.Fatal("invalid page count should use the single-page budget")
	}
}
