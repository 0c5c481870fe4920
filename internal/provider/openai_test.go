package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meywd/benchforge/internal/config"
)

func newTestClient(url string) *OpenAIClient {
	return NewOpenAIClient(config.ProviderConfig{Name: "test", BaseURL: url, APIKey: "sk-test"})
}

func chatRequest() *ChatRequest {
	return &ChatRequest{
		ModelID:  "model-1",
		Messages: []Message{{Role: "user", Content: "What is 6 x 7?"}},
	}
}

func TestInvokeParsesChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Missing auth header, got %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "42"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 1, "total_tokens": 13}
		}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Invoke(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Content != "42" || resp.FinishReason != "stop" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("Expected 13 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestInvokeMapsRateLimitToRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Invoke(context.Background(), chatRequest())
	ie := AsInvocationError(err)
	if ie.Code != ErrCodeRateLimit {
		t.Fatalf("Expected RATE_LIMIT, got %s", ie.Code)
	}
	if !ie.Retryable {
		t.Error("Rate limit errors should be retryable")
	}
	if ie.Message != "rate limited" {
		t.Errorf("Provider message should be preserved, got %q", ie.Message)
	}
}

func TestInvokeMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		code      string
		retryable bool
	}{
		{http.StatusUnauthorized, ErrCodeAuth, false},
		{http.StatusBadRequest, ErrCodeInvalidRequest, false},
		{http.StatusInternalServerError, ErrCodeNetwork, true},
		{http.StatusGatewayTimeout, ErrCodeTimeout, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := newTestClient(srv.URL).Invoke(context.Background(), chatRequest())
		srv.Close()

		ie := AsInvocationError(err)
		if ie.Code != tc.code || ie.Retryable != tc.retryable {
			t.Errorf("Status %d mapped to (%s, retryable=%t), want (%s, retryable=%t)",
				tc.status, ie.Code, ie.Retryable, tc.code, tc.retryable)
		}
	}
}

func TestRegistryRejectsUnknownProvider(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("missing"); err == nil {
		t.Fatal("Expected an error for an unregistered provider")
	}
}
