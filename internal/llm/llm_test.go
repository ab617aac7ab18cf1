package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGemini_Generate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "key-123" {
			t.Errorf("x-goog-api-key: got %q, want %q", got, "key-123")
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("request contents: got %+v", req.Contents)
		}
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{{Text: "  {\"intent\":"}, {Text: "\"listEmails\"} "}}},
			}},
		})
	}))
	defer server.Close()

	g := NewGemini(GeminiConfig{APIKey: "key-123", Model: "test-model", BaseURL: server.URL + "/"})
	out, err := g.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"intent":"listEmails"}` {
		t.Errorf("output: got %q", out)
	}
	if g.Name() != "gemini" {
		t.Errorf("Name(): got %q", g.Name())
	}
}

func TestGemini_RateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(geminiResponse{Error: &geminiError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}})
	}))
	defer server.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", Model: "m", BaseURL: server.URL})
	_, err := g.Generate(context.Background(), "hi")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Message != "quota" {
		t.Errorf("StatusError: got %+v", statusErr)
	}
}

func TestGemini_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		isEmpty bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops"},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`, isEmpty: true},
		{name: "empty text", status: http.StatusOK, body: `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`, isEmpty: true},
		{name: "not json", status: http.StatusOK, body: "<html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := NewGemini(GeminiConfig{APIKey: "k", Model: "m", BaseURL: server.URL})
			_, err := g.Generate(context.Background(), "hi")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if IsRateLimited(err) {
				t.Errorf("error should not be rate limited: %v", err)
			}
			if got := errors.Is(err, ErrEmptyResponse); got != tt.isEmpty {
				t.Errorf("ErrEmptyResponse: got %v, want %v (%v)", got, tt.isEmpty, err)
			}
		})
	}
}

func TestOpenAI_Generate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" Dear Alice, "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	out, err := o.Generate(context.Background(), "write")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Dear Alice," {
		t.Errorf("output: got %q", out)
	}
}

func TestOpenAI_RateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	_, err := o.Generate(context.Background(), "write")
	if !IsRateLimited(err) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

// fakeGenerator returns queued results in order.
type fakeGenerator struct {
	results []error
	calls   atomic.Int32
}

func (f *fakeGenerator) Generate(context.Context, string) (string, error) {
	n := int(f.calls.Add(1)) - 1
	if n < len(f.results) && f.results[n] != nil {
		return "", f.results[n]
	}
	return "ok", nil
}

func (f *fakeGenerator) Name() string { return "fake" }

func TestRetrying(t *testing.T) {
	t.Parallel()

	rateLimited := &StatusError{Provider: "fake", StatusCode: http.StatusTooManyRequests}
	permanent := errors.New("bad prompt")

	tests := []struct {
		name      string
		results   []error
		wantErr   bool
		wantCalls int32
	}{
		{name: "first call succeeds", results: nil, wantCalls: 1},
		{name: "recovers after rate limit", results: []error{rateLimited, rateLimited}, wantCalls: 3},
		{name: "gives up after three attempts", results: []error{rateLimited, rateLimited, rateLimited, rateLimited}, wantErr: true, wantCalls: 3},
		{name: "other errors are not retried", results: []error{permanent}, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeGenerator{results: tt.results}
			r := NewRetrying(fake, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})

			out, err := r.Generate(context.Background(), "p")
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && out != "ok" {
				t.Errorf("output: got %q, want ok", out)
			}
			if got := fake.calls.Load(); got != tt.wantCalls {
				t.Errorf("calls: got %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRetrying_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	fake := &fakeGenerator{results: []error{&StatusError{StatusCode: http.StatusTooManyRequests}}}
	r := NewRetrying(fake, RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Generate(ctx, "p")
	if err == nil || !strings.Contains(err.Error(), "context cancelled") {
		t.Errorf("error: got %v, want context cancellation", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want time.Duration
	}{
		{n: 0, want: 1 * time.Second},
		{n: 1, want: 2 * time.Second},
		{n: 2, want: 4 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(time.Second, tt.n); got != tt.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	_, err := Disabled{}.Generate(context.Background(), "p")
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("error: got %v, want ErrDisabled", err)
	}
}
