package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTokenServer issues "token-N" for the Nth request with the given lifetime.
func newTokenServer(t *testing.T, expiresIn int64, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type: got %q, want %q", got, "client_credentials")
		}
		if got := r.FormValue("scope"); got != "https://graph.microsoft.com/.default" {
			t.Errorf("scope: got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: fmt.Sprintf("token-%d", n),
			ExpiresIn:   expiresIn,
			TokenType:   "Bearer",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenCache(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		expiresIn int64
		force     bool
		wantToken string
		wantCalls int32
	}{
		{name: "cached", expiresIn: 3600, wantToken: "token-1", wantCalls: 1},
		// A lifetime shorter than the expiry buffer is already stale.
		{name: "expired", expiresIn: 1, wantToken: "token-2", wantCalls: 2},
		{name: "forced", expiresIn: 3600, force: true, wantToken: "token-2", wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			srv := newTokenServer(t, tt.expiresIn, &calls)
			tc := newTokenCache(srv.URL, "cid", "secret", srv.Client())
			ctx := context.Background()

			if _, err := tc.Token(ctx); err != nil {
				t.Fatalf("first Token: %v", err)
			}
			var token string
			var err error
			if tt.force {
				token, err = tc.ForceRefresh(ctx)
			} else {
				token, err = tc.Token(ctx)
			}
			if err != nil {
				t.Fatalf("second call: %v", err)
			}
			if token != tt.wantToken {
				t.Errorf("token: got %q, want %q", token, tt.wantToken)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("token requests: got %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "shared", ExpiresIn: 3600})
	}))
	defer srv.Close()

	tc := newTokenCache(srv.URL, "cid", "secret", srv.Client())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := tc.Token(context.Background())
			if err != nil || token != "shared" {
				t.Errorf("Token: got %q, %v", token, err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("token requests: got %d, want 1", got)
	}
}

func TestTokenCache_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"internal"}`))
		}},
		{"empty token", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(tokenResponse{ExpiresIn: 3600})
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			tc := newTokenCache(srv.URL, "cid", "secret", srv.Client())
			if _, err := tc.Token(context.Background()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
