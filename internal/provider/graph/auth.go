package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	graphScope = "https://graph.microsoft.com/.default"

	// tokens are renewed this long before the endpoint says they expire.
	tokenExpiryBuffer = 5 * time.Minute
)

// tokenCache hands out one client-credentials access token, shared by all
// concurrent deliveries.
type tokenCache struct {
	tokenURL   string
	form       url.Values
	httpClient *http.Client

	mu      sync.Mutex
	current string
	validTo time.Time
}

func newTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenCache {
	return &tokenCache{
		tokenURL: tokenURL,
		form: url.Values{
			"grant_type":    {"client_credentials"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
			"scope":         {graphScope},
		},
		httpClient: httpClient,
	}
}

// Token returns the cached token while it is still valid.
func (tc *tokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.current != "" && time.Now().Before(tc.validTo) {
		return tc.current, nil
	}
	return tc.fetchLocked(ctx)
}

// ForceRefresh drops the cached token, used after Graph rejects it with 401.
func (tc *tokenCache) ForceRefresh(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.current, tc.validTo = "", time.Time{}
	return tc.fetchLocked(ctx)
}

func (tc *tokenCache) fetchLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.tokenURL, strings.NewReader(tc.form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	lifetime := time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryBuffer
	tc.current, tc.validTo = tr.AccessToken, time.Now().Add(lifetime)
	return tc.current, nil
}
