package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shineum/mailbot/internal/email"
)

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the Azure AD application credentials and the mailbox that
// sends on the bot's behalf.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
	// MaxRetries is how many times a throttled or transient failure is
	// repeated. Zero sends once. A token refresh after 401 is not counted.
	MaxRetries int
}

// Provider sends emails through the sendMail endpoint of the configured
// mailbox, authenticating with the OAuth2 client credentials grant.
type Provider struct {
	sender     string
	graphURL   string
	httpClient *http.Client
	token      *tokenCache
	baseDelay  time.Duration
	maxRetries int
}

// New creates a Provider for cfg.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	graphURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", url.PathEscape(cfg.Sender))
	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a Provider with custom endpoints and client.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Provider {
	return &Provider{
		sender:     cfg.Sender,
		graphURL:   graphURL,
		httpClient: client,
		token:      newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		baseDelay:  baseRetryDelay,
		maxRetries: max(cfg.MaxRetries, 0),
	}
}

// Send delivers msg. A 401 refreshes the token and resends once. With
// MaxRetries set, transient failures are retried with exponential backoff
// and 429 responses honour Retry-After.
func (g *Provider) Send(ctx context.Context, msg *email.Email) error {
	bodyJSON, err := json.Marshal(buildSendMailRequest(g.sender, msg))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	tokenRefreshed := false
	retries := 0

	for {
		err := g.doSendRequest(ctx, bodyJSON)
		if err == nil {
			return nil
		}

		var sendErr *sendError
		if !errors.As(err, &sendErr) {
			return err
		}
		if sendErr.permanent {
			return sendErr
		}

		if sendErr.statusCode == http.StatusUnauthorized && !tokenRefreshed {
			slog.Info("refreshing Graph API token after 401")
			if _, refreshErr := g.token.ForceRefresh(ctx); refreshErr != nil {
				return fmt.Errorf("token refresh failed: %w", refreshErr)
			}
			tokenRefreshed = true
			continue
		}

		throttled := sendErr.statusCode == http.StatusTooManyRequests
		if !throttled && !sendErr.transient {
			return sendErr
		}
		if retries == g.maxRetries {
			if g.maxRetries == 0 {
				return sendErr
			}
			return fmt.Errorf("Graph API request failed after %d retries: %w", g.maxRetries, sendErr)
		}
		retries++

		delay := backoffDelay(g.baseDelay, retries)
		if throttled {
			delay = g.retryAfterDelay(sendErr.retryAfter, retries)
		}
		slog.Info("retrying Graph API request", "status", sendErr.statusCode, "attempt", retries, "delay", delay)
		if err := sleepWithContext(ctx, delay); err != nil {
			return fmt.Errorf("context cancelled during retry wait: %w", err)
		}
	}
}

// Name returns "msgraph".
func (g *Provider) Name() string {
	return "msgraph"
}

func (g *Provider) doSendRequest(ctx context.Context, bodyJSON []byte) error {
	token, err := g.token.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &sendError{message: fmt.Sprintf("HTTP request failed: %v", err), transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := string(body)
	var errResp graphErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return classifyError(resp.StatusCode, message, resp.Header.Get("Retry-After"))
}

// sendError is a failed sendMail call classified for the retry loop.
type sendError struct {
	message    string
	statusCode int
	permanent  bool
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classifyError marks 401, 429 and 5xx as transient and every other
// status as permanent.
func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{message: message, statusCode: statusCode, retryAfter: retryAfter}
	switch {
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		err.transient = true
	default:
		err.permanent = true
	}
	return err
}

// retryAfterDelay honours a Retry-After header in seconds and falls back
// to exponential backoff.
func (g *Provider) retryAfterDelay(retryAfter string, attempt int) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return backoffDelay(g.baseDelay, attempt)
}

// backoffDelay returns the wait before retry number attempt, starting at 1.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
