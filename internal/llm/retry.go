package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shineum/mailbot/internal/metrics"
)

// RetryConfig controls the retrying wrapper.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first rate-limited attempt; it
	// doubles for every further attempt.
	BaseDelay time.Duration
	// RequestsPerMinute paces calls to the backend. Zero disables pacing.
	RequestsPerMinute int
}

// Retrying wraps a Generator, retrying only rate-limited calls with
// exponential backoff. Other failures are returned immediately.
type Retrying struct {
	next        Generator
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
}

// NewRetrying wraps next. Non-positive MaxAttempts and BaseDelay fall back
// to 3 attempts and 1 second.
func NewRetrying(next Generator, cfg RetryConfig) *Retrying {
	r := &Retrying{
		next:        next,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 3
	}
	if r.baseDelay <= 0 {
		r.baseDelay = time.Second
	}
	if cfg.RequestsPerMinute > 0 {
		every := time.Minute / time.Duration(cfg.RequestsPerMinute)
		r.limiter = rate.NewLimiter(rate.Every(every), 1)
	}
	return r
}

// Generate calls the wrapped generator, retrying on rate limiting.
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(r.baseDelay, attempt-1)
			slog.Info("rate limited by text generation backend, retrying",
				"provider", r.next.Name(),
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return "", fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		out, err := r.next.Generate(ctx, prompt)
		if err == nil {
			metrics.RecordGeneration(r.next.Name(), "ok")
			return out, nil
		}
		lastErr = err

		if !IsRateLimited(err) {
			metrics.RecordGeneration(r.next.Name(), "error")
			return "", err
		}
		metrics.RecordGeneration(r.next.Name(), "rate_limited")
	}

	return "", fmt.Errorf("%s: gave up after %d attempts: %w", r.next.Name(), r.maxAttempts, lastErr)
}

// Name returns the wrapped generator's name.
func (r *Retrying) Name() string {
	return r.next.Name()
}

// backoffDelay returns base doubled n times.
func backoffDelay(base time.Duration, n int) time.Duration {
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
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
