// Package llm provides the text generation backends used to classify chat
// messages, extract command arguments and draft email bodies.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Generator produces text for a prompt.
type Generator interface {
	// Generate returns the model output for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Name returns the backend name used in logs and metrics.
	Name() string
}

var (
	// ErrRateLimited marks a failure the backend reported as rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse is returned when the backend produced no text.
	ErrEmptyResponse = errors.New("empty response")

	// ErrDisabled is returned by the Disabled generator.
	ErrDisabled = errors.New("text generation disabled")
)

// StatusError is a non-success HTTP status from a generation backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Is reports HTTP 429 as ErrRateLimited.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Disabled is a Generator that always fails, forcing callers onto their
// heuristic fallbacks.
type Disabled struct{}

// Generate always returns ErrDisabled.
func (Disabled) Generate(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// Name returns "none".
func (Disabled) Name() string {
	return "none"
}
