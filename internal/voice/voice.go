// Package voice converts voice messages to text.
package voice

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrDisabled is returned by Disabled for every call.
var ErrDisabled = errors.New("speech to text disabled")

// ErrNoSpeech is returned when a recording produced no text.
var ErrNoSpeech = errors.New("no speech recognized")

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Config holds the configuration for the Whisper transcriber.
type Config struct {
	APIKey   string
	Model    string
	Language string
	BaseURL  string
}

// Whisper transcribes audio with the OpenAI transcription API.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisper creates a Whisper transcriber. Model defaults to whisper-1
// and Language to "en".
func NewWhisper(cfg Config) *Whisper {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	w := &Whisper{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		language: cfg.Language,
	}
	if w.model == "" {
		w.model = openai.Whisper1
	}
	if w.language == "" {
		w.language = "en"
	}
	return w
}

// Transcribe uploads the file at path and returns the recognized text.
func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe %s: %w", filepath.Base(path), err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// Disabled rejects every transcription.
type Disabled struct{}

// Transcribe always returns ErrDisabled.
func (Disabled) Transcribe(context.Context, string) (string, error) {
	return "", ErrDisabled
}
