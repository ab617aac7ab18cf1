// Package main is the entry point for the mail bot.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shineum/mailbot/internal/attachment"
	"github.com/shineum/mailbot/internal/bot"
	"github.com/shineum/mailbot/internal/command"
	"github.com/shineum/mailbot/internal/config"
	"github.com/shineum/mailbot/internal/confirm"
	"github.com/shineum/mailbot/internal/llm"
	"github.com/shineum/mailbot/internal/metrics"
	"github.com/shineum/mailbot/internal/provider"
	"github.com/shineum/mailbot/internal/provider/graph"
	"github.com/shineum/mailbot/internal/provider/ses"
	"github.com/shineum/mailbot/internal/provider/smtp"
	"github.com/shineum/mailbot/internal/provider/stdout"
	"github.com/shineum/mailbot/internal/store"
	mbtls "github.com/shineum/mailbot/internal/tls"
	"github.com/shineum/mailbot/internal/transport"
	"github.com/shineum/mailbot/internal/transport/console"
	"github.com/shineum/mailbot/internal/transport/discord"
	"github.com/shineum/mailbot/internal/voice"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration (optional)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("mailbot stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("mailbot stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	prov, err := selectProvider(ctx, cfg)
	if err != nil {
		return err
	}
	gen := selectGenerator(cfg)

	confirmations := confirm.NewManager(prov, cfg.Bot.ConfirmTimeout)
	defer confirmations.Close()

	b := bot.New(bot.Config{
		Store:       db,
		Parser:      command.NewParser(gen, cfg.Bot.DefaultSender),
		Writer:      gen,
		Confirm:     confirmations,
		Downloader:  attachment.NewDownloader(cfg.Bot.AttachmentDir),
		Transcriber: selectTranscriber(cfg),
	})

	if cfg.Metrics.Listen != "" {
		if err := startMetrics(ctx, cfg.Metrics); err != nil {
			return err
		}
	}

	slog.Info("starting mailbot",
		"transport", cfg.Bot.Transport,
		"provider", prov.Name(),
		"llm", gen.Name(),
		"store", cfg.Store.Path,
		"confirm_timeout", cfg.Bot.ConfirmTimeout,
		"voice_enabled", cfg.VoiceEnabled(),
	)

	return runTransport(ctx, cfg, b)
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectProvider chooses the email delivery backend. An explicit PROVIDER
// wins; otherwise the first configured of Graph, SES and SMTP is used,
// falling back to stdout.
func selectProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	name := cfg.DeliveryProvider()
	switch name {
	case "graph":
		slog.Info("using Microsoft Graph provider", "sender", cfg.Graph.Sender)
		return graph.New(graph.Config{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
			MaxRetries:   cfg.DeliveryRetries,
		}), nil

	case "ses":
		slog.Info("using AWS SES provider", "region", cfg.SES.Region, "sender", cfg.SES.Sender)
		p, err := ses.New(ctx, ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
			MaxRetries:      cfg.DeliveryRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case "smtp":
		slog.Info("using SMTP provider",
			"host", cfg.SMTP.Host,
			"port", cfg.SMTP.Port,
			"security", cfg.SMTP.Security,
		)
		p, err := smtp.New(smtp.Config{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Security:           cfg.SMTP.Security,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			From:               cfg.SMTP.From,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			MaxRetries:         cfg.DeliveryRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SMTP provider: %w", err)
		}
		return p, nil

	case "stdout":
		slog.Info("using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// selectGenerator builds the text generation backend wrapped with rate
// limit retries. Without a backend every caller uses its fallback.
func selectGenerator(cfg *config.Config) llm.Generator {
	var next llm.Generator
	switch cfg.GenerationProvider() {
	case "gemini":
		next = llm.NewGemini(llm.GeminiConfig{
			APIKey:  cfg.LLM.Gemini.APIKey,
			Model:   cfg.LLM.Gemini.Model,
			BaseURL: cfg.LLM.Gemini.BaseURL,
		})
	case "openai":
		next = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		})
	default:
		slog.Warn("no text generation backend configured, using keyword rules and templates")
		return llm.Disabled{}
	}
	return llm.NewRetrying(next, llm.RetryConfig{
		MaxAttempts:       cfg.LLM.MaxAttempts,
		BaseDelay:         cfg.LLM.BaseDelay,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
}

func selectTranscriber(cfg *config.Config) voice.Transcriber {
	if !cfg.VoiceEnabled() {
		return voice.Disabled{}
	}
	return voice.NewWhisper(voice.Config{
		APIKey:   cfg.LLM.OpenAI.APIKey,
		Model:    cfg.Voice.Model,
		Language: cfg.Voice.Language,
		BaseURL:  cfg.LLM.OpenAI.BaseURL,
	})
}

// startMetrics serves /metrics and /health in the background. With TLS
// enabled and no certificate files a self-signed certificate is used.
func startMetrics(ctx context.Context, cfg config.MetricsConfig) error {
	var tlsConfig *tls.Config
	if cfg.TLS {
		var err error
		tlsConfig, err = mbtls.ServerConfig(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to setup metrics TLS: %w", err)
		}
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Listen, tlsConfig); err != nil {
			slog.Error("metrics listener failed", "error", err)
		}
	}()
	return nil
}

func runTransport(ctx context.Context, cfg *config.Config, h transport.Handler) error {
	switch cfg.Bot.Transport {
	case "discord":
		t, err := discord.New(cfg.Bot.DiscordToken)
		if err != nil {
			return err
		}
		return t.Run(ctx, h)
	case "console":
		return console.New(os.Stdin, os.Stdout).Run(ctx, h)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Bot.Transport)
	}
}
