// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Bot      BotConfig   `yaml:"bot"`
	Store    StoreConfig `yaml:"store"`
	LLM      LLMConfig   `yaml:"llm"`
	Voice    VoiceConfig `yaml:"voice"`
	Provider string      `yaml:"provider"`
	// DeliveryRetries is how many times the provider repeats a transient
	// delivery failure after "yes". Zero delivers in one attempt.
	DeliveryRetries int           `yaml:"delivery_retries"`
	SMTP            SMTPConfig    `yaml:"smtp"`
	SES             SESConfig     `yaml:"ses"`
	Graph           GraphConfig   `yaml:"graph"`
	Metrics         MetricsConfig `yaml:"metrics"`
	Logging         LoggingConfig `yaml:"logging"`
}

// BotConfig holds chat transport and conversation settings.
type BotConfig struct {
	Transport      string        `yaml:"transport"`
	DiscordToken   string        `yaml:"discord_token"`
	DefaultSender  string        `yaml:"default_sender"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	AttachmentDir  string        `yaml:"attachment_dir"`
}

// StoreConfig holds the alias database location. An empty path keeps the
// directory in memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig selects and tunes the text generation backend.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Gemini            BackendConfig `yaml:"gemini"`
	OpenAI            BackendConfig `yaml:"openai"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// BackendConfig holds the credentials of one generation backend.
type BackendConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// VoiceConfig controls speech-to-text for voice messages. Enabled defaults
// to whether an OpenAI key is configured.
type VoiceConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// SMTPConfig holds the outbound relay configuration.
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Security           string `yaml:"security"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	From               string `yaml:"from"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// MetricsConfig holds the metrics listener settings. An empty Listen
// disables the listener.
type MetricsConfig struct {
	Listen   string `yaml:"listen"`
	TLS      bool   `yaml:"tls"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()
	return cfg, nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SESConfigured returns true if the SES region and sender are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// SMTPConfigured returns true if relay credentials are set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// DeliveryProvider returns the explicit provider, or the first configured
// one in the order graph, ses, smtp, falling back to stdout.
func (c *Config) DeliveryProvider() string {
	switch {
	case c.Provider != "":
		return c.Provider
	case c.GraphConfigured():
		return "graph"
	case c.SESConfigured():
		return "ses"
	case c.SMTPConfigured():
		return "smtp"
	default:
		return "stdout"
	}
}

// GenerationProvider returns the explicit backend, or gemini when a Gemini
// key is set, then openai, then none.
func (c *Config) GenerationProvider() string {
	switch {
	case c.LLM.Provider != "":
		return c.LLM.Provider
	case c.LLM.Gemini.APIKey != "":
		return "gemini"
	case c.LLM.OpenAI.APIKey != "":
		return "openai"
	default:
		return "none"
	}
}

// VoiceEnabled reports whether voice messages are transcribed.
func (c *Config) VoiceEnabled() bool {
	if c.Voice.Enabled != nil {
		return *c.Voice.Enabled && c.LLM.OpenAI.APIKey != ""
	}
	return c.LLM.OpenAI.APIKey != ""
}

// Validate reports configuration that cannot start the bot.
func (c *Config) Validate() error {
	var errs []error

	switch c.Bot.Transport {
	case "discord":
		if c.Bot.DiscordToken == "" {
			errs = append(errs, errors.New("discord transport requires DISCORD_BOT_TOKEN"))
		}
	case "console":
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Bot.Transport))
	}

	if c.DeliveryRetries < 0 {
		errs = append(errs, fmt.Errorf("delivery retries must not be negative, got %d", c.DeliveryRetries))
	}

	if c.Bot.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("confirm timeout must be positive, got %s", c.Bot.ConfirmTimeout))
	}

	switch p := c.GenerationProvider(); p {
	case "gemini":
		if c.LLM.Gemini.APIKey == "" {
			errs = append(errs, errors.New("gemini backend requires GEMINI_API_KEY"))
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("openai backend requires OPENAI_API_KEY"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", p))
	}

	switch p := c.DeliveryProvider(); p {
	case "graph":
		if !c.GraphConfigured() {
			errs = append(errs, errors.New("graph provider requires GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET and GRAPH_SENDER"))
		}
	case "ses":
		if !c.SESConfigured() {
			errs = append(errs, errors.New("ses provider requires SES_REGION and SES_SENDER"))
		}
	case "smtp":
		if c.SMTP.Host == "" || (c.SMTP.From == "" && c.SMTP.Username == "") {
			errs = append(errs, errors.New("smtp provider requires SMTP_HOST and a sender address"))
		}
	case "stdout":
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", p))
	}

	return errors.Join(errs...)
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Bot.Transport = "discord"
	c.Bot.DefaultSender = "the assistant"
	c.Bot.ConfirmTimeout = 30 * time.Second
	c.Store.Path = "./emails.db"
	c.LLM.Gemini.Model = "gemini-2.5-flash"
	c.LLM.OpenAI.Model = "gpt-4o-mini"
	c.LLM.MaxAttempts = 3
	c.LLM.BaseDelay = time.Second
	c.Voice.Model = "whisper-1"
	c.Voice.Language = "en"
	c.SMTP.Host = "smtp.gmail.com"
	c.SMTP.Port = 465
	c.SMTP.Security = "tls"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values; for
// settings with several names the first non-empty one wins.
func (c *Config) applyEnvVars() {
	setString(&c.Bot.Transport, "BOT_TRANSPORT")
	setString(&c.Bot.DiscordToken, "DISCORD_BOT_TOKEN", "DISCORD_TOKEN")
	setString(&c.Bot.DefaultSender, "DEFAULT_SENDER_NAME")
	setDuration(&c.Bot.ConfirmTimeout, "CONFIRM_TIMEOUT")
	setString(&c.Bot.AttachmentDir, "ATTACHMENT_DIR")

	if v, ok := os.LookupEnv("DB_PATH"); ok {
		c.Store.Path = v
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	setString(&c.LLM.Gemini.Model, "GEMINI_MODEL")
	setString(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.OpenAI.Model, "OPENAI_MODEL")
	setInt(&c.LLM.RequestsPerMinute, "LLM_REQUESTS_PER_MINUTE")

	if v := os.Getenv("VOICE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Voice.Enabled = &b
		}
	}

	setString(&c.Provider, "PROVIDER")
	setInt(&c.DeliveryRetries, "DELIVERY_RETRIES")

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.Security, "SMTP_SECURITY")
	setString(&c.SMTP.Username, "SMTP_USERNAME", "GMAIL_ADDRESS")
	setString(&c.SMTP.Password, "SMTP_PASSWORD", "GMAIL_APP_PASSWORD")
	setString(&c.SMTP.From, "SMTP_FROM")
	setBool(&c.SMTP.InsecureSkipVerify, "SMTP_INSECURE_SKIP_VERIFY")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.Metrics.Listen, "METRICS_LISTEN")
	setBool(&c.Metrics.TLS, "METRICS_TLS")
	setString(&c.Metrics.CertFile, "METRICS_TLS_CERT_FILE")
	setString(&c.Metrics.KeyFile, "METRICS_TLS_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func setString(dst *string, names ...string) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, name string) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, name string) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go durations ("45s") and bare seconds ("45").
func setDuration(dst *time.Duration, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}
