// Package smtp implements a Provider that relays emails through an SMTP
// submission server such as Gmail.
package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/mailbot/internal/email"
	"github.com/shineum/mailbot/internal/tls"
)

// Connection security modes.
const (
	SecurityTLS      = "tls"
	SecuritySTARTTLS = "starttls"
	SecurityNone     = "none"
)

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 2 * time.Second

// Config holds the relay address, credentials and envelope sender.
type Config struct {
	Host               string
	Port               int
	Security           string
	Username           string
	Password           string
	From               string
	InsecureSkipVerify bool
	// MaxRetries is how many times a transient failure is resubmitted.
	// Zero submits once.
	MaxRetries int
}

// Provider submits messages to an SMTP server, authenticating with PLAIN
// when a username is configured.
type Provider struct {
	cfg       Config
	now       func() time.Time
	baseDelay time.Duration
}

// New validates cfg and creates a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid smtp port %d", cfg.Port)
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("invalid smtp retry count %d", cfg.MaxRetries)
	}
	switch cfg.Security {
	case "":
		cfg.Security = SecurityTLS
	case SecurityTLS, SecuritySTARTTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("unknown smtp security mode %q", cfg.Security)
	}
	return &Provider{cfg: cfg, now: time.Now, baseDelay: baseRetryDelay}, nil
}

// Send composes msg and submits it to every To, Cc and Bcc recipient.
// With MaxRetries set, connection failures and 4xx replies are retried;
// 5xx replies never are.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	out := *msg
	out.From = p.cfg.From
	raw, err := email.ComposeBytes(&out, p.now())
	if err != nil {
		return fmt.Errorf("failed to compose message: %w", err)
	}

	rcpts := make([]string, 0, msg.RecipientCount())
	rcpts = append(rcpts, msg.To...)
	rcpts = append(rcpts, msg.Cc...)
	rcpts = append(rcpts, msg.Bcc...)
	if len(rcpts) == 0 {
		return errors.New("no recipients")
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(p.baseDelay, attempt)
			slog.Debug("retrying SMTP submission", "attempt", attempt, "delay", delay)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		err := p.submit(ctx, rcpts, raw)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isPermanent(err) {
			return err
		}
		slog.Warn("SMTP submission failed", "attempt", attempt, "host", p.cfg.Host, "error", err)
	}

	if p.cfg.MaxRetries == 0 {
		return fmt.Errorf("SMTP submission failed: %w", lastErr)
	}
	return fmt.Errorf("SMTP submission failed after %d retries: %w", p.cfg.MaxRetries, lastErr)
}

// Name returns "smtp".
func (p *Provider) Name() string {
	return "smtp"
}

func (p *Provider) submit(ctx context.Context, rcpts []string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := p.dial()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", p.cfg.Host, err)
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}
	if err := c.SendMail(p.cfg.From, rcpts, bytes.NewReader(raw)); err != nil {
		return err
	}
	return c.Quit()
}

func (p *Provider) dial() (*gosmtp.Client, error) {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	tlsCfg := tls.ClientConfig(p.cfg.Host, p.cfg.InsecureSkipVerify)

	switch p.cfg.Security {
	case SecuritySTARTTLS:
		return gosmtp.DialStartTLS(addr, tlsCfg)
	case SecurityNone:
		return gosmtp.Dial(addr)
	default:
		return gosmtp.DialTLS(addr, tlsCfg)
	}
}

// isPermanent reports whether err is an SMTP 5xx reply.
func isPermanent(err error) bool {
	var smtpErr *gosmtp.SMTPError
	return errors.As(err, &smtpErr) && smtpErr.Code >= 500
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
