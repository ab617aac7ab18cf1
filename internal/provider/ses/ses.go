// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/mailbot/internal/email"
)

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a Provider.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	// MaxRetries is how many times a failed request is repeated. Zero
	// sends once.
	MaxRetries int
}

// Provider sends emails via the AWS SES v2 API. The configured sender
// address is always used; the display name comes from the message.
type Provider struct {
	sender string
	client SendEmailAPI
	now    func() time.Time
	// maxRetries is zero unless set through Config.
	maxRetries int
	// baseDelay is the first retry wait; it doubles on every further retry.
	baseDelay time.Duration
}

// SendEmailAPI is the subset of the SES v2 client used by Provider.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a Provider. Static credentials are used when both keys are
// set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	p := NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg))
	p.maxRetries = max(cfg.MaxRetries, 0)
	return p, nil
}

// NewWithClient creates a Provider with a custom client, used for testing.
func NewWithClient(sender string, client SendEmailAPI) *Provider {
	return &Provider{sender: sender, client: client, now: time.Now, baseDelay: baseRetryDelay}
}

// Send delivers msg. Messages with attachments are sent as raw MIME with
// every recipient, Bcc included, listed in the destination.
func (p *Provider) Send(ctx context.Context, msg *email.Email) error {
	out := *msg
	out.From = p.sender

	input, err := p.buildInput(&out)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request", "attempt", attempt, "max_retries", p.maxRetries)
			if err := sleepWithContext(ctx, backoffDelay(p.baseDelay, attempt)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		resp, err := p.client.SendEmail(ctx, input)
		if err == nil {
			slog.Debug("SES accepted message", "message_id", aws.ToString(resp.MessageId))
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("SES API error", "attempt", attempt, "error", err)
	}

	if p.maxRetries == 0 {
		return fmt.Errorf("SES API request failed: %w", lastErr)
	}
	return fmt.Errorf("SES API request failed after %d retries: %w", p.maxRetries, lastErr)
}

// Name returns "ses".
func (p *Provider) Name() string {
	return "ses"
}

func (p *Provider) buildInput(msg *email.Email) (*sesv2.SendEmailInput, error) {
	dest := &types.Destination{
		ToAddresses:  msg.To,
		CcAddresses:  msg.Cc,
		BccAddresses: msg.Bcc,
	}

	if len(msg.Attachments) == 0 {
		return &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(msg.FormattedFrom()),
			Destination:      dest,
			Content:          &types.EmailContent{Simple: simpleMessage(msg)},
		}, nil
	}

	raw, err := email.ComposeBytes(msg, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to build raw message: %w", err)
	}
	return &sesv2.SendEmailInput{
		Destination: dest,
		Content:     &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	}, nil
}

func simpleMessage(msg *email.Email) *types.Message {
	body := &types.Body{}
	if msg.HtmlBody != "" {
		body.Html = utf8Content(msg.HtmlBody)
	}
	if msg.TextBody != "" || msg.HtmlBody == "" {
		body.Text = utf8Content(msg.TextBody)
	}
	return &types.Message{Subject: utf8Content(msg.Subject), Body: body}
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// backoffDelay returns the wait before retry number attempt, starting at 1.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
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
