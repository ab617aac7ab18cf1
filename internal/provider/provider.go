// Package provider defines the interface for outbound email delivery.
package provider

import (
	"context"

	"github.com/shineum/mailbot/internal/email"
)

// Provider delivers a confirmed email. Implementations exist for SMTP
// relays such as Gmail, Amazon SES, Microsoft Graph and stdout.
type Provider interface {
	// Send delivers msg, including its attachments. A returned error means
	// nothing was sent.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}
