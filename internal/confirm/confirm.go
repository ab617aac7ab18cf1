// Package confirm holds composed emails until their requester confirms or
// cancels them, or the confirmation window expires.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shineum/mailbot/internal/attachment"
	"github.com/shineum/mailbot/internal/email"
	"github.com/shineum/mailbot/internal/metrics"
	"github.com/shineum/mailbot/internal/provider"
)

// DefaultTimeout is how long a composed email waits for a reply.
const DefaultTimeout = 30 * time.Second

// ErrPendingExists is returned by Begin when the requester already has an
// email awaiting confirmation.
var ErrPendingExists = errors.New("confirmation already pending")

// Outcome is the terminal state of a pending send.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
)

// Reply texts for each outcome.
const (
	msgFailed    = "Failed to send email. Please try again."
	msgCancelled = "Email cancelled. You can write a new one anytime."
)

// Draft is a composed email awaiting confirmation. AttachmentPaths are
// local files read at delivery time and removed once the draft resolves.
type Draft struct {
	Email           *email.Email
	AttachmentPaths []string
}

type pending struct {
	draft  *Draft
	notify func(string)
	timer  *time.Timer
}

// Manager tracks at most one pending send per requester.
type Manager struct {
	provider provider.Provider
	timeout  time.Duration

	mu      sync.Mutex
	pending map[string]*pending
}

// NewManager creates a Manager delivering through p. A non-positive
// timeout selects DefaultTimeout.
func NewManager(p provider.Provider, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		provider: p,
		timeout:  timeout,
		pending:  make(map[string]*pending),
	}
}

// Timeout returns the confirmation window.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Begin registers d for requester and starts the confirmation window.
// notify receives the expiry message if no reply arrives in time.
func (m *Manager) Begin(requester string, d *Draft, notify func(string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[requester]; ok {
		return ErrPendingExists
	}
	p := &pending{draft: d, notify: notify}
	p.timer = time.AfterFunc(m.timeout, func() { m.expire(requester, p) })
	m.pending[requester] = p

	slog.Debug("confirmation pending", "requester", requester, "recipients", d.Email.RecipientCount())
	return nil
}

// Pending reports whether requester has an email awaiting confirmation.
func (m *Manager) Pending(requester string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[requester]
	return ok
}

// Reply resolves the pending send of requester with text. "yes" (any case)
// delivers the email and anything else cancels it. handled is false when
// requester had nothing pending.
func (m *Manager) Reply(ctx context.Context, requester, text string) (reply string, handled bool) {
	p := m.take(requester)
	if p == nil {
		return "", false
	}
	defer attachment.Cleanup(p.draft.AttachmentPaths)

	if !strings.EqualFold(strings.TrimSpace(text), "yes") {
		metrics.RecordConfirmation(string(OutcomeCancelled))
		slog.Info("email cancelled", "requester", requester)
		return msgCancelled, true
	}

	if err := m.deliver(ctx, p.draft); err != nil {
		metrics.RecordConfirmation(string(OutcomeFailed))
		slog.Warn("email delivery failed", "requester", requester, "provider", m.provider.Name(), "error", err)
		return msgFailed, true
	}

	metrics.RecordConfirmation(string(OutcomeSent))
	msg := p.draft.Email
	slog.Info("email sent", "requester", requester, "provider", m.provider.Name(),
		"to", len(msg.To), "cc", len(msg.Cc), "bcc", len(msg.Bcc))
	return fmt.Sprintf("Email sent successfully to %d To, %d CC, %d BCC.", len(msg.To), len(msg.Cc), len(msg.Bcc)), true
}

// Close cancels every pending send without notifying requesters.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.pending
	m.pending = make(map[string]*pending)
	m.mu.Unlock()

	for requester, p := range all {
		p.timer.Stop()
		attachment.Cleanup(p.draft.AttachmentPaths)
		slog.Debug("pending confirmation dropped on shutdown", "requester", requester)
	}
}

// take removes and returns the pending send of requester, stopping its
// timer. It returns nil when nothing is pending.
func (m *Manager) take(requester string) *pending {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[requester]
	if !ok {
		return nil
	}
	delete(m.pending, requester)
	p.timer.Stop()
	return p
}

func (m *Manager) expire(requester string, p *pending) {
	m.mu.Lock()
	if m.pending[requester] != p {
		m.mu.Unlock()
		return
	}
	delete(m.pending, requester)
	m.mu.Unlock()

	attachment.Cleanup(p.draft.AttachmentPaths)
	metrics.RecordConfirmation(string(OutcomeExpired))
	slog.Info("confirmation expired", "requester", requester)
	if p.notify != nil {
		p.notify(fmt.Sprintf("No response in %s, email cancelled.", m.timeout))
	}
}

func (m *Manager) deliver(ctx context.Context, d *Draft) error {
	msg := *d.Email
	if len(d.AttachmentPaths) > 0 {
		attachments, err := email.LoadAttachments(d.AttachmentPaths)
		if err != nil {
			return err
		}
		msg.Attachments = attachments
	}

	start := time.Now()
	err := m.provider.Send(ctx, &msg)
	metrics.RecordDelivery(m.provider.Name(), err, time.Since(start))
	return err
}
