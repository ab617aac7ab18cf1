// Package bot routes chat messages to the alias directory commands and the
// confirmed email sending flow.
package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/shineum/mailbot/internal/attachment"
	"github.com/shineum/mailbot/internal/command"
	"github.com/shineum/mailbot/internal/confirm"
	"github.com/shineum/mailbot/internal/llm"
	"github.com/shineum/mailbot/internal/metrics"
	"github.com/shineum/mailbot/internal/store"
	"github.com/shineum/mailbot/internal/voice"
)

const msgInternalError = "Something went wrong while processing your message."

// Message is one inbound chat message.
type Message struct {
	// RequesterID identifies the author. Pending sends are keyed by it.
	RequesterID string
	// Author is a display name used in logs.
	Author      string
	Text        string
	Attachments []attachment.Remote
}

// Responder writes back to the conversation a message came from. It must
// stay usable after Handle returns, since expiry notices arrive later.
type Responder interface {
	// Reply answers the message.
	Reply(text string) error
	// Send posts to the conversation without referencing the message.
	Send(text string) error
}

// Config holds the collaborators of a Bot.
type Config struct {
	Store       *store.Store
	Parser      *command.Parser
	Writer      llm.Generator
	Confirm     *confirm.Manager
	Downloader  *attachment.Downloader
	Transcriber voice.Transcriber
}

// Bot handles chat messages. It is safe for concurrent use by messages
// from different requesters.
type Bot struct {
	store       *store.Store
	parser      *command.Parser
	writer      llm.Generator
	confirm     *confirm.Manager
	downloader  *attachment.Downloader
	transcriber voice.Transcriber
}

// New creates a Bot. A nil Writer disables generated bodies, a nil
// Downloader writes to the default directory and a nil Transcriber
// rejects voice messages.
func New(cfg Config) *Bot {
	b := &Bot{
		store:       cfg.Store,
		parser:      cfg.Parser,
		writer:      cfg.Writer,
		confirm:     cfg.Confirm,
		downloader:  cfg.Downloader,
		transcriber: cfg.Transcriber,
	}
	if b.writer == nil {
		b.writer = llm.Disabled{}
	}
	if b.downloader == nil {
		b.downloader = attachment.NewDownloader("")
	}
	if b.transcriber == nil {
		b.transcriber = voice.Disabled{}
	}
	return b
}

// Handle processes one message and writes every answer through r. Errors
// and panics are logged and answered with a generic apology.
func (b *Bot) Handle(ctx context.Context, msg Message, r Responder) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("panic while handling message",
				"requester", msg.RequesterID,
				"panic", v,
				"stack", string(debug.Stack()),
			)
			reply(r, msgInternalError)
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		var ok bool
		text, msg.Attachments, ok = b.transcribe(ctx, msg, r)
		if !ok {
			return
		}
	}

	if answer, handled := b.confirm.Reply(ctx, msg.RequesterID, text); handled {
		metrics.RecordCommand("confirmation")
		reply(r, answer)
		return
	}

	if command.IsConfirmationToken(text) {
		slog.Debug("ignoring confirmation with nothing pending", "requester", msg.RequesterID)
		return
	}

	if err := b.route(ctx, msg, text, r); err != nil {
		slog.Error("failed to handle message",
			"requester", msg.RequesterID,
			"author", msg.Author,
			"error", err,
		)
		reply(r, msgInternalError)
	}
}

func (b *Bot) route(ctx context.Context, msg Message, text string, r Responder) error {
	if command.IsListShortcut(text) {
		metrics.RecordCommand(string(command.IntentList))
		return b.handleList(ctx, r)
	}

	c := b.parser.Classify(ctx, text)
	metrics.RecordCommand(string(c.Intent))
	slog.Info("intent detected",
		"requester", msg.RequesterID,
		"intent", c.Intent,
		"score", c.Score,
		"heuristic", c.Heuristic,
	)

	if !c.Passes() {
		reply(r, casualReply(text))
		return nil
	}

	switch c.Intent {
	case command.IntentSave:
		return b.handleSave(ctx, text, r)
	case command.IntentRemove:
		return b.handleRemove(ctx, text, r)
	case command.IntentList:
		return b.handleList(ctx, r)
	case command.IntentSend:
		return b.handleSend(ctx, msg, text, r)
	default:
		reply(r, casualReply(text))
		return nil
	}
}

func reply(r Responder, text string) {
	if err := r.Reply(text); err != nil {
		slog.Warn("failed to send reply", "error", err)
	}
}

func post(r Responder, text string) {
	if err := r.Send(text); err != nil {
		slog.Warn("failed to post message", "error", err)
	}
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return singular
	}
	return many
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
