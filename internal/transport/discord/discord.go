// Package discord runs the bot on a Discord gateway connection.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/shineum/mailbot/internal/attachment"
	"github.com/shineum/mailbot/internal/bot"
	"github.com/shineum/mailbot/internal/transport"
)

// maxMessageLength is the Discord limit for one message.
const maxMessageLength = 2000

const intents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// Transport receives messages from Discord and answers in the same channel.
type Transport struct {
	session *discordgo.Session
}

// New creates a Transport authenticating with a bot token.
func New(token string) (*Transport, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = intents
	return &Transport{session: s}, nil
}

// Run connects to the gateway and handles messages until ctx is cancelled.
func (t *Transport) Run(ctx context.Context, h transport.Handler) error {
	d := transport.NewDispatcher(h)

	remove := t.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		msg, ok := toMessage(m, selfID)
		if !ok {
			return
		}
		d.Dispatch(ctx, msg, &responder{
			sender:    s,
			channelID: m.ChannelID,
			ref:       m.Reference(),
		})
	})
	defer remove()

	if err := t.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	slog.Info("discord transport connected")

	<-ctx.Done()
	slog.Info("shutting down discord transport")
	d.Wait()
	if err := t.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

// toMessage converts a gateway event, skipping messages written by bots
// including this one.
func toMessage(m *discordgo.MessageCreate, selfID string) (bot.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return bot.Message{}, false
	}
	if m.Author.Bot || m.Author.ID == selfID {
		return bot.Message{}, false
	}

	msg := bot.Message{
		RequesterID: m.Author.ID,
		Author:      m.Author.Username,
		Text:        m.Content,
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, attachment.Remote{
			Name:        a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return bot.Message{}, false
	}
	return msg, true
}

// messageSender is the part of *discordgo.Session used for answers.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type responder struct {
	sender    messageSender
	channelID string
	ref       *discordgo.MessageReference
}

// Reply answers the original message. Only the first chunk of a long text
// references it.
func (r *responder) Reply(text string) error {
	for i, chunk := range chunks(text, maxMessageLength) {
		var err error
		if i == 0 && r.ref != nil {
			_, err = r.sender.ChannelMessageSendReply(r.channelID, chunk, r.ref)
		} else {
			_, err = r.sender.ChannelMessageSend(r.channelID, chunk)
		}
		if err != nil {
			return fmt.Errorf("failed to send reply: %w", err)
		}
	}
	return nil
}

func (r *responder) Send(text string) error {
	for _, chunk := range chunks(text, maxMessageLength) {
		if _, err := r.sender.ChannelMessageSend(r.channelID, chunk); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// chunks splits text into pieces of at most limit runes, preferring to
// break after a newline.
func chunks(text string, limit int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > 0; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(out) == 0 {
		out = append(out, string(runes))
	}
	return out
}
