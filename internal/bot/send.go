package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shineum/mailbot/internal/alias"
	"github.com/shineum/mailbot/internal/attachment"
	"github.com/shineum/mailbot/internal/confirm"
	"github.com/shineum/mailbot/internal/email"
)

const (
	msgNoAttachment    = "No file attached in the message. Please attach a file to send."
	msgNoRecipients    = "No recipients found. Name a saved alias or 'everyone'."
	msgAllExcluded     = "No valid recipients found after exclusions."
	msgPendingExists   = "You already have an email waiting for confirmation. Finish or cancel it first."
	msgDownloadFailure = "Failed to download %s."
)

var mentionsAttachment = regexp.MustCompile(`(?i)\b(attached|attachments?|files?)\b`)

// handleSend turns a send request into a draft and holds it for
// confirmation. Nothing is delivered here.
func (b *Bot) handleSend(ctx context.Context, msg Message, text string, r Responder) error {
	if len(msg.Attachments) == 0 && mentionsAttachment.MatchString(text) {
		reply(r, msgNoAttachment)
		return nil
	}

	records, err := b.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}
	resolver := alias.NewResolver(records, func(c alias.Correction) {
		reply(r, fmt.Sprintf("Assuming '%s' for '%s'.", c.Alias, c.Token))
	})

	slots := b.parser.ExtractSendSlots(ctx, text, attachment.Names(msg.Attachments), resolver.Aliases())
	slog.Debug("send arguments extracted",
		"requester", msg.RequesterID,
		"to", slots.To,
		"cc", slots.Cc,
		"bcc", slots.Bcc,
		"excludes", slots.Excludes,
		"heuristic", slots.Heuristic,
	)

	env, err := resolver.ResolveEnvelope(slots.To, slots.Cc, slots.Bcc, slots.Excludes)
	var unresolved *alias.UnresolvedError
	switch {
	case errors.As(err, &unresolved):
		reply(r, fmt.Sprintf("%s not found: %s. Use 'list emails' or 'save alias=email'.",
			plural(len(unresolved.Aliases), "Alias", "Aliases"), strings.Join(unresolved.Aliases, ", ")))
		return nil
	case errors.Is(err, alias.ErrNoRecipients):
		if len(slots.Excludes) > 0 {
			reply(r, msgAllExcluded)
		} else {
			reply(r, msgNoRecipients)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}

	paths, names, err := b.fetchAttachments(ctx, msg.Attachments, r)
	if err != nil {
		return err
	}

	body := b.writeBody(ctx, slots.Language, slots.Sender, slots.Body, env)
	draft := &confirm.Draft{
		Email: &email.Email{
			FromName: slots.Sender,
			To:       alias.Emails(env.To),
			Cc:       alias.Emails(env.Cc),
			Bcc:      alias.Emails(env.Bcc),
			Subject:  subjectFor(body),
			TextBody: body,
		},
		AttachmentPaths: paths,
	}

	notify := func(text string) { reply(r, text) }
	if err := b.confirm.Begin(msg.RequesterID, draft, notify); err != nil {
		attachment.Cleanup(paths)
		if errors.Is(err, confirm.ErrPendingExists) {
			reply(r, msgPendingExists)
			return nil
		}
		return fmt.Errorf("failed to hold email for confirmation: %w", err)
	}

	slog.Info("email awaiting confirmation",
		"requester", msg.RequesterID,
		"to", len(env.To),
		"cc", len(env.Cc),
		"bcc", len(env.Bcc),
		"attachments", len(paths),
	)
	reply(r, preview(env, names, draft.Email.Subject, body))
	return nil
}

// fetchAttachments downloads files and reports each one that failed. It
// returns the local paths and the names of the files that arrived.
func (b *Bot) fetchAttachments(ctx context.Context, files []attachment.Remote, r Responder) (paths, names []string, err error) {
	if len(files) == 0 {
		return nil, nil, nil
	}
	res, err := b.downloader.Download(ctx, files)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download attachments: %w", err)
	}

	failed := make(map[string]bool, len(res.Failed))
	for _, name := range res.Failed {
		failed[name] = true
		reply(r, fmt.Sprintf(msgDownloadFailure, name))
	}
	for _, f := range files {
		if !failed[f.Name] {
			names = append(names, f.Name)
		}
	}
	return res.Paths, names, nil
}
