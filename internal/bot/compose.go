package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shineum/mailbot/internal/alias"
)

const (
	// namedGreetingLimit is the recipient count above which the greeting
	// stops naming people.
	namedGreetingLimit = 10
	maxSubjectRunes    = 250
	maxPreviewRunes    = 1500
	subjectPrefix      = "Important Update: "
)

const writePrompt = `Write a polite, professional email in the %s language from "%s" saying: "%s".
Start with "%s" and end with "Sincerely, %s".%s
Return only the email text, without a subject line or markdown.`

var markdownChars = regexp.MustCompile("[*_#`]+")

// greeting opens the email according to how many people receive it.
func greeting(env alias.Envelope) string {
	switch {
	case env.Total() > namedGreetingLimit:
		return "Dear All,"
	case len(env.To) == 1:
		return fmt.Sprintf("Dear %s,", env.To[0].Alias)
	case len(env.To) > 1:
		return fmt.Sprintf("Dear %s,", strings.Join(alias.Names(env.To), " and "))
	default:
		return "Hello,"
	}
}

func exclusionNote(excluded []string) string {
	if len(excluded) == 0 {
		return ""
	}
	return fmt.Sprintf("Note: Excluded %s.", strings.Join(excluded, ", "))
}

// templateBody is the body used when no text could be generated: the
// requested message verbatim between the greeting and the signature. An
// empty message leaves only the greeting, note and signature.
func templateBody(greet, message, note, sender string) string {
	var sb strings.Builder
	sb.WriteString(greet)
	if message != "" {
		sb.WriteString("\n\n")
		sb.WriteString(message)
	}
	if note != "" {
		sb.WriteString("\n\n")
		sb.WriteString(note)
	}
	sb.WriteString("\n\nSincerely,\n")
	sb.WriteString(sender)
	return sb.String()
}

// writeBody asks the writer for a polished body and falls back to the
// template when generation fails or returns nothing.
func (b *Bot) writeBody(ctx context.Context, language, sender, message string, env alias.Envelope) string {
	greet := greeting(env)
	note := exclusionNote(env.Excluded)
	if strings.TrimSpace(message) == "" {
		return templateBody(greet, "", note, sender)
	}

	noteInstruction := ""
	if note != "" {
		noteInstruction = fmt.Sprintf(" Include this note: %q.", note)
	}
	prompt := fmt.Sprintf(writePrompt, language, sender, message, greet, sender, noteInstruction)

	out, err := b.writer.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("email body generation failed, using template", "provider", b.writer.Name(), "error", err)
		return templateBody(greet, message, note, sender)
	}
	body := strings.TrimSpace(markdownChars.ReplaceAllString(out, ""))
	if body == "" {
		return templateBody(greet, message, note, sender)
	}
	return body
}

// subjectFor derives the subject from the first line of body.
func subjectFor(body string) string {
	first, _, _ := strings.Cut(body, "\n")
	return strings.TrimSpace(subjectPrefix + truncate(strings.TrimSpace(first), maxSubjectRunes))
}

func preview(env alias.Envelope, attachments []string, subject, body string) string {
	bodyPreview := body
	if len([]rune(body)) > maxPreviewRunes {
		bodyPreview = truncate(body, maxPreviewRunes) + "..."
	}

	var sb strings.Builder
	sb.WriteString("Confirm sending email:\n")
	fmt.Fprintf(&sb, "To: %s\n", joinOr(alias.Names(env.To), "(none)"))
	fmt.Fprintf(&sb, "CC: %s\n", joinOr(alias.Names(env.Cc), "(none)"))
	fmt.Fprintf(&sb, "BCC: %s\n", joinOr(alias.Names(env.Bcc), "(none)"))
	fmt.Fprintf(&sb, "Attachments: %s\n", joinOr(attachments, "(none detected)"))
	fmt.Fprintf(&sb, "\nSubject: %s\n", subject)
	fmt.Fprintf(&sb, "\nBody Preview:\n%s\n", bodyPreview)
	sb.WriteString("\nReply yes to send or no to cancel.")
	return sb.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
