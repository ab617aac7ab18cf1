package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shineum/mailbot/internal/alias"
	"github.com/shineum/mailbot/internal/command"
	"github.com/shineum/mailbot/internal/store"
)

const (
	msgNoSavePairs   = "No valid aliases/emails found. Use 'save alias=email'."
	msgNoRemoveNames = "No aliases found to remove. Use 'remove alias'."
	msgRemoveFailed  = "Error removing aliases. Try again."
	msgListFailed    = "Failed to fetch saved emails. Please try again."
	msgListEmpty     = "No emails saved yet. Use 'save alias=email@example.com' to add some!"
)

// handleSave stores every alias=email pair in text. Pairs commit one by
// one, so an invalid or conflicting pair does not block the others.
func (b *Bot) handleSave(ctx context.Context, text string, r Responder) error {
	pairs := command.ParseSavePairs(text)
	if len(pairs) == 0 {
		reply(r, msgNoSavePairs)
		return nil
	}

	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if !p.Valid {
			lines = append(lines, fmt.Sprintf("Invalid email for '%s': %s", p.Alias, p.Email))
			continue
		}
		err := b.store.Upsert(ctx, p.Alias, p.Email)
		switch {
		case errors.Is(err, store.ErrEmailTaken):
			lines = append(lines, fmt.Sprintf("%s is already saved under another alias, '%s' was not saved.", p.Email, p.Alias))
		case err != nil:
			slog.Error("failed to save alias", "alias", p.Alias, "error", err)
			lines = append(lines, fmt.Sprintf("Error saving '%s' = %s. Try a different alias.", p.Alias, p.Email))
		default:
			slog.Info("alias saved", "alias", p.Alias)
			lines = append(lines, fmt.Sprintf("Saved alias '%s' = %s.", p.Alias, p.Email))
		}
	}
	reply(r, strings.Join(lines, "\n"))
	return nil
}

// handleRemove deletes the named aliases in one transaction. Unknown names
// fall back to the nearest stored alias. A storage failure rolls back the
// whole batch.
func (b *Bot) handleRemove(ctx context.Context, text string, r Responder) error {
	var (
		tokens  []string
		lines   []string
		removed int
	)
	err := b.store.InTx(ctx, func(tx *store.Tx) error {
		lines, removed = lines[:0], 0

		records, err := tx.All(ctx)
		if err != nil {
			return err
		}
		resolver := alias.NewResolver(records, nil)
		tokens = command.ParseRemoveTokens(text, resolver.Aliases())

		for _, token := range tokens {
			rec, corrected, ok := resolver.Lookup(token)
			if !ok {
				lines = append(lines, notFoundLine(token))
				continue
			}
			deleted, err := tx.Delete(ctx, rec.Alias)
			if err != nil {
				return err
			}
			if !deleted {
				lines = append(lines, notFoundLine(token))
				continue
			}
			removed++
			if corrected {
				lines = append(lines, fmt.Sprintf("Removed alias '%s' (assumed for '%s').", rec.Alias, token))
			} else {
				lines = append(lines, fmt.Sprintf("Removed alias '%s'.", rec.Alias))
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("remove transaction rolled back", "aliases", tokens, "error", err)
		reply(r, msgRemoveFailed)
		return nil
	}

	if len(tokens) == 0 {
		reply(r, msgNoRemoveNames)
		return nil
	}

	slog.Info("aliases removed", "requested", len(tokens), "removed", removed)
	if removed > 0 {
		lines = append(lines, "", fmt.Sprintf("Removed %d %s.", removed, plural(removed, "alias", "aliases")))
	}
	reply(r, strings.Join(lines, "\n"))
	return nil
}

func notFoundLine(token string) string {
	return fmt.Sprintf("Alias '%s' not found. Use 'list emails' to check.", token)
}

// handleList shows the directory ordered by alias.
func (b *Bot) handleList(ctx context.Context, r Responder) error {
	records, err := b.store.All(ctx)
	if err != nil {
		slog.Error("failed to list aliases", "error", err)
		reply(r, msgListFailed)
		return nil
	}
	if len(records) == 0 {
		reply(r, msgListEmpty)
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Saved Emails:\n")
	for _, rec := range records {
		fmt.Fprintf(&sb, "• %s: %s\n", rec.Alias, rec.Email)
	}
	fmt.Fprintf(&sb, "\nTotal: %d %s.", len(records), plural(len(records), "entry", "entries"))
	reply(r, sb.String())
	return nil
}
