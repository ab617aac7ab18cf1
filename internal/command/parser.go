package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/shineum/mailbot/internal/llm"
)

const (
	// DefaultSender is the display name used when none is given.
	DefaultSender = "the assistant"
	// DefaultLanguage is the language used when none is detected.
	DefaultLanguage = "English"
)

// SupportedLanguages lists the languages the email writer is asked to use.
var SupportedLanguages = []string{"English", "Urdu", "Korean", "Hindi", "Arabic", "French", "Mandarin", "Malayalam"}

// errUnusable marks model output that could not be interpreted.
var errUnusable = errors.New("unusable model output")

// SendSlots are the arguments of a send request.
type SendSlots struct {
	To          []string `json:"to"`
	Cc          []string `json:"cc"`
	Bcc         []string `json:"bcc"`
	Excludes    []string `json:"excludes"`
	Sender      string   `json:"sender"`
	Body        string   `json:"body"`
	Language    string   `json:"language"`
	Attachments []string `json:"attachments"`
	// Heuristic is set when the slots came from keyword rules.
	Heuristic bool `json:"-"`
}

// Parser classifies messages and extracts send arguments.
type Parser struct {
	gen           llm.Generator
	defaultSender string
}

// NewParser creates a Parser backed by gen. An empty defaultSender selects
// DefaultSender.
func NewParser(gen llm.Generator, defaultSender string) *Parser {
	if defaultSender == "" {
		defaultSender = DefaultSender
	}
	return &Parser{gen: gen, defaultSender: defaultSender}
}

// DefaultSender returns the display name used when a request names none.
func (p *Parser) DefaultSender() string {
	return p.defaultSender
}

const classifyPrompt = `You are an intent detection assistant.
Analyze this chat message and decide the user's intent.

Message: %q

Return only a JSON object like this:
{
  "intent": "sendEmail" | "saveEmail" | "removeEmail" | "listEmails" | "unknown",
  "score": 1-5
}

Rules:
- "sendEmail": user wants to email or message someone (send, mail, tell, inform, notify, email, message, etc.)
- "saveEmail": user wants to save or add a new alias (save, add, store, register)
- "removeEmail": user wants to delete or forget an alias (remove, delete, forget)
- "listEmails": user wants to view saved aliases (list, show, display)
- "unknown": anything else`

type classifyResponse struct {
	Intent string    `json:"intent"`
	Score  flexScore `json:"score"`
}

// Classify asks the backend for the intent of text. Backend errors and
// unusable output fall back to DetectIntent.
func (p *Parser) Classify(ctx context.Context, text string) Classification {
	out, err := p.gen.Generate(ctx, fmt.Sprintf(classifyPrompt, text))
	if err != nil {
		slog.Warn("intent classification failed, using keyword rules", "error", err)
		return DetectIntent(text)
	}

	var resp classifyResponse
	if err := decodeJSON(out, &resp); err != nil {
		slog.Warn("intent classification returned unusable output, using keyword rules", "error", err)
		return DetectIntent(text)
	}

	intent := Intent(strings.TrimSpace(resp.Intent))
	if !intent.Valid() {
		slog.Warn("intent classification returned unknown intent, using keyword rules", "intent", resp.Intent)
		return DetectIntent(text)
	}
	return Classification{Intent: intent, Score: float64(resp.Score)}
}

const slotPrompt = `You are an email-sending assistant. Always interpret the user's message as a command to send an email, even if it is polite, indirect, or phrased as a question.
User message: """%s"""

Output only a valid JSON object and nothing else (no markdown, no commentary), with exactly this schema:
{
  "excludes": [],
  "to": [],
  "cc": [],
  "bcc": [],
  "sender": "",
  "body": "",
  "language": "English",
  "attachments": []
}
- "to", "cc", "bcc" and "excludes" are arrays of aliases. Use "everyone" for all recipients.
- "sender" is the display name for the From header (leave empty if not given).
- "body" is the message content to include in the email.
- "language" is the language to write the email in, detected from the message (e.g. "in Urdu" means "Urdu"). Supported: %s.
- "attachments" lists the names of files attached to the chat message that the user refers to. Files attached: %s.
- If unsure about an alias, include it anyway for validation later.

Valid aliases: %s or "everyone".`

// ExtractSendSlots asks the backend for the arguments of a send request.
// Missing fields are defaulted. Backend errors and unusable output fall
// back to keyword rules over text and the known aliases.
func (p *Parser) ExtractSendSlots(ctx context.Context, text string, attachments, aliases []string) SendSlots {
	prompt := fmt.Sprintf(slotPrompt,
		text,
		strings.Join(SupportedLanguages, ", "),
		listOrNone(attachments),
		listOrNone(aliases),
	)

	out, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("send argument extraction failed, using keyword rules", "error", err)
		return p.heuristicSlots(text, aliases)
	}

	var slots SendSlots
	if err := decodeJSON(out, &slots); err != nil {
		slog.Warn("send argument extraction returned unusable output, using keyword rules", "error", err)
		return p.heuristicSlots(text, aliases)
	}
	p.applyDefaults(&slots)
	return slots
}

func (p *Parser) applyDefaults(s *SendSlots) {
	s.To = cleanList(s.To)
	s.Cc = cleanList(s.Cc)
	s.Bcc = cleanList(s.Bcc)
	s.Excludes = cleanList(s.Excludes)
	s.Attachments = cleanList(s.Attachments)
	s.Sender = strings.TrimSpace(s.Sender)
	if s.Sender == "" {
		s.Sender = p.defaultSender
	}
	s.Language = strings.TrimSpace(s.Language)
	if s.Language == "" {
		s.Language = DefaultLanguage
	}
	s.Body = strings.TrimSpace(s.Body)
}

var (
	parenBody    = regexp.MustCompile(`\(([^()]*)\)`)
	colonBody    = regexp.MustCompile(`(?is)(?:saying|that says|:)\s*(.+)$`)
	excludeLead  = regexp.MustCompile(`(?i)\b(?:except|excluding|without|but not)\b(.*)$`)
	everyoneWord = regexp.MustCompile(`(?i)\b(everyone|everybody|all)\b`)
)

// heuristicSlots extracts send arguments without the backend: "everyone"
// detection, whole-word matches of known aliases, and a body taken from
// parentheses or after "saying"/":".
func (p *Parser) heuristicSlots(text string, aliases []string) SendSlots {
	slots := SendSlots{Heuristic: true}

	scan := text
	if m := parenBody.FindStringSubmatchIndex(text); m != nil {
		slots.Body = strings.TrimSpace(text[m[2]:m[3]])
		scan = text[:m[0]] + text[m[1]:]
	} else if m := colonBody.FindStringSubmatchIndex(text); m != nil {
		slots.Body = strings.TrimSpace(text[m[2]:m[3]])
		scan = text[:m[0]]
	}

	recipients := scan
	if m := excludeLead.FindStringSubmatchIndex(scan); m != nil {
		recipients = scan[:m[0]]
		slots.Excludes = matchAliases(scan[m[2]:m[3]], aliases)
	}

	if everyoneWord.MatchString(recipients) {
		slots.To = []string{"everyone"}
	} else {
		slots.To = matchAliases(recipients, aliases)
	}

	p.applyDefaults(&slots)
	return slots
}

// matchAliases returns the aliases that occur in text as whole words.
func matchAliases(text string, aliases []string) []string {
	var found []string
	for _, alias := range aliases {
		re, err := regexp.Compile(`(?i)(^|[^\w.-])` + regexp.QuoteMeta(alias) + `($|[^\w.-])`)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			found = append(found, alias)
		}
	}
	return found
}

// decodeJSON unmarshals the first JSON object in out, tolerating code
// fences and surrounding prose.
func decodeJSON(out string, v any) error {
	cleaned := strings.ReplaceAll(out, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object", errUnusable)
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", errUnusable, err)
	}
	return nil
}

func cleanList(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

// flexScore accepts a JSON number or a numeric string.
type flexScore float64

func (s *flexScore) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	*s = flexScore(f)
	return nil
}
