// Package command turns chat text into intents and command arguments, using
// a text generation backend with deterministic heuristics as fallback.
package command

import (
	"regexp"
	"strings"
)

// Intent is the routed purpose of a chat message.
type Intent string

const (
	IntentSend    Intent = "sendEmail"
	IntentSave    Intent = "saveEmail"
	IntentRemove  Intent = "removeEmail"
	IntentList    Intent = "listEmails"
	IntentUnknown Intent = "unknown"
)

// Minimum scores a classification needs before a handler acts on it.
const (
	SaveThreshold   = 2
	RemoveThreshold = 2
	SendThreshold   = 0.5
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentSend, IntentSave, IntentRemove, IntentList, IntentUnknown:
		return true
	}
	return false
}

// Classification is the intent of one message and an opaque confidence.
type Classification struct {
	Intent Intent
	Score  float64
	// Heuristic is set when the result came from keyword rules instead of
	// the text generation backend.
	Heuristic bool
}

// Passes reports whether the classification clears the threshold of its
// intent. List and unknown have no threshold.
func (c Classification) Passes() bool {
	switch c.Intent {
	case IntentSave:
		return c.Score >= SaveThreshold
	case IntentRemove:
		return c.Score >= RemoveThreshold
	case IntentSend:
		return c.Score >= SendThreshold
	}
	return true
}

var (
	saveKeywords   = regexp.MustCompile(`(?i)\b(save|add|store|set|register)\b`)
	removeKeywords = regexp.MustCompile(`(?i)\b(remove|delete|forget)\b`)
	sendKeyword    = regexp.MustCompile(`(?i)\b(send|mail)\b`)
	emailWord      = regexp.MustCompile(`(?i)\b(e-?mails?|mail|message)\b`)
	toWord         = regexp.MustCompile(`(?i)\bto\b`)
	listKeywords   = regexp.MustCompile(`(?i)\b(list|show|display)\b`)
)

// DetectIntent classifies text with keyword rules. Save is checked before
// remove, send and list.
func DetectIntent(text string) Classification {
	c := Classification{Intent: IntentUnknown, Heuristic: true}
	switch {
	case saveKeywords.MatchString(text):
		c.Intent, c.Score = IntentSave, 2
		if strings.Contains(text, "=") {
			c.Score++
		}
	case removeKeywords.MatchString(text):
		c.Intent, c.Score = IntentRemove, 2
	case sendKeyword.MatchString(text) && emailWord.MatchString(text):
		c.Intent, c.Score = IntentSend, 3
		if toWord.MatchString(text) {
			c.Score++
		}
	case listKeywords.MatchString(text):
		c.Intent, c.Score = IntentList, 2
	}
	return c
}

var listShortcuts = []string{"show saved emails", "list saved emails", "display emails"}

// IsListShortcut reports whether text is one of the fixed list phrases that
// bypass classification.
func IsListShortcut(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "list emails" || lower == "show email list" {
		return true
	}
	for _, phrase := range listShortcuts {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsConfirmationToken reports whether text is exactly "yes" or "no",
// ignoring case and surrounding space.
func IsConfirmationToken(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return lower == "yes" || lower == "no"
}
