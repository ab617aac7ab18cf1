package command

import (
	"regexp"
	"strings"
)

var (
	removeSplit = regexp.MustCompile(`(?i)[\s,;&]+|\band\b`)
	// removeStopwords are filler words skipped unless they are a saved alias.
	removeStopwords = map[string]bool{
		"the": true, "alias": true, "aliases": true, "email": true, "emails": true,
		"contact": true, "contacts": true, "please": true, "from": true, "list": true,
		"my": true, "and": true, "for": true, "me": true, "entry": true, "entries": true,
		"address": true, "addresses": true,
	}
)

// ParseRemoveTokens returns the alias names that follow the first remove
// keyword in text, lowercased and deduplicated in order of appearance.
// Filler words are dropped unless they equal one of aliases.
func ParseRemoveTokens(text string, aliases []string) []string {
	loc := removeKeywords.FindStringIndex(text)
	if loc == nil {
		return nil
	}

	known := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		known[strings.ToLower(a)] = true
	}

	seen := make(map[string]bool)
	var tokens []string
	for _, raw := range removeSplit.Split(text[loc[1]:], -1) {
		token := strings.ToLower(strings.Trim(raw, `'".!?:`+"`"))
		if token == "" || seen[token] {
			continue
		}
		if !known[token] && (removeStopwords[token] || removeKeywords.MatchString(token)) {
			continue
		}
		seen[token] = true
		tokens = append(tokens, token)
	}
	return tokens
}
