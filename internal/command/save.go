package command

import (
	"regexp"
	"strings"
)

// SavePair is one alias=email assignment found in a save request.
type SavePair struct {
	Alias string
	Email string
	// Valid reports whether Email looks like an address.
	Valid bool
}

var (
	savePairPattern = regexp.MustCompile(`(?i)(?:save|add|store|set|register)\s+([a-z0-9._-]{2,})\s*=\s*([^\s;,]+@[^@\s;,]+\.[a-z]{2,})`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	tokenSplit      = regexp.MustCompile(`[\s,;]+`)
)

// ValidEmail reports whether s has the shape local@domain.tld.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ParseSavePairs extracts alias=email assignments from text. Strict
// "save alias=email" matches are used when they account for every '=' in
// text. Otherwise every token containing '=' after the first save keyword
// is taken as a pair, and pairs whose email fails validation are reported
// with Valid unset.
func ParseSavePairs(text string) []SavePair {
	matches := savePairPattern.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 && len(matches) >= strings.Count(text, "=") {
		pairs := make([]SavePair, 0, len(matches))
		for _, m := range matches {
			pairs = append(pairs, SavePair{
				Alias: strings.ToLower(m[1]),
				Email: m[2],
				Valid: ValidEmail(m[2]),
			})
		}
		return pairs
	}
	return looseSavePairs(text)
}

func looseSavePairs(text string) []SavePair {
	loc := saveKeywords.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	rest := normalizeEquals(text[loc[1]:])

	var pairs []SavePair
	for _, token := range tokenSplit.Split(rest, -1) {
		alias, email, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		alias = strings.ToLower(strings.Trim(alias, `'"`+"`"))
		email = strings.Trim(email, `'"<>.`+"`")
		if alias == "" || saveKeywords.MatchString(alias) {
			continue
		}
		pairs = append(pairs, SavePair{Alias: alias, Email: email, Valid: ValidEmail(email)})
	}
	return pairs
}

var spacedEquals = regexp.MustCompile(`\s*=\s*`)

// normalizeEquals joins "alias = email" into a single token.
func normalizeEquals(s string) string {
	return spacedEquals.ReplaceAllString(s, "=")
}
