// Package alias resolves user-supplied alias tokens to stored email
// addresses, applying fuzzy correction, "everyone" expansion, exclusion and
// deduplication.
package alias

import (
	"fmt"
	"strings"

	"github.com/shineum/mailbot/internal/fuzzy"
	"github.com/shineum/mailbot/internal/store"
)

// Everyone is the token that expands to every stored alias.
const Everyone = "everyone"

// Recipient is an alias resolved to a concrete address.
type Recipient struct {
	Alias string
	Email string
}

// Correction records a token that was replaced by its nearest stored alias.
type Correction struct {
	Token string
	Alias string
}

// UnresolvedError lists tokens that matched no stored alias, even after
// fuzzy correction.
type UnresolvedError struct {
	Aliases []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved aliases: %s", strings.Join(e.Aliases, ", "))
}

// Result is the outcome of resolving one recipient list.
type Result struct {
	Recipients []Recipient
	Unresolved []string
}

// Err returns an *UnresolvedError when any token failed to resolve.
func (r Result) Err() error {
	if len(r.Unresolved) == 0 {
		return nil
	}
	return &UnresolvedError{Aliases: r.Unresolved}
}

// Resolver resolves tokens against a snapshot of the alias directory. A
// Resolver is meant for a single command and is not safe for concurrent use.
type Resolver struct {
	records  []store.Record
	byAlias  map[string]store.Record
	aliases  []string
	notify   func(Correction)
	notified map[string]bool
}

// NewResolver builds a Resolver over records, in store order. notify, if
// non-nil, is called once per distinct token that was fuzzy-corrected.
func NewResolver(records []store.Record, notify func(Correction)) *Resolver {
	r := &Resolver{
		records:  records,
		byAlias:  make(map[string]store.Record, len(records)),
		aliases:  make([]string, 0, len(records)),
		notify:   notify,
		notified: make(map[string]bool),
	}
	for _, rec := range records {
		key := strings.ToLower(rec.Alias)
		if _, dup := r.byAlias[key]; dup {
			continue
		}
		r.byAlias[key] = rec
		r.aliases = append(r.aliases, rec.Alias)
	}
	return r
}

// Aliases returns the stored aliases in store order.
func (r *Resolver) Aliases() []string {
	return r.aliases
}

// Lookup finds the record for token: first by case-insensitive match, then
// by fuzzy correction. corrected reports whether a fuzzy match was used.
func (r *Resolver) Lookup(token string) (rec store.Record, corrected, ok bool) {
	key := strings.ToLower(strings.TrimSpace(token))
	if rec, ok := r.byAlias[key]; ok {
		return rec, false, true
	}
	closest, found := fuzzy.ClosestAlias(key, r.aliases)
	if !found {
		return store.Record{}, false, false
	}
	rec = r.byAlias[strings.ToLower(closest)]
	r.reportCorrection(strings.TrimSpace(token), rec.Alias)
	return rec, true, true
}

// Correct maps each token to its stored alias, keeping Everyone as is and
// dropping tokens that match nothing. The result is deduplicated.
func (r *Resolver) Correct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		name := strings.TrimSpace(token)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, Everyone) {
			name = Everyone
		} else {
			rec, _, ok := r.Lookup(name)
			if !ok {
				continue
			}
			name = rec.Alias
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

// Resolve turns tokens into recipients. Everyone expands to every stored
// record; other tokens are looked up with fuzzy fallback. Excludes are
// themselves corrected and then removed by alias after expansion. The
// recipient list is deduplicated by alias before and after exclusion.
// Tokens that resolve to nothing and are not excluded are reported in
// Result.Unresolved.
func (r *Resolver) Resolve(tokens, excludes []string) Result {
	excluded := make(map[string]bool, len(excludes))
	for _, token := range excludes {
		excluded[strings.ToLower(strings.TrimSpace(token))] = true
	}
	for _, alias := range r.Correct(excludes) {
		excluded[strings.ToLower(alias)] = true
	}

	var (
		resolved   []Recipient
		unresolved []string
		missing    = make(map[string]bool)
	)
	for _, token := range tokens {
		name := strings.TrimSpace(token)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, Everyone) {
			for _, rec := range r.records {
				resolved = append(resolved, Recipient{Alias: rec.Alias, Email: rec.Email})
			}
			continue
		}
		rec, _, ok := r.Lookup(name)
		if !ok {
			key := strings.ToLower(name)
			if !excluded[key] && !missing[key] {
				missing[key] = true
				unresolved = append(unresolved, name)
			}
			continue
		}
		resolved = append(resolved, Recipient{Alias: rec.Alias, Email: rec.Email})
	}

	resolved = dedupe(resolved)
	kept := resolved[:0]
	for _, rcpt := range resolved {
		if !excluded[strings.ToLower(rcpt.Alias)] {
			kept = append(kept, rcpt)
		}
	}

	return Result{Recipients: dedupe(kept), Unresolved: unresolved}
}

func (r *Resolver) reportCorrection(token, alias string) {
	key := strings.ToLower(token)
	if r.notify == nil || r.notified[key] {
		return
	}
	r.notified[key] = true
	r.notify(Correction{Token: token, Alias: alias})
}

func dedupe(recipients []Recipient) []Recipient {
	seen := make(map[string]bool, len(recipients))
	out := recipients[:0]
	for _, rcpt := range recipients {
		key := strings.ToLower(rcpt.Alias)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rcpt)
	}
	return out
}
