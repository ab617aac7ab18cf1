package alias

import (
	"errors"
	"strings"
)

// ErrNoRecipients is returned when a send request resolves to zero
// addresses after exclusions.
var ErrNoRecipients = errors.New("no valid recipients after exclusions")

// Envelope is the resolved recipient set of one send request.
type Envelope struct {
	To       []Recipient
	Cc       []Recipient
	Bcc      []Recipient
	Excluded []string
}

// Total returns the number of recipients across To, Cc and Bcc.
func (e Envelope) Total() int {
	return len(e.To) + len(e.Cc) + len(e.Bcc)
}

// ResolveEnvelope resolves the To, Cc and Bcc token lists of a send request
// with a shared exclude list. An empty To with a non-empty exclude list is
// read as Everyone. An alias appears in at most one list, preferring To
// over Cc over Bcc.
//
// Resolution is atomic: if any token fails to resolve, an *UnresolvedError
// naming every bad token is returned and the envelope is empty. A request
// that resolves to no recipients returns ErrNoRecipients.
func (r *Resolver) ResolveEnvelope(to, cc, bcc, excludes []string) (Envelope, error) {
	if containsEveryone(to) || (len(to) == 0 && len(excludes) > 0) {
		to = []string{Everyone}
	}

	toRes := r.Resolve(to, excludes)
	ccRes := r.Resolve(cc, excludes)
	bccRes := r.Resolve(bcc, excludes)

	var unresolved []string
	seenBad := make(map[string]bool)
	for _, res := range []Result{toRes, ccRes, bccRes} {
		for _, token := range res.Unresolved {
			key := strings.ToLower(token)
			if !seenBad[key] {
				seenBad[key] = true
				unresolved = append(unresolved, token)
			}
		}
	}
	if len(unresolved) > 0 {
		return Envelope{}, &UnresolvedError{Aliases: unresolved}
	}

	taken := make(map[string]bool)
	env := Envelope{
		To:  claim(toRes.Recipients, taken),
		Cc:  claim(ccRes.Recipients, taken),
		Bcc: claim(bccRes.Recipients, taken),
	}
	for _, alias := range r.Correct(excludes) {
		if alias != Everyone {
			env.Excluded = append(env.Excluded, alias)
		}
	}

	if env.Total() == 0 {
		return env, ErrNoRecipients
	}
	return env, nil
}

// Emails returns the addresses of recipients in order.
func Emails(recipients []Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, rcpt := range recipients {
		out = append(out, rcpt.Email)
	}
	return out
}

// Names returns the aliases of recipients in order.
func Names(recipients []Recipient) []string {
	out := make([]string, 0, len(recipients))
	for _, rcpt := range recipients {
		out = append(out, rcpt.Alias)
	}
	return out
}

func claim(recipients []Recipient, taken map[string]bool) []Recipient {
	var out []Recipient
	for _, rcpt := range recipients {
		key := strings.ToLower(rcpt.Alias)
		if taken[key] {
			continue
		}
		taken[key] = true
		out = append(out, rcpt)
	}
	return out
}

func containsEveryone(tokens []string) bool {
	for _, token := range tokens {
		if strings.EqualFold(strings.TrimSpace(token), Everyone) {
			return true
		}
	}
	return false
}
