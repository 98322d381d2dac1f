// Package review resolves reviewer input into canonical "Name <email>"
// identities, consulting ticket attributes, the tracker-username mapping,
// and the project's committer list.
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"pushpatches/internal/trac"
)

var (
	ErrNoReviewerFound   = errors.New("no reviewer found")
	ErrReviewerNotFound  = errors.New("reviewer not found")
	ErrAmbiguousReviewer = errors.New("ambiguous reviewer")
)

// canonicalRe matches a trusted reviewer identity: word characters, a
// name free of angle brackets, and a bracketed email whose domain
// contains a dot.
var canonicalRe = regexp.MustCompile(`^\w+\s+[^<>]+\s+<[^@<>\s]+@[^@<>\s]+\.[^@<>\s]+>$`)

// Options drives one resolution.
type Options struct {
	// NoReviewer suppresses reviewer injection entirely.
	NoReviewer bool
	// Explicit reviewer tokens supplied by the operator; take precedence
	// over tracker data.
	Explicit []string
	// Tickets consulted for reviewer attributes when no explicit tokens
	// were given. May be empty.
	Tickets []*trac.Ticket
	// Tracker reports whether a tracker is available at all.
	Tracker bool
	// Usernames maps tracker usernames to canonical identities;
	// pass-through for tokens not in the map.
	Usernames map[string]string
	// Committers is the project committer list, one canonical
	// "Name <email>" entry per element.
	Committers []string
}

// Resolve turns reviewer input into the list of canonical identities to
// inject, in resolution order. An empty list with a nil error only occurs
// when NoReviewer is set; every other empty outcome is an error, raised
// before any patch is mutated.
func Resolve(ctx context.Context, opts Options) ([]string, error) {
	if opts.NoReviewer {
		return nil, nil
	}

	tokens := opts.Explicit

	if len(tokens) == 0 {
		if !opts.Tracker {
			return nil, fmt.Errorf("%w: no tracker and no --reviewer", ErrNoReviewerFound)
		}

		fromTickets, err := ticketReviewers(ctx, opts.Tickets, opts.Usernames)
		if err != nil {
			return nil, err
		}

		tokens = fromTickets
	}

	resolved := make([]string, 0, len(tokens))

	for _, token := range tokens {
		name, err := Normalize(token, opts.Committers)
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, name)
	}

	if len(resolved) == 0 {
		return nil, ErrNoReviewerFound
	}

	return resolved, nil
}

// ticketReviewers collects the distinct non-empty reviewer attribute
// across the tickets, mapped through the username table. More than one
// distinct value is ambiguous; none is an error.
func ticketReviewers(ctx context.Context, tickets []*trac.Ticket, usernames map[string]string) ([]string, error) {
	seen := make(map[string]bool)

	var distinct []string

	for _, ticket := range tickets {
		reviewer, err := ticket.Attribute(ctx, "reviewer")
		if err != nil {
			return nil, err
		}

		if reviewer == "" || seen[reviewer] {
			continue
		}

		seen[reviewer] = true
		distinct = append(distinct, reviewer)
	}

	if len(distinct) > 1 {
		return nil, fmt.Errorf("%w: tickets name %s", ErrAmbiguousReviewer, strings.Join(distinct, ", "))
	}

	if len(distinct) == 0 {
		return nil, fmt.Errorf("%w: no ticket has a reviewer set", ErrNoReviewerFound)
	}

	mapped := make([]string, len(distinct))

	for i, token := range distinct {
		if canonical, ok := usernames[token]; ok {
			token = canonical
		}

		mapped[i] = token
	}

	return mapped, nil
}

// Normalize returns the canonical identity for a reviewer token. Tokens
// already in canonical form pass through unchanged. Anything else is a
// case-insensitive substring query against the committer list; exactly one
// match is required, and the matching entry is transliterated to plain
// ASCII.
func Normalize(token string, committers []string) (string, error) {
	if canonicalRe.MatchString(token) {
		return token, nil
	}

	query := strings.ToLower(token)

	var matches []string

	for _, committer := range committers {
		if strings.Contains(strings.ToLower(committer), query) {
			matches = append(matches, committer)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrReviewerNotFound, token)
	case 1:
		return Transliterate(matches[0]), nil
	default:
		return "", fmt.Errorf("%w: %q matches %s", ErrAmbiguousReviewer, token, strings.Join(matches, ", "))
	}
}

// Transliterate renders a name in plain ASCII: decompose, strip combining
// marks, drop whatever non-ASCII remains.
func Transliterate(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}

	return out
}

// LoadCommitters reads the committer list from a contributors file inside
// the repository: one "Name <email>" per line, lines not in canonical form
// ignored.
func LoadCommitters(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contributors: %w", err)
	}

	var committers []string

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if canonicalRe.MatchString(line) {
			committers = append(committers, line)
		}
	}

	return committers, nil
}
