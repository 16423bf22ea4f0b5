// Package rules compiles the name rules applied to every entry of a sweep:
// prefixes to strip, delete rules (regex, glob, exact name) and artifact names to skip.
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/IGLOU-EU/go-wildcard"
)

// Kind identifies which family of delete rule matched.
type Kind string

const (
	KindRegex Kind = "regex"
	KindGlob  Kind = "glob"
	KindExact Kind = "exact"
)

// dsStore is skipped by prefix: Finder also leaves ".DS_Store 2" style copies.
const dsStore = ".DS_Store"

// DefaultSkipNames are platform artifacts that are never renamed, deleted or reported.
var DefaultSkipNames = []string{dsStore, "Thumbs.db", "desktop.ini"}

var errEmptyPattern = errors.New("empty pattern")

// Match describes the delete rule that selected an entry.
type Match struct {
	Kind    Kind
	Pattern string
}

// String formats the match for logs and history, e.g. "regex:^\[DMC\.RIP\].*\.url$".
func (m Match) String() string {
	return string(m.Kind) + ":" + m.Pattern
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// Set is an immutable, compiled rule set. The zero value matches nothing.
type Set struct {
	prefixes []string
	patterns []compiledPattern
	globs    []string
	exact    map[string]struct{}
	skip     map[string]struct{}
}

// Spec is the uncompiled form of a Set, as read from config or flags.
// DeleteGlobs use wildcard syntax where "*" matches any run of characters,
// "?" matches one character and everything else, "." included, is literal.
type Spec struct {
	Prefixes         []string
	DeletePatterns   []string
	DeleteGlobs      []string
	ExactDeleteNames []string
	SkipNames        []string
}

// Compile validates and compiles a Spec. Blank entries are dropped; order is kept.
// Regex patterns are anchored at the start of the name.
//
// Prefixes are stripped repeatedly until none matches, so a prefix that
// appears at the front of the remainder is also removed: with prefixes "[A]"
// and "B", "[A]B.txt" becomes ".txt".
func Compile(spec Spec) (*Set, error) {
	s := &Set{
		exact: make(map[string]struct{}),
		skip:  make(map[string]struct{}),
	}

	for _, p := range spec.Prefixes {
		if strings.TrimSpace(p) == "" {
			continue
		}
		s.prefixes = append(s.prefixes, p)
	}

	for _, p := range spec.DeletePatterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		s.patterns = append(s.patterns, compiledPattern{source: p, re: re})
	}

	for _, g := range spec.DeleteGlobs {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		s.globs = append(s.globs, g)
	}

	for _, n := range spec.ExactDeleteNames {
		if n == "" {
			continue
		}
		s.exact[n] = struct{}{}
	}

	for _, n := range spec.SkipNames {
		if n == "" {
			continue
		}
		s.skip[n] = struct{}{}
	}

	return s, nil
}

// CompilePattern compiles a delete pattern anchored at the start of a name.
func CompilePattern(p string) (*regexp.Regexp, error) {
	if strings.TrimSpace(p) == "" {
		return nil, errEmptyPattern
	}
	re, err := regexp.Compile(`^(?:` + p + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", p, err)
	}
	return re, nil
}

// Skip reports whether name is a platform artifact to pass over silently.
func (s *Set) Skip(name string) bool {
	if strings.HasPrefix(name, dsStore) {
		return true
	}
	_, ok := s.skip[name]
	return ok
}

// MatchDelete tests name against regex patterns, then globs, then exact names.
// The first match wins.
func (s *Set) MatchDelete(name string) (Match, bool) {
	for _, p := range s.patterns {
		if p.re.MatchString(name) {
			return Match{Kind: KindRegex, Pattern: p.source}, true
		}
	}
	for _, g := range s.globs {
		if wildcard.Match(g, name) {
			return Match{Kind: KindGlob, Pattern: g}, true
		}
	}
	if _, ok := s.exact[name]; ok {
		return Match{Kind: KindExact, Pattern: name}, true
	}
	return Match{}, false
}

// StripPrefix removes the first configured prefix that name starts with and
// trims surrounding whitespace, repeating until no prefix matches.
// Returns the new name and whether it differs from name.
func (s *Set) StripPrefix(name string) (string, bool) {
	out := name
	for {
		stripped := false
		for _, p := range s.prefixes {
			if strings.HasPrefix(out, p) {
				out = strings.TrimSpace(out[len(p):])
				stripped = true
				break
			}
		}
		if !stripped || out == "" {
			break
		}
	}
	return out, out != name
}

// Prefixes returns the configured prefixes in match order.
func (s *Set) Prefixes() []string {
	out := make([]string, len(s.prefixes))
	copy(out, s.prefixes)
	return out
}

// Empty reports whether the set can neither rename nor delete anything.
func (s *Set) Empty() bool {
	return len(s.prefixes) == 0 && len(s.patterns) == 0 && len(s.globs) == 0 && len(s.exact) == 0
}
