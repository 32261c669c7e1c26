// Package keys normalizes key, application, and modifier tokens into the
// canonical forms used for comparison throughout capsunlocked.
//
// All functions are pure and safe for concurrent use.
package keys

import (
	"errors"
	"sort"
	"strings"
	"unicode"
)

// Wildcard is the application token meaning "any application" and the
// modifier-set key for the empty set.
const Wildcard = "*"

// ErrEmptyToken is returned when a key token is empty after normalization.
var ErrEmptyToken = errors.New("empty key token")

// strip removes every whitespace rune and uppercases ASCII letters.
func strip(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		if unicode.IsSpace(r) {
			continue
		}
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeKey strips all whitespace and uppercases ASCII letters.
// It fails with ErrEmptyToken if nothing remains.
func NormalizeKey(token string) (string, error) {
	k := strip(token)
	if k == "" {
		return "", ErrEmptyToken
	}
	return k, nil
}

// CanonicalKey is like NormalizeKey but returns "" instead of an error.
// Callers on the event path use it where an empty token simply never matches.
func CanonicalKey(token string) string {
	return strip(token)
}

// NormalizeApp normalizes an application token. Empty input yields Wildcard.
func NormalizeApp(token string) string {
	a := strip(token)
	if a == "" {
		return Wildcard
	}
	return a
}

// NormalizeModifierSet returns the canonical string for a set of modifier
// tokens: members sorted, deduplicated and joined with "+", or Wildcard for an
// empty set. Members that normalize to empty or to Wildcard are dropped.
func NormalizeModifierSet(tokens []string) string {
	mods := ModifierList(tokens)
	if len(mods) == 0 {
		return Wildcard
	}
	return strings.Join(mods, "+")
}

// ModifierList normalizes, sorts and deduplicates modifier tokens.
func ModifierList(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		k := strip(t)
		if k == "" || k == Wildcard {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return dedupSorted(out)
}

// NormalizeModifierToken canonicalizes a pre-joined modifier string such as
// "s+a" or "*". "S+A" and "A+S" both become "A+S".
func NormalizeModifierToken(token string) string {
	k := strip(token)
	if k == "" || k == Wildcard {
		return Wildcard
	}
	return NormalizeModifierSet(strings.Split(k, "+"))
}

// SplitModifierToken is the inverse of NormalizeModifierToken: it returns the
// sorted member list of a joined modifier string, or nil for Wildcard.
func SplitModifierToken(token string) []string {
	k := strip(token)
	if k == "" || k == Wildcard {
		return nil
	}
	return ModifierList(strings.Split(k, "+"))
}

// NormalizeTarget uppercases an action string and collapses whitespace runs
// to a single space, keeping word boundaries ("Shift  End" -> "SHIFT END").
func NormalizeTarget(token string) (string, error) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return "", ErrEmptyToken
	}
	for i, f := range fields {
		fields[i] = strip(f)
	}
	return strings.Join(fields, " "), nil
}

// SplitTargetKeys returns the individual key names referenced by an action
// string. Sequence steps are split on whitespace, chords on "+", and the
// hold suffix "!" is removed.
func SplitTargetKeys(target string) []string {
	var out []string
	for _, step := range strings.Fields(target) {
		for _, part := range strings.Split(step, "+") {
			part = strings.TrimSuffix(strip(part), "!")
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func dedupSorted(s []string) []string {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
