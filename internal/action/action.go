// Package action parses the action strings stored in keymaps into an ordered
// plan of key presses for a platform output.
//
// Grammar:
//
//	action := step (' ' step)*
//	step   := key ('+' key)*
//
// A key suffixed with '!' is held from that point to the end of the action.
// In a '+' chord every key but the last is held for that step only, and the
// last key is tapped. Hex codes such as 0X1A are accepted as keys.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"capsunlocked/internal/keys"
)

var (
	// ErrEmptyAction is returned for an action with no steps.
	ErrEmptyAction = errors.New("action: empty action")

	// ErrEmptyKey is returned when a step contains an empty key, as in "CTRL+".
	ErrEmptyKey = errors.New("action: empty key")
)

// Step is one tap with the keys that must be down while it happens.
type Step struct {
	Held []string
	Tap  string
}

// Plan is a parsed action.
type Plan struct {
	Steps []Step

	// Hold lists keys that stay down after the last step until the action is
	// released.
	Hold []string
}

// Parse converts an action string into a Plan.
func Parse(action string) (Plan, error) {
	words := strings.Fields(action)
	if len(words) == 0 {
		return Plan{}, ErrEmptyAction
	}

	var plan Plan
	var sticky []string
	for _, word := range words {
		parts := strings.Split(word, "+")
		var chord []string
		tap := ""
		for i, p := range parts {
			k := keys.CanonicalKey(p)
			held := strings.HasSuffix(k, "!")
			k = strings.TrimSuffix(k, "!")
			if k == "" {
				return Plan{}, fmt.Errorf("%w in %q", ErrEmptyKey, word)
			}
			switch {
			case held:
				sticky = appendUnique(sticky, k)
			case i == len(parts)-1:
				tap = k
			default:
				chord = appendUnique(chord, k)
			}
		}
		if tap == "" && len(chord) > 0 {
			tap = chord[len(chord)-1]
			chord = chord[:len(chord)-1]
		}
		if tap == "" {
			continue
		}

		held := append([]string(nil), sticky...)
		for _, c := range chord {
			held = appendUnique(held, c)
		}
		plan.Steps = append(plan.Steps, Step{Held: held, Tap: tap})
	}
	plan.Hold = sticky
	return plan, nil
}

// Keys returns every distinct key the plan touches, in first-use order.
func (p Plan) Keys() []string {
	var out []string
	for _, s := range p.Steps {
		for _, h := range s.Held {
			out = appendUnique(out, h)
		}
		out = appendUnique(out, s.Tap)
	}
	for _, h := range p.Hold {
		out = appendUnique(out, h)
	}
	return out
}

// String renders the plan in canonical action syntax.
func (p Plan) String() string {
	var words []string
	var sticky []string
	for _, s := range p.Steps {
		var parts []string
		for _, h := range s.Held {
			if contains(p.Hold, h) {
				if !contains(sticky, h) {
					sticky = append(sticky, h)
					words = append(words, h+"!")
				}
				continue
			}
			parts = append(parts, h)
		}
		words = append(words, strings.Join(append(parts, s.Tap), "+"))
	}
	for _, h := range p.Hold {
		if !contains(sticky, h) {
			words = append(words, h+"!")
		}
	}
	return strings.Join(words, " ")
}

// HexCode decodes a raw key code token such as "0X1A".
func HexCode(key string) (uint16, bool) {
	k := keys.CanonicalKey(key)
	if !strings.HasPrefix(k, "0X") || len(k) == 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(k[2:], 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

func appendUnique(s []string, k string) []string {
	if contains(s, k) {
		return s
	}
	return append(s, k)
}

func contains(s []string, k string) bool {
	for _, v := range s {
		if v == k {
			return true
		}
	}
	return false
}
