// Package mapping holds the declarative key-mapping table and the engine that
// resolves (key, application, held modifiers) to an output action.
package mapping

import (
	"sort"

	"capsunlocked/internal/keys"
)

// Definition is a single remap row.
type Definition struct {
	// Source is the key pressed while the layer is active.
	Source string `json:"source" toml:"source" yaml:"source"`

	// Target is the opaque action string handed to the platform output.
	Target string `json:"target" toml:"target" yaml:"target"`

	// RequiredMods must all be held for this row to be eligible.
	RequiredMods []string `json:"required_mods,omitempty" toml:"required_mods" yaml:"required_mods,omitempty"`
}

// Table maps an application token to its definitions in declaration order.
type Table map[string][]Definition

// Add appends a definition for app, keeping declaration order.
func (t Table) Add(app string, def Definition) {
	t[app] = append(t[app], def)
}

// Count returns the total number of definitions across all apps.
func (t Table) Count() int {
	n := 0
	for _, defs := range t {
		n += len(defs)
	}
	return n
}

// Apps returns the application tokens in sorted order.
func (t Table) Apps() []string {
	apps := make([]string, 0, len(t))
	for app := range t {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for app, defs := range t {
		cp := make([]Definition, len(defs))
		for i, d := range defs {
			cp[i] = Definition{
				Source:       d.Source,
				Target:       d.Target,
				RequiredMods: append([]string(nil), d.RequiredMods...),
			}
		}
		out[app] = cp
	}
	return out
}

// Registry is the set of keys declared as layer modifiers.
type Registry map[string]struct{}

// NewRegistry builds a registry from raw tokens. Tokens that normalize to
// empty are ignored.
func NewRegistry(tokens ...string) Registry {
	r := make(Registry, len(tokens))
	for _, t := range tokens {
		r.Add(t)
	}
	return r
}

// Add normalizes and inserts a modifier token.
func (r Registry) Add(token string) {
	if k := keys.CanonicalKey(token); k != "" {
		r[k] = struct{}{}
	}
}

// Has reports whether the normalized key is a registered modifier.
func (r Registry) Has(key string) bool {
	_, ok := r[keys.CanonicalKey(key)]
	return ok
}

// List returns the registered modifiers in sorted order.
func (r Registry) List() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultTable is the built-in keymap used when no configuration exists.
func DefaultTable() Table {
	return Table{
		keys.Wildcard: {
			{Source: "J", Target: "LEFT"},
			{Source: "K", Target: "DOWN"},
			{Source: "I", Target: "UP"},
			{Source: "L", Target: "RIGHT"},
			{Source: "J", Target: "HOME", RequiredMods: []string{"D"}},
			{Source: "K", Target: "PAGEDOWN", RequiredMods: []string{"D"}},
			{Source: "I", Target: "PAGEUP", RequiredMods: []string{"D"}},
			{Source: "L", Target: "END", RequiredMods: []string{"D"}},
			{Source: "J", Target: "SHIFT! LEFT", RequiredMods: []string{"S"}},
			{Source: "K", Target: "SHIFT! DOWN", RequiredMods: []string{"S"}},
			{Source: "I", Target: "SHIFT! UP", RequiredMods: []string{"S"}},
			{Source: "L", Target: "SHIFT! RIGHT", RequiredMods: []string{"S"}},
		},
	}
}

// DefaultRegistry is the modifier registry paired with DefaultTable.
func DefaultRegistry() Registry {
	return NewRegistry("S", "D")
}
