package mapping

import (
	"sort"

	"capsunlocked/internal/keys"
)

// Resolved is the outcome of a successful lookup.
type Resolved struct {
	// Action is the target of the matched definition.
	Action string

	// App is the app token that supplied the match, or keys.Wildcard for
	// the fallback table.
	App string

	// Mods are the required modifiers of the matched definition, sorted.
	Mods []string
}

// Entry is one row of Index.Enumerate.
type Entry struct {
	App    string   `json:"app"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Mods   []string `json:"mods,omitempty"`
}

// ModifierKey returns the canonical modifier-set string of the entry.
func (e Entry) ModifierKey() string {
	return keys.NormalizeModifierSet(e.Mods)
}

type slot struct {
	app string
	key string
}

type candidate struct {
	mods   []string
	action string
}

// satisfiedBy reports whether every required modifier is in held.
func (c candidate) satisfiedBy(held map[string]struct{}) bool {
	for _, m := range c.mods {
		if _, ok := held[m]; !ok {
			return false
		}
	}
	return true
}

// Index is an immutable, query-optimized view of a Table and Registry.
// All methods are safe for concurrent use.
type Index struct {
	slots     map[slot][]candidate
	modifiers Registry
	entries   []Entry
}

// BuildIndex normalizes table and registry into a new Index. It is a pure
// structural transform; rows whose source normalizes to empty are skipped
// since the loader rejects them before they get here. For rows that repeat
// the same (app, source, modifier set), the first declared wins.
func BuildIndex(table Table, registry Registry) *Index {
	idx := &Index{
		slots:     make(map[slot][]candidate),
		modifiers: make(Registry, len(registry)),
	}
	for m := range registry {
		idx.modifiers.Add(m)
	}

	type seenKey struct {
		slot
		mods string
	}
	seen := make(map[seenKey]struct{})

	// Iterate apps in sorted order so the entry list is deterministic before
	// the final sort.
	for _, rawApp := range table.Apps() {
		app := keys.NormalizeApp(rawApp)
		for _, def := range table[rawApp] {
			src := keys.CanonicalKey(def.Source)
			if src == "" {
				continue
			}
			mods := keys.ModifierList(def.RequiredMods)
			s := slot{app: app, key: src}
			sk := seenKey{slot: s, mods: keys.NormalizeModifierSet(mods)}
			if _, dup := seen[sk]; dup {
				continue
			}
			seen[sk] = struct{}{}

			idx.slots[s] = append(idx.slots[s], candidate{mods: mods, action: def.Target})
			idx.entries = append(idx.entries, Entry{
				App:    app,
				Source: src,
				Target: def.Target,
				Mods:   mods,
			})
		}
	}

	sort.SliceStable(idx.entries, func(i, j int) bool {
		a, b := idx.entries[i], idx.entries[j]
		if a.App != b.App {
			return a.App < b.App
		}
		if len(a.Mods) != len(b.Mods) {
			return len(a.Mods) > len(b.Mods)
		}
		return a.Source < b.Source
	})
	return idx
}

// Resolve finds the action for key in app given the held modifiers.
//
// Among the app's candidates for key whose required modifiers are all held,
// the one with the most required modifiers wins; equal counts are broken by
// declaration order. If the app yields nothing the wildcard table is searched
// the same way. Registered modifier keys never resolve.
func (x *Index) Resolve(key, app string, held []string) (Resolved, bool) {
	k := keys.CanonicalKey(key)
	if k == "" || x.IsModifier(k) {
		return Resolved{}, false
	}
	a := keys.NormalizeApp(app)

	heldSet := make(map[string]struct{}, len(held))
	for _, m := range keys.ModifierList(held) {
		heldSet[m] = struct{}{}
	}

	if a != keys.Wildcard {
		if c, ok := best(x.slots[slot{app: a, key: k}], heldSet); ok {
			return Resolved{Action: c.action, App: a, Mods: cloneMods(c.mods)}, true
		}
	}
	if c, ok := best(x.slots[slot{app: keys.Wildcard, key: k}], heldSet); ok {
		return Resolved{Action: c.action, App: keys.Wildcard, Mods: cloneMods(c.mods)}, true
	}
	return Resolved{}, false
}

// best picks the most specific satisfied candidate, first declared on ties.
func best(cands []candidate, held map[string]struct{}) (candidate, bool) {
	found := -1
	for i, c := range cands {
		if !c.satisfiedBy(held) {
			continue
		}
		if found < 0 || len(c.mods) > len(cands[found].mods) {
			found = i
		}
	}
	if found < 0 {
		return candidate{}, false
	}
	return cands[found], true
}

// IsModifier reports whether key is in the modifier registry.
func (x *Index) IsModifier(key string) bool {
	return x.modifiers.Has(key)
}

// Modifiers returns the registered modifiers, sorted.
func (x *Index) Modifiers() []string {
	return x.modifiers.List()
}

// Enumerate returns every indexed row sorted by app, then descending
// modifier count, then source. The result is a fresh copy on each call.
func (x *Index) Enumerate() []Entry {
	out := make([]Entry, len(x.entries))
	for i, e := range x.entries {
		e.Mods = cloneMods(e.Mods)
		out[i] = e
	}
	return out
}

// Len returns the number of indexed rows.
func (x *Index) Len() int {
	return len(x.entries)
}

func cloneMods(m []string) []string {
	if len(m) == 0 {
		return nil
	}
	return append([]string(nil), m...)
}
