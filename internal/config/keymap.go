package config

import (
	"fmt"
	"strings"

	"capsunlocked/internal/mapping"
)

// Keymap is a fully parsed and validated keymap file.
type Keymap struct {
	// Table holds the mapping rows, keyed by normalized app token.
	Table mapping.Table

	// Modifiers is the declared modifier registry. It is empty in simple mode.
	Modifiers mapping.Registry

	// HasModifiersSection reports whether the file declared a registry,
	// which turns on cross-reference validation.
	HasModifiersSection bool

	// Path is the file this keymap was read from.
	Path string

	// Defaults is set when the built-in table was used because the file was
	// missing or had no mapping rows.
	Defaults bool
}

// DefaultKeymap returns the built-in keymap.
func DefaultKeymap() *Keymap {
	return &Keymap{
		Table:               mapping.DefaultTable(),
		Modifiers:           mapping.DefaultRegistry(),
		HasModifiersSection: true,
		Defaults:            true,
	}
}

// EffectiveModifiers is the registry handed to the engine. Without a
// declared section every key used as a required modifier counts as one.
func (k *Keymap) EffectiveModifiers() mapping.Registry {
	if k.HasModifiersSection {
		return k.Modifiers
	}
	reg := mapping.NewRegistry()
	for _, defs := range k.Table {
		for _, d := range defs {
			for _, m := range d.RequiredMods {
				reg.Add(m)
			}
		}
	}
	return reg
}

// Index builds a fresh engine snapshot for this keymap.
func (k *Keymap) Index() *mapping.Index {
	return mapping.BuildIndex(k.Table, k.EffectiveModifiers())
}

// Describe renders a human-readable summary for logs and the check command.
func (k *Keymap) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Config (%d entries", k.Table.Count())
	if k.HasModifiersSection {
		fmt.Fprintf(&b, ", %d modifiers", len(k.Modifiers))
	}
	b.WriteString(")")

	if k.HasModifiersSection && len(k.Modifiers) > 0 {
		b.WriteString("\nModifiers: ")
		b.WriteString(strings.Join(k.Modifiers.List(), ", "))
	}

	for _, app := range k.Table.Apps() {
		for _, def := range k.Table[app] {
			fmt.Fprintf(&b, "\n[%s] ", app)
			if len(def.RequiredMods) > 0 {
				fmt.Fprintf(&b, "[%s] ", strings.Join(def.RequiredMods, " "))
			}
			fmt.Fprintf(&b, "%s -> %s", def.Source, def.Target)
		}
	}
	return b.String()
}
