// Package overlay holds the state behind the on-screen cheat sheet: which
// mappings to list and whether the sheet is showing. Drawing it is left to a
// platform view.
package overlay

import (
	"fmt"
	"strings"
	"sync"

	"capsunlocked/internal/keys"
	"capsunlocked/internal/mapping"
)

// Model is safe for concurrent use.
type Model struct {
	mu      sync.RWMutex
	entries []mapping.Entry
	visible bool
}

// New returns a hidden, empty model.
func New() *Model {
	return &Model{}
}

// Bind replaces the listed entries, usually with mapping.Index.Enumerate().
func (m *Model) Bind(entries []mapping.Entry) {
	cp := make([]mapping.Entry, len(entries))
	copy(cp, entries)
	m.mu.Lock()
	m.entries = cp
	m.mu.Unlock()
}

// Show makes the overlay visible.
func (m *Model) Show() { m.setVisible(true) }

// Hide makes the overlay hidden.
func (m *Model) Hide() { m.setVisible(false) }

// Toggle flips visibility and returns the new state.
func (m *Model) Toggle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = !m.visible
	return m.visible
}

func (m *Model) setVisible(v bool) {
	m.mu.Lock()
	m.visible = v
	m.mu.Unlock()
}

// Visible reports whether the overlay is showing.
func (m *Model) Visible() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visible
}

// Entries returns the bound rows that apply to app: its own rows followed by
// the wildcard rows. An empty app or "*" returns everything.
func (m *Model) Entries(app string) []mapping.Entry {
	app = keys.NormalizeApp(app)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]mapping.Entry, 0, len(m.entries))
	if app == keys.Wildcard {
		return append(out, m.entries...)
	}
	for _, e := range m.entries {
		if e.App == app {
			out = append(out, e)
		}
	}
	for _, e := range m.entries {
		if e.App == keys.Wildcard {
			out = append(out, e)
		}
	}
	return out
}

// Describe renders the model as text.
func (m *Model) Describe() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	if m.visible {
		b.WriteString("overlay:visible")
	} else {
		b.WriteString("overlay:hidden")
	}
	for _, e := range m.entries {
		b.WriteString("\n")
		b.WriteString(FormatEntry(e))
	}
	return b.String()
}

// FormatEntry renders one row as "[APP] [MODS] SRC -> TGT". The modifier
// group is omitted when the row needs none.
func FormatEntry(e mapping.Entry) string {
	if len(e.Mods) == 0 {
		return fmt.Sprintf("[%s] %s -> %s", e.App, e.Source, e.Target)
	}
	return fmt.Sprintf("[%s] [%s] %s -> %s", e.App, strings.Join(e.Mods, " "), e.Source, e.Target)
}
