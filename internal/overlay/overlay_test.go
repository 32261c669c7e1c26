package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsunlocked/internal/mapping"
)

func testIndex() *mapping.Index {
	table := mapping.Table{
		"*": {
			{Source: "J", Target: "LEFT"},
			{Source: "J", Target: "HOME", RequiredMods: []string{"D"}},
		},
		"CHROME": {
			{Source: "K", Target: "CTRL+TAB"},
		},
	}
	return mapping.BuildIndex(table, mapping.NewRegistry("D"))
}

func TestModelVisibility(t *testing.T) {
	m := New()
	assert.False(t, m.Visible())

	m.Show()
	assert.True(t, m.Visible())
	m.Show()
	assert.True(t, m.Visible())

	m.Hide()
	assert.False(t, m.Visible())

	assert.True(t, m.Toggle())
	assert.False(t, m.Toggle())
}

func TestModelDescribe(t *testing.T) {
	m := New()
	m.Bind(testIndex().Enumerate())

	assert.Equal(t,
		"overlay:hidden\n[*] [D] J -> HOME\n[*] J -> LEFT\n[CHROME] K -> CTRL+TAB",
		m.Describe())

	m.Show()
	assert.Contains(t, m.Describe(), "overlay:visible\n")
}

func TestModelEntriesForApp(t *testing.T) {
	m := New()
	m.Bind(testIndex().Enumerate())

	chrome := m.Entries("chrome")
	require.Len(t, chrome, 3)
	assert.Equal(t, "CHROME", chrome[0].App)
	assert.Equal(t, "*", chrome[1].App)

	assert.Len(t, m.Entries(""), 3)
	assert.Len(t, m.Entries("safari"), 2)
}

func TestModelBindCopies(t *testing.T) {
	entries := testIndex().Enumerate()
	m := New()
	m.Bind(entries)

	entries[0].Target = "CHANGED"
	assert.NotContains(t, m.Describe(), "CHANGED")
}
