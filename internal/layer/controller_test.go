package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capsunlocked/internal/mapping"
)

type emitted struct {
	action  string
	pressed bool
}

type recorder struct {
	events []emitted
}

func (r *recorder) fn(action string, pressed bool) {
	r.events = append(r.events, emitted{action, pressed})
}

type countingObserver struct {
	transitions int
	held        int
	passed      int
	consumed    int
	actions     int
	misses      int
}

func (o *countingObserver) LayerChanged(bool)      { o.transitions++ }
func (o *countingObserver) ModifiersChanged(n int) { o.held = n }
func (o *countingObserver) EventPassed()           { o.passed++ }
func (o *countingObserver) EventConsumed()         { o.consumed++ }
func (o *countingObserver) ActionEmitted()         { o.actions++ }
func (o *countingObserver) ResolveMissed()         { o.misses++ }

func newController(t *testing.T, table mapping.Table, reg mapping.Registry) (*Controller, *recorder) {
	t.Helper()
	engine := mapping.NewEngine(mapping.BuildIndex(table, reg))
	c := New(engine)
	rec := &recorder{}
	c.SetActionCallback(rec.fn)
	return c, rec
}

func TestPassThroughWhileInactive(t *testing.T) {
	c, rec := newController(t, mapping.Table{"*": {{Source: "H", Target: "LEFT"}, {Source: "J", Target: "DOWN"}}}, nil)

	assert.False(t, c.Active())
	assert.False(t, c.HandleKeyEvent("H", "", true))
	assert.False(t, c.HandleKeyEvent("H", "", false))
	assert.False(t, c.HandleKeyEvent("Z", "CHROME", true))
	assert.Empty(t, rec.events)
}

func TestDispatchWhileActive(t *testing.T) {
	c, rec := newController(t, mapping.Table{"*": {{Source: "H", Target: "LEFT"}, {Source: "J", Target: "DOWN"}}}, nil)

	require.True(t, c.CapsLockPressed())
	assert.True(t, c.Active())

	assert.True(t, c.HandleKeyEvent("H", "", true))
	assert.True(t, c.HandleKeyEvent("h", "", false))
	assert.Equal(t, []emitted{{"LEFT", true}, {"LEFT", false}}, rec.events)

	// Unmapped keys are swallowed without emitting anything.
	assert.True(t, c.HandleKeyEvent("Z", "", true))
	assert.Len(t, rec.events, 2)

	require.True(t, c.CapsLockReleased())
	assert.False(t, c.HandleKeyEvent("H", "", true))
	assert.Len(t, rec.events, 2)
}

func TestCapsLockSignalsAreIdempotent(t *testing.T) {
	c, _ := newController(t, nil, nil)
	obs := &countingObserver{}
	WithObserver(obs)(c)

	assert.True(t, c.SetCapsLock(true))
	assert.False(t, c.SetCapsLock(true))
	assert.False(t, c.CapsLockPressed())
	assert.True(t, c.Active())

	assert.True(t, c.SetCapsLock(false))
	assert.False(t, c.SetCapsLock(false))
	assert.False(t, c.Active())
	assert.Equal(t, 2, obs.transitions)

	// Releasing before ever pressing is a no-op too.
	fresh, _ := newController(t, nil, nil)
	assert.False(t, fresh.CapsLockReleased())
}

func layeredTable() mapping.Table {
	return mapping.Table{"*": {
		{Source: "J", Target: "DOWN"},
		{Source: "J", Target: "END", RequiredMods: []string{"A"}},
		{Source: "J", Target: "SHIFT+DOWN", RequiredMods: []string{"S"}},
		{Source: "J", Target: "SHIFT+END", RequiredMods: []string{"A", "S"}},
	}}
}

func TestModifierCombinations(t *testing.T) {
	c, rec := newController(t, layeredTable(), mapping.NewRegistry("A", "S"))
	c.CapsLockPressed()

	assert.True(t, c.HandleKeyEvent("J", "", true))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "DOWN", rec.events[0].action)

	// Modifiers are consumed and never emitted.
	assert.True(t, c.HandleKeyEvent("A", "", true))
	assert.True(t, c.HandleKeyEvent("S", "", true))
	assert.Len(t, rec.events, 1)
	assert.Equal(t, []string{"A", "S"}, c.st.held)

	assert.True(t, c.HandleKeyEvent("J", "", true))
	assert.Equal(t, "SHIFT+END", rec.events[1].action)

	assert.True(t, c.HandleKeyEvent("A", "", false))
	assert.True(t, c.HandleKeyEvent("J", "", true))
	assert.Equal(t, "SHIFT+DOWN", rec.events[2].action)

	assert.True(t, c.HandleKeyEvent("S", "", false))
	assert.True(t, c.HandleKeyEvent("A", "", true))
	assert.True(t, c.HandleKeyEvent("J", "", true))
	assert.Equal(t, "END", rec.events[3].action)
}

func TestModifierKeyRepeatDoesNotDuplicate(t *testing.T) {
	c, _ := newController(t, layeredTable(), mapping.NewRegistry("A", "S"))
	c.CapsLockPressed()

	c.HandleKeyEvent("a", "", true)
	c.HandleKeyEvent("A", "", true)
	c.HandleKeyEvent(" a", "", true)
	assert.Equal(t, []string{"A"}, c.st.held)

	c.HandleKeyEvent("A", "", false)
	assert.Empty(t, c.st.held)

	// A release for a modifier that was never seen is harmless.
	assert.True(t, c.HandleKeyEvent("S", "", false))
	assert.Empty(t, c.st.held)
}

func TestReleaseClearsHeldModifiers(t *testing.T) {
	c, rec := newController(t, layeredTable(), mapping.NewRegistry("A", "S"))
	obs := &countingObserver{}
	WithObserver(obs)(c)

	c.CapsLockPressed()
	c.HandleKeyEvent("A", "", true)
	c.HandleKeyEvent("S", "", true)
	require.Len(t, c.st.held, 2)
	assert.Equal(t, 2, obs.held)

	c.CapsLockReleased()
	assert.Empty(t, c.st.held)
	assert.Equal(t, 0, obs.held)

	// The modifier releases that arrive after the layer ended pass through.
	assert.False(t, c.HandleKeyEvent("A", "", false))

	c.CapsLockPressed()
	c.HandleKeyEvent("J", "", true)
	require.NotEmpty(t, rec.events)
	assert.Equal(t, "DOWN", rec.events[len(rec.events)-1].action)
}

func TestModifierWithoutCallbackStillConsumed(t *testing.T) {
	engine := mapping.NewEngine(mapping.BuildIndex(layeredTable(), mapping.NewRegistry("A", "S")))
	c := New(engine)
	c.CapsLockPressed()
	assert.True(t, c.HandleKeyEvent("A", "", true))
	assert.True(t, c.HandleKeyEvent("J", "", true))
}

func TestSetActionCallbackReplaces(t *testing.T) {
	c, first := newController(t, mapping.Table{"*": {{Source: "H", Target: "LEFT"}}}, nil)
	second := &recorder{}
	c.SetActionCallback(second.fn)

	c.CapsLockPressed()
	c.HandleKeyEvent("H", "", true)
	assert.Empty(t, first.events)
	assert.Equal(t, []emitted{{"LEFT", true}}, second.events)

	c.SetActionCallback(nil)
	assert.True(t, c.HandleKeyEvent("H", "", false))
	assert.Len(t, second.events, 1)
}

func TestPerAppOverrideAndFallback(t *testing.T) {
	table := mapping.Table{
		"*":      {{Source: "K", Target: "UP"}, {Source: "H", Target: "LEFT"}},
		"chrome": {{Source: "K", Target: "PAGEUP"}},
	}
	c, rec := newController(t, table, nil)
	c.CapsLockPressed()

	c.HandleKeyEvent("K", "Chrome", true)
	c.HandleKeyEvent("K", "Safari", true)
	c.HandleKeyEvent("H", "Chrome", true)
	assert.Equal(t, []emitted{{"PAGEUP", true}, {"UP", true}, {"LEFT", true}}, rec.events)
}

func TestReloadIsVisibleToController(t *testing.T) {
	engine := mapping.NewEngine(mapping.BuildIndex(mapping.Table{"*": {{Source: "H", Target: "LEFT"}}}, nil))
	c := New(engine)
	rec := &recorder{}
	c.SetActionCallback(rec.fn)
	c.CapsLockPressed()

	c.HandleKeyEvent("H", "", true)
	engine.Rebuild(mapping.Table{"*": {{Source: "J", Target: "DOWN"}}}, nil)
	assert.True(t, c.HandleKeyEvent("H", "", true))
	assert.Equal(t, []emitted{{"LEFT", true}}, rec.events)
}

func TestObserverCounts(t *testing.T) {
	c, _ := newController(t, layeredTable(), mapping.NewRegistry("A", "S"))
	obs := &countingObserver{}
	WithObserver(obs)(c)

	c.HandleKeyEvent("J", "", true)
	c.CapsLockPressed()
	c.HandleKeyEvent("J", "", true)
	c.HandleKeyEvent("Q", "", true)
	c.HandleKeyEvent("A", "", true)

	assert.Equal(t, 1, obs.passed)
	assert.Equal(t, 3, obs.consumed)
	assert.Equal(t, 1, obs.actions)
	assert.Equal(t, 1, obs.misses)
	assert.Equal(t, 1, obs.held)
}
