// Package layer implements the CapsLock layer state machine.
//
// A Controller is Inactive until CapsLock goes down and Active until it comes
// back up. While Inactive every key event passes through untouched. While
// Active, registered modifier keys are tracked and swallowed, and every other
// key is resolved through the mapping engine and swallowed whether or not it
// resolved.
//
// A Controller performs no locking. All calls must come from one goroutine,
// one at a time; see platform.Pump.
package layer

import (
	"log/slog"
	"sort"

	"capsunlocked/internal/keys"
	"capsunlocked/internal/mapping"
)

// ActionFunc receives resolved actions. pressed mirrors the source key edge.
type ActionFunc func(action string, pressed bool)

// Resolver is the read side of the mapping engine.
type Resolver interface {
	Resolve(key, app string, held []string) (mapping.Resolved, bool)
	IsModifier(key string) bool
}

// Observer receives state-machine notifications, typically for metrics.
type Observer interface {
	LayerChanged(active bool)
	ModifiersChanged(held int)
	EventPassed()
	EventConsumed()
	ActionEmitted()
	ResolveMissed()
}

type nopObserver struct{}

func (nopObserver) LayerChanged(bool)    {}
func (nopObserver) ModifiersChanged(int) {}
func (nopObserver) EventPassed()         {}
func (nopObserver) EventConsumed()       {}
func (nopObserver) ActionEmitted()       {}
func (nopObserver) ResolveMissed()       {}

// state is owned by the Controller. held is non-empty only while active.
type state struct {
	active bool
	held   []string // normalized, sorted, unique
}

// Controller is the layer state machine.
type Controller struct {
	resolver Resolver
	action   ActionFunc
	observer Observer
	log      *slog.Logger

	st state
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates an Inactive controller resolving through r.
func New(r Resolver, opts ...Option) *Controller {
	c := &Controller{
		resolver: r,
		observer: nopObserver{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetActionCallback replaces the action sink. The last registration wins;
// nil disables emission.
func (c *Controller) SetActionCallback(fn ActionFunc) {
	c.action = fn
}

// SetCapsLock feeds a CapsLock edge signal. Repeated signals that match the
// current state are no-ops. It reports whether a transition happened.
func (c *Controller) SetCapsLock(pressed bool) bool {
	if pressed == c.st.active {
		return false
	}
	if pressed {
		c.st.active = true
		c.log.Debug("layer active")
	} else {
		c.st.active = false
		c.st.held = c.st.held[:0]
		c.observer.ModifiersChanged(0)
		c.log.Debug("layer inactive")
	}
	c.observer.LayerChanged(c.st.active)
	return true
}

// CapsLockPressed is SetCapsLock(true).
func (c *Controller) CapsLockPressed() bool {
	return c.SetCapsLock(true)
}

// CapsLockReleased is SetCapsLock(false).
func (c *Controller) CapsLockReleased() bool {
	return c.SetCapsLock(false)
}

// Active reports whether the layer is currently engaged.
func (c *Controller) Active() bool {
	return c.st.active
}

// HandleKeyEvent processes one key edge and reports whether the event was
// consumed. The caller must suppress consumed events.
func (c *Controller) HandleKeyEvent(key, app string, pressed bool) bool {
	if !c.st.active {
		c.observer.EventPassed()
		return false
	}
	c.observer.EventConsumed()

	if c.resolver.IsModifier(key) {
		k := keys.CanonicalKey(key)
		if pressed {
			c.addHeld(k)
		} else {
			c.removeHeld(k)
		}
		return true
	}

	res, ok := c.resolver.Resolve(key, app, c.st.held)
	if !ok {
		c.observer.ResolveMissed()
		c.log.Debug("unmapped key swallowed", "key", key, "app", app)
		return true
	}
	if c.action != nil {
		c.action(res.Action, pressed)
		c.observer.ActionEmitted()
	}
	return true
}

func (c *Controller) addHeld(k string) {
	i := sort.SearchStrings(c.st.held, k)
	if i < len(c.st.held) && c.st.held[i] == k {
		return
	}
	c.st.held = append(c.st.held, "")
	copy(c.st.held[i+1:], c.st.held[i:])
	c.st.held[i] = k
	c.observer.ModifiersChanged(len(c.st.held))
}

func (c *Controller) removeHeld(k string) {
	i := sort.SearchStrings(c.st.held, k)
	if i >= len(c.st.held) || c.st.held[i] != k {
		return
	}
	c.st.held = append(c.st.held[:i], c.st.held[i+1:]...)
	c.observer.ModifiersChanged(len(c.st.held))
}
