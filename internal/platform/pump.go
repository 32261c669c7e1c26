package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"capsunlocked/internal/layer"
	"capsunlocked/internal/overlay"
)

// DefaultDoubleTap is the CapsLock double-press window that shows the overlay.
const DefaultDoubleTap = 300 * time.Millisecond

// Pump moves events from a Hook through the layer controller to an Output.
// Run is the only goroutine that touches the controller.
type Pump struct {
	ctrl *layer.Controller
	hook Hook
	out  Output
	apps AppMonitor
	caps *CapsLockTracker
	log  *slog.Logger
	now  func() time.Time

	onPanic func(any)
	running atomic.Bool

	overlay   *overlay.Model
	doubleTap time.Duration
	lastCaps  time.Time

	// forwarded holds codes whose press was passed through. Their repeats
	// and release follow the press even if the layer changed meanwhile.
	forwarded map[uint16]struct{}

	// consumed holds codes whose press the layer swallowed.
	consumed map[uint16]struct{}

	// actions holds the action each layer key emitted on press. Its repeats
	// and release replay that action even if the held modifiers changed.
	actions map[uint16]string
	code    uint16
}

// PumpOption configures a Pump.
type PumpOption func(*Pump)

// WithOverlay enables the double-tap overlay toggle. A zero window uses
// DefaultDoubleTap; a negative window disables the toggle.
func WithOverlay(m *overlay.Model, window time.Duration) PumpOption {
	return func(p *Pump) {
		p.overlay = m
		if window == 0 {
			window = DefaultDoubleTap
		}
		p.doubleTap = window
	}
}

// WithPumpLogger sets the pump logger.
func WithPumpLogger(l *slog.Logger) PumpOption {
	return func(p *Pump) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides the time source used for events without a timestamp.
func WithClock(now func() time.Time) PumpOption {
	return func(p *Pump) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPanicHandler is called with the value of a panic recovered in Run,
// after it is logged and before held keys are released.
func WithPanicHandler(fn func(any)) PumpOption {
	return func(p *Pump) { p.onPanic = fn }
}

// WithCapsLockTracker shares a tracker with other detection paths.
func WithCapsLockTracker(t *CapsLockTracker) PumpOption {
	return func(p *Pump) {
		if t != nil {
			p.caps = t
		}
	}
}

// NewPump wires ctrl to hook and out. It installs the controller's action
// callback, replacing any previous one.
func NewPump(ctrl *layer.Controller, hook Hook, out Output, apps AppMonitor, opts ...PumpOption) *Pump {
	if apps == nil {
		apps = StaticApp("")
	}
	p := &Pump{
		ctrl:      ctrl,
		hook:      hook,
		out:       out,
		apps:      apps,
		caps:      &CapsLockTracker{},
		log:       slog.Default(),
		now:       time.Now,
		forwarded: make(map[uint16]struct{}),
		consumed:  make(map[uint16]struct{}),
		actions:   make(map[uint16]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	ctrl.SetActionCallback(p.emit)
	return p
}

// Run starts the hook and processes events until ctx is done or the hook
// closes its channel. On return the layer is dropped and every synthetic key
// is released.
func (p *Pump) Run(ctx context.Context) (err error) {
	if err := p.hook.Start(ctx); err != nil {
		return fmt.Errorf("start hook: %w", err)
	}
	p.running.Store(true)
	defer func() {
		p.running.Store(false)
		if r := recover(); r != nil {
			p.log.Error("pump panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("pump panic: %v", r)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
		p.shutdown()
		if stopErr := p.hook.Stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("stop hook: %w", stopErr)
		}
	}()

	p.log.Info("pump started")
	events := p.hook.Events()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("pump stopping", "reason", ctx.Err())
			return nil
		case ev, ok := <-events:
			if !ok {
				p.log.Info("hook closed")
				return nil
			}
			p.handle(ev)
		}
	}
}

// Running reports whether Run has started the hook and not yet returned.
func (p *Pump) Running() bool {
	return p.running.Load()
}

// CapsLock returns the tracker the pump reports CapsLock edges to.
func (p *Pump) CapsLock() *CapsLockTracker {
	return p.caps
}

func (p *Pump) handle(ev Event) {
	if ev.Synthetic {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = p.now()
	}
	if ev.IsCapsLock() {
		p.handleCapsLock(ev)
		return
	}

	if _, ok := p.forwarded[ev.Code]; ok {
		if !ev.Pressed {
			delete(p.forwarded, ev.Code)
		}
		p.forward(ev)
		return
	}

	p.code = ev.Code
	if p.ctrl.HandleKeyEvent(ev.Key, p.apps.Current(), ev.Pressed) {
		if ev.Pressed {
			p.consumed[ev.Code] = struct{}{}
			return
		}
		delete(p.consumed, ev.Code)
		if act, ok := p.actions[ev.Code]; ok {
			// The release resolved to nothing under the current modifiers.
			delete(p.actions, ev.Code)
			p.send(act, false)
		}
		return
	}

	if _, ok := p.consumed[ev.Code]; ok {
		// Key went down inside the layer and is still held after it.
		if ev.Repeat {
			return
		}
		delete(p.consumed, ev.Code)
		if !ev.Pressed {
			return
		}
	}
	if ev.Pressed {
		p.forwarded[ev.Code] = struct{}{}
	}
	p.forward(ev)
}

func (p *Pump) handleCapsLock(ev Event) {
	if ev.Repeat {
		return
	}
	if !p.caps.Report(ev.Source, ev.Pressed) {
		return
	}
	if ev.Pressed {
		p.toggleOverlay(ev.Time)
	}
	p.ctrl.SetCapsLock(ev.Pressed)
	if !ev.Pressed {
		if err := p.out.ReleaseAll(); err != nil {
			p.log.Warn("release failed", "error", err)
		}
		clear(p.actions)
	}
}

func (p *Pump) toggleOverlay(at time.Time) {
	if p.overlay == nil || p.doubleTap < 0 {
		return
	}
	switch {
	case p.overlay.Visible():
		p.overlay.Hide()
		p.log.Debug("overlay hidden")
	case !p.lastCaps.IsZero() && at.Sub(p.lastCaps) <= p.doubleTap:
		p.overlay.Show()
		p.log.Debug("overlay shown")
	}
	p.lastCaps = at
}

// emit is the controller's action callback for the key in p.code.
func (p *Pump) emit(act string, pressed bool) {
	if prev, ok := p.actions[p.code]; ok {
		act = prev
		if !pressed {
			delete(p.actions, p.code)
		}
	} else if pressed {
		p.actions[p.code] = act
	} else {
		// Pressed before the layer came up, or pressed unmapped.
		return
	}
	p.send(act, pressed)
}

func (p *Pump) send(act string, pressed bool) {
	if err := p.out.Emit(act, pressed); err != nil {
		p.log.Warn("emit failed", "error", err)
	}
}

func (p *Pump) forward(ev Event) {
	if err := p.out.Forward(ev); err != nil {
		p.log.Warn("forward failed", "error", err)
		return
	}
	p.log.Debug("key passed", "key", ev.Key, "pressed", ev.Pressed)
}

func (p *Pump) shutdown() {
	if p.ctrl.SetCapsLock(false) {
		p.log.Debug("layer dropped on shutdown")
	}
	p.caps.Reset()
	if err := p.out.ReleaseAll(); err != nil {
		p.log.Warn("release failed", "error", err)
	}
	p.forwarded = make(map[uint16]struct{})
	p.consumed = make(map[uint16]struct{})
	p.actions = make(map[uint16]string)
}
