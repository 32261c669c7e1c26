package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"capsunlocked/internal/action"
)

// Key event values written to a KeyWriter.
const (
	KeyUp     int32 = 0
	KeyDown   int32 = 1
	KeyRepeat int32 = 2
)

// KeyWriter is the raw sink an Emitter drives, such as a uinput device.
type KeyWriter interface {
	WriteKey(code uint16, value int32) error
	Sync() error
}

// activeAction is an action whose trigger key is still down.
type activeAction struct {
	name   string
	tap    uint16
	hasTap bool
	held   []uint16
}

// Emitter turns action strings into key events on a KeyWriter. Keys shared
// by overlapping actions are reference counted so releasing one action does
// not lift a key another still holds.
type Emitter struct {
	mu     sync.Mutex
	w      KeyWriter
	log    *slog.Logger
	refs   map[uint16]int
	active []*activeAction
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w KeyWriter, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{w: w, log: log, refs: make(map[uint16]int)}
}

// Emit plays action on press and releases its held keys on release. A second
// press while the action is down is written as autorepeat of the final tap.
func (e *Emitter) Emit(act string, pressed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !pressed {
		a := e.take(act)
		if a == nil {
			return nil
		}
		return e.release(a)
	}

	if a := e.find(act); a != nil {
		if !a.hasTap {
			return nil
		}
		if err := e.w.WriteKey(a.tap, KeyRepeat); err != nil {
			return err
		}
		return e.w.Sync()
	}

	plan, err := action.Parse(act)
	if err != nil {
		return fmt.Errorf("emit %q: %w", act, err)
	}
	a, err := e.play(act, plan)
	if err != nil {
		return fmt.Errorf("emit %q: %w", act, err)
	}
	e.active = append(e.active, a)
	e.log.Debug("action down", "action", act, "held", len(a.held))
	return nil
}

// play walks the plan. Before each step the set of held keys is moved to the
// step's set; every step but the last is tapped, and the last tap stays down.
func (e *Emitter) play(name string, plan action.Plan) (*activeAction, error) {
	a := &activeAction{name: name}

	steps := make([]struct {
		held []uint16
		tap  uint16
	}, len(plan.Steps))
	for i, s := range plan.Steps {
		for _, h := range s.Held {
			code, ok := KeyCode(h)
			if !ok {
				return nil, fmt.Errorf("unknown key %q", h)
			}
			steps[i].held = append(steps[i].held, code)
		}
		code, ok := KeyCode(s.Tap)
		if !ok {
			return nil, fmt.Errorf("unknown key %q", s.Tap)
		}
		steps[i].tap = code
	}
	var hold []uint16
	for _, h := range plan.Hold {
		code, ok := KeyCode(h)
		if !ok {
			return nil, fmt.Errorf("unknown key %q", h)
		}
		hold = append(hold, code)
	}

	if len(steps) == 0 {
		for _, c := range hold {
			if err := e.press(c); err != nil {
				return nil, err
			}
		}
		a.held = hold
		return a, e.w.Sync()
	}

	var down []uint16
	for i, s := range steps {
		for j := len(down) - 1; j >= 0; j-- {
			if !containsCode(s.held, down[j]) {
				if err := e.lift(down[j]); err != nil {
					return nil, err
				}
			}
		}
		next := down[:0:0]
		for _, c := range down {
			if containsCode(s.held, c) {
				next = append(next, c)
			}
		}
		for _, c := range s.held {
			if !containsCode(next, c) {
				if err := e.press(c); err != nil {
					return nil, err
				}
				next = append(next, c)
			}
		}
		down = next

		if err := e.press(s.tap); err != nil {
			return nil, err
		}
		if i < len(steps)-1 {
			if err := e.lift(s.tap); err != nil {
				return nil, err
			}
		} else {
			a.tap, a.hasTap = s.tap, true
		}
		if err := e.w.Sync(); err != nil {
			return nil, err
		}
	}
	a.held = down
	return a, nil
}

func (e *Emitter) release(a *activeAction) error {
	if a.hasTap {
		if err := e.lift(a.tap); err != nil {
			return err
		}
	}
	for i := len(a.held) - 1; i >= 0; i-- {
		if err := e.lift(a.held[i]); err != nil {
			return err
		}
	}
	return e.w.Sync()
}

// ReleaseAll releases every active action, newest first.
func (e *Emitter) ReleaseAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for i := len(e.active) - 1; i >= 0; i-- {
		if err := e.release(e.active[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.active = nil
	return firstErr
}

// Forward writes a passed-through event unchanged.
func (e *Emitter) Forward(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	value := KeyUp
	switch {
	case ev.Pressed && ev.Repeat:
		value = KeyRepeat
	case ev.Pressed:
		value = KeyDown
	}
	if err := e.w.WriteKey(ev.Code, value); err != nil {
		return err
	}
	return e.w.Sync()
}

// Active returns the names of actions currently held down.
func (e *Emitter) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.active))
	for i, a := range e.active {
		out[i] = a.name
	}
	return out
}

func (e *Emitter) press(code uint16) error {
	e.refs[code]++
	if e.refs[code] > 1 {
		return nil
	}
	if err := e.w.WriteKey(code, KeyDown); err != nil {
		delete(e.refs, code)
		return err
	}
	return nil
}

func (e *Emitter) lift(code uint16) error {
	if e.refs[code] == 0 {
		return nil
	}
	e.refs[code]--
	if e.refs[code] > 0 {
		return nil
	}
	delete(e.refs, code)
	return e.w.WriteKey(code, KeyUp)
}

func (e *Emitter) find(name string) *activeAction {
	for _, a := range e.active {
		if a.name == name {
			return a
		}
	}
	return nil
}

func (e *Emitter) take(name string) *activeAction {
	for i, a := range e.active {
		if a.name == name {
			e.active = append(e.active[:i], e.active[i+1:]...)
			return a
		}
	}
	return nil
}

func containsCode(s []uint16, c uint16) bool {
	for _, v := range s {
		if v == c {
			return true
		}
	}
	return false
}
