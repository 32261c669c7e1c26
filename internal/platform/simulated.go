package platform

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SimulatedHook is a Hook fed by Send instead of a real keyboard.
type SimulatedHook struct {
	mu      sync.Mutex
	running bool
	closed  bool
	ch      chan Event
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSimulatedHook creates a hook whose event channel holds buffer events.
func NewSimulatedHook(buffer int) *SimulatedHook {
	return &SimulatedHook{ch: make(chan Event, buffer)}
}

// Start marks the hook running. A stopped hook gets a fresh channel.
func (s *SimulatedHook) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	if s.closed {
		s.ch = make(chan Event, cap(s.ch))
		s.closed = false
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	return nil
}

// Stop closes the event channel. A Send blocked on a full buffer is
// abandoned first.
func (s *SimulatedHook) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	s.closed = true
	close(s.ch)
	return nil
}

// Events returns the event stream.
func (s *SimulatedHook) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Available always succeeds.
func (s *SimulatedHook) Available() (bool, string) {
	return true, "simulated hook (for testing)"
}

// Send delivers ev, blocking while the buffer is full. It reports false if
// the hook is not running.
func (s *SimulatedHook) Send(ev Event) bool {
	if ev.Source == SourceUnknown {
		ev.Source = SourceSimulated
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Press sends a key-down for the named key.
func (s *SimulatedHook) Press(key string) bool {
	return s.Send(KeyEvent(key, true))
}

// Release sends a key-up for the named key.
func (s *SimulatedHook) Release(key string) bool {
	return s.Send(KeyEvent(key, false))
}

// KeyEvent builds an event for a named key, filling in its code.
func KeyEvent(key string, pressed bool) Event {
	code, _ := KeyCode(key)
	return Event{Key: KeyName(code), Code: code, Pressed: pressed}
}

// Recorder is an Output that records calls as short strings such as
// "emit LEFT down", "forward A up" and "release-all".
type Recorder struct {
	mu      sync.Mutex
	records []string

	// OnRecord, when set, is called with each record.
	OnRecord func(string)
}

// Emit records an action edge.
func (r *Recorder) Emit(act string, pressed bool) error {
	r.add(fmt.Sprintf("emit %s %s", act, edge(pressed)))
	return nil
}

// Forward records a passed-through key.
func (r *Recorder) Forward(ev Event) error {
	r.add(fmt.Sprintf("forward %s %s", ev.Key, edge(ev.Pressed)))
	return nil
}

// ReleaseAll records a release of every action.
func (r *Recorder) ReleaseAll() error {
	r.add("release-all")
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }

// Records returns a copy of everything recorded so far.
func (r *Recorder) Records() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records...)
}

// Reset drops the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}

func (r *Recorder) add(s string) {
	r.mu.Lock()
	r.records = append(r.records, s)
	fn := r.OnRecord
	r.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func edge(pressed bool) string {
	if pressed {
		return "down"
	}
	return "up"
}
