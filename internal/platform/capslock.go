package platform

import "sync"

// CapsLockTracker merges CapsLock edge reports from several detection paths
// and lets through only real transitions. Two paths reporting the same
// physical press yield one transition.
type CapsLockTracker struct {
	mu          sync.Mutex
	pressed     bool
	last        Source
	transitions uint64
}

// Report records an edge from src and reports whether the state changed.
func (t *CapsLockTracker) Report(src Source, pressed bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pressed == t.pressed {
		return false
	}
	t.pressed = pressed
	t.last = src
	t.transitions++
	return true
}

// Pressed returns the last known state.
func (t *CapsLockTracker) Pressed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pressed
}

// LastSource returns the path that reported the most recent transition.
func (t *CapsLockTracker) LastSource() Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Transitions returns the number of real transitions seen.
func (t *CapsLockTracker) Transitions() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitions
}

// Reset forgets the current state, for example after the hook restarts.
func (t *CapsLockTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pressed = false
}
