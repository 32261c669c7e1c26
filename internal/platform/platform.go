// Package platform connects the layer controller to the operating system.
//
// A Hook delivers raw key events, an Output turns resolved actions into
// synthetic input and re-injects passed-through keys, and an AppMonitor
// reports the focused application. The Pump owns the controller and is the
// only goroutine that ever calls into it.
//
// Platform support:
//   - Linux: evdev input with exclusive grab, uinput output, xprop app lookup
//   - Others: not available; the CLI still runs check/list/resolve
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotAvailable is returned when a collaborator cannot run here.
	ErrNotAvailable = errors.New("platform: not available on this system")

	// ErrAlreadyRunning is returned by Start on a running collaborator.
	ErrAlreadyRunning = errors.New("platform: already running")
)

// SyntheticTag marks events produced by this process ('CAPS'). The virtual
// keyboard carries it as its vendor and product IDs.
const SyntheticTag = 0x43415053

// IsSyntheticID reports whether a device's vendor and product IDs carry
// SyntheticTag.
func IsSyntheticID(vendor, product uint16) bool {
	return vendor == uint16(SyntheticTag>>16) && product == uint16(SyntheticTag&0xffff)
}

// VirtualDeviceName is the name of the uinput device. The evdev hook never
// opens a device with this name, so emitted input cannot loop back.
const VirtualDeviceName = "capsunlocked virtual keyboard"

// CapsLockKey is the normalized name of the layer key.
const CapsLockKey = "CAPSLOCK"

// Source identifies which detection path reported an event.
type Source int

const (
	SourceUnknown Source = iota
	SourceEventTap
	SourceHID
	SourceEvdev
	SourceSimulated
)

func (s Source) String() string {
	switch s {
	case SourceEventTap:
		return "event-tap"
	case SourceHID:
		return "hid"
	case SourceEvdev:
		return "evdev"
	case SourceSimulated:
		return "simulated"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Event is one key edge from a Hook.
type Event struct {
	// Key is the normalized key name, or a "0X.." code for unnamed keys.
	Key string

	// Code is the raw platform key code, used when re-injecting.
	Code uint16

	Pressed bool

	// Repeat marks autorepeat presses.
	Repeat bool

	Source Source

	// Synthetic is set for events read from a device carrying SyntheticTag.
	Synthetic bool

	Time time.Time
}

// IsCapsLock reports whether the event is an edge of the layer key.
func (e Event) IsCapsLock() bool {
	return e.Key == CapsLockKey
}

// Hook delivers key events from the OS.
type Hook interface {
	// Start begins delivering events on Events.
	Start(ctx context.Context) error

	// Stop stops the hook and closes the Events channel.
	Stop() error

	// Events returns the event stream.
	Events() <-chan Event

	// Available reports whether the hook can run with current permissions.
	Available() (bool, string)
}

// Output produces synthetic input.
type Output interface {
	// Emit plays or releases an action string from the keymap.
	Emit(action string, pressed bool) error

	// Forward re-injects an event the layer did not consume.
	Forward(ev Event) error

	// ReleaseAll releases every key still held by an action.
	ReleaseAll() error

	Close() error
}

// AppMonitor reports the focused application.
type AppMonitor interface {
	// Current returns the focused app token, or "" when unknown.
	Current() string
}

// StaticApp is an AppMonitor that always reports the same app.
type StaticApp string

// Current returns the fixed app.
func (s StaticApp) Current() string { return string(s) }

// Config selects and tunes the OS collaborators.
type Config struct {
	// Device is a /dev/input event node; empty means every keyboard.
	Device string

	// Grab takes keyboards exclusively. Without it the OS still sees every
	// physical key and the layer can only add output.
	Grab bool

	// UinputPath defaults to /dev/uinput.
	UinputPath string

	// PollApp is the focused-app polling interval.
	PollApp time.Duration
}
