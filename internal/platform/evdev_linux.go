//go:build linux

package platform

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// eviocgrab is _IOW('E', 0x90, int).
const eviocgrab = 0x40044590

// EvdevHook reads key events from /dev/input keyboards. With grab set it
// takes the devices exclusively, so every key reaches applications only
// through the Output.
type EvdevHook struct {
	devices []string
	grab    bool
	log     *slog.Logger

	mu      sync.Mutex
	running bool
	files   []*os.File
	virtual map[*os.File]bool
	events  chan Event
	wg      sync.WaitGroup
}

// NewEvdevHook creates a hook. An empty device list means every keyboard
// found in /proc/bus/input/devices.
func NewEvdevHook(devices []string, grab bool, log *slog.Logger) *EvdevHook {
	if log == nil {
		log = slog.Default()
	}
	return &EvdevHook{devices: devices, grab: grab, log: log, events: make(chan Event, 64)}
}

// Available checks that at least one keyboard can be opened.
func (h *EvdevHook) Available() (bool, string) {
	paths, err := h.paths()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(paths) == 0 {
		return false, "no keyboard devices found"
	}
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", p)
		}
	}
	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (h *EvdevHook) paths() ([]string, error) {
	if len(h.devices) > 0 {
		return h.devices, nil
	}
	f, err := os.Open(InputDevicesPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	devs, err := ParseInputDevices(f)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, d := range Keyboards(devs) {
		out = append(out, d.EventPath())
	}
	return out, nil
}

// Start opens and optionally grabs the keyboards and starts one reader per
// device.
func (h *EvdevHook) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrAlreadyRunning
	}

	paths, err := h.paths()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("%w: no keyboard devices found", ErrNotAvailable)
	}

	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			h.log.Warn("cannot open keyboard", "device", p, "error", err)
			continue
		}
		if h.grab {
			if err := ioctlInt(f, eviocgrab, 1); err != nil {
				h.log.Warn("cannot grab keyboard", "device", p, "error", err)
				f.Close()
				continue
			}
		}
		if id, err := deviceID(f); err == nil && IsSyntheticID(id.Vendor, id.Product) {
			if h.virtual == nil {
				h.virtual = make(map[*os.File]bool)
			}
			h.virtual[f] = true
			h.log.Warn("reading our own virtual keyboard, its events are dropped", "device", p)
		}
		h.files = append(h.files, f)
		h.log.Info("keyboard opened", "device", p, "grab", h.grab)
	}
	if len(h.files) == 0 {
		return fmt.Errorf("%w: no keyboard could be opened", ErrNotAvailable)
	}

	if h.events == nil {
		h.events = make(chan Event, 64)
	}
	h.running = true
	for _, f := range h.files {
		h.wg.Add(1)
		go h.readLoop(ctx, f, h.virtual[f], h.events)
	}
	go func(events chan Event) {
		h.wg.Wait()
		close(events)
	}(h.events)
	return nil
}

// Stop ungrabs and closes the devices. Events is closed once every reader
// has exited.
func (h *EvdevHook) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	files := h.files
	h.files = nil
	h.virtual = nil
	h.mu.Unlock()

	var errs []error
	for _, f := range files {
		if h.grab {
			_ = ioctlInt(f, eviocgrab, 0)
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.wg.Wait()

	h.mu.Lock()
	h.events = make(chan Event, 64)
	h.mu.Unlock()
	return errors.Join(errs...)
}

// Events returns the event stream of the current run.
func (h *EvdevHook) Events() <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events
}

func (h *EvdevHook) readLoop(ctx context.Context, f *os.File, synthetic bool, events chan<- Event) {
	defer h.wg.Done()

	name := f.Name()
	for {
		var raw inputEvent
		if err := binary.Read(f, binary.LittleEndian, &raw); err != nil {
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.EOF) && ctx.Err() == nil {
				h.log.Warn("keyboard read failed", "device", name, "error", err)
			}
			return
		}
		if raw.Type != evKey {
			continue
		}
		ev := Event{
			Key:       KeyName(raw.Code),
			Code:      raw.Code,
			Pressed:   raw.Value != 0,
			Repeat:    raw.Value == 2,
			Source:    SourceEvdev,
			Synthetic: synthetic,
			Time:      time.Unix(raw.Time.Unix()),
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
