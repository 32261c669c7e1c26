package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often XpropMonitor asks X11 for the focused window.
const DefaultPollInterval = 250 * time.Millisecond

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

var errNoActiveWindow = errors.New("no active window")

// ParseActiveWindow extracts the window id from
// `xprop -root _NET_ACTIVE_WINDOW` output.
func ParseActiveWindow(out string) (string, error) {
	i := strings.LastIndex(out, "#")
	if i < 0 {
		return "", fmt.Errorf("unexpected xprop output %q", strings.TrimSpace(out))
	}
	id := strings.TrimSpace(out[i+1:])
	if f := strings.Fields(id); len(f) > 0 {
		id = strings.TrimSuffix(f[0], ",")
	}
	if id == "" || id == "0x0" {
		return "", errNoActiveWindow
	}
	return id, nil
}

// ParseWMClass returns the class part of a WM_CLASS property, which is the
// last quoted string: `WM_CLASS(STRING) = "navigator", "Firefox"` gives
// "Firefox".
func ParseWMClass(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(strings.TrimSpace(line), "WM_CLASS") {
			continue
		}
		end := strings.LastIndex(line, `"`)
		if end <= 0 {
			return ""
		}
		start := strings.LastIndex(line[:end], `"`)
		if start < 0 {
			return ""
		}
		return line[start+1 : end]
	}
	return ""
}

// XpropMonitor reports the focused X11 window's WM_CLASS by polling xprop.
type XpropMonitor struct {
	interval time.Duration
	run      CommandRunner
	log      *slog.Logger

	current atomic.Value // string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewXpropMonitor creates a monitor. A nil runner uses os/exec.
func NewXpropMonitor(interval time.Duration, run CommandRunner, log *slog.Logger) *XpropMonitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if run == nil {
		run = execRunner
	}
	if log == nil {
		log = slog.Default()
	}
	m := &XpropMonitor{interval: interval, run: run, log: log}
	m.current.Store("")
	return m
}

// Available checks for an X11 display and the xprop binary.
func (m *XpropMonitor) Available() (bool, string) {
	if displayServer() != "x11" {
		return false, "no X11 display; app-specific mappings fall back to the wildcard table"
	}
	if _, err := exec.LookPath("xprop"); err != nil {
		return false, "xprop not found"
	}
	return true, "X11 app detection available (xprop)"
}

// Start begins polling in the background.
func (m *XpropMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.running = true
	go m.loop(ctx)
	return nil
}

// Stop stops polling and waits for the loop to exit.
func (m *XpropMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	done := m.done
	m.mu.Unlock()
	<-done
	return nil
}

// Current returns the last observed app class.
func (m *XpropMonitor) Current() string {
	return m.current.Load().(string)
}

// Refresh queries xprop once and updates Current.
func (m *XpropMonitor) Refresh(ctx context.Context) error {
	out, err := m.run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return fmt.Errorf("xprop root: %w", err)
	}
	id, err := ParseActiveWindow(string(out))
	if errors.Is(err, errNoActiveWindow) {
		m.set("")
		return nil
	}
	if err != nil {
		return err
	}
	out, err = m.run(ctx, "xprop", "-id", id, "WM_CLASS")
	if err != nil {
		return fmt.Errorf("xprop window %s: %w", id, err)
	}
	m.set(ParseWMClass(string(out)))
	return nil
}

func (m *XpropMonitor) set(app string) {
	if prev := m.current.Swap(app); prev != app {
		m.log.Debug("focused app changed", "app", app)
	}
}

func (m *XpropMonitor) loop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	failing := false
	for {
		if err := m.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !failing {
				m.log.Warn("app detection failed", "error", err)
			}
			failing = true
		} else {
			failing = false
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// displayServer returns "x11", "wayland" or "unknown". XWayland counts as x11.
func displayServer() string {
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return "wayland"
	}
	return "unknown"
}
