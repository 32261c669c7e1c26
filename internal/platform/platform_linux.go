//go:build linux

package platform

import "log/slog"

const defaultUinputPath = "/dev/uinput"

// NewHook returns the evdev hook.
func NewHook(cfg Config, log *slog.Logger) (Hook, error) {
	var devices []string
	if cfg.Device != "" {
		devices = []string{cfg.Device}
	}
	return NewEvdevHook(devices, cfg.Grab, log), nil
}

// NewOutput creates the uinput virtual keyboard. Passed-through keys are
// re-injected only when the hook grabs the keyboard.
func NewOutput(cfg Config, log *slog.Logger) (Output, error) {
	path := cfg.UinputPath
	if path == "" {
		path = defaultUinputPath
	}
	return NewUinputOutput(path, cfg.Grab, log)
}

// NewAppMonitor returns the xprop poller.
func NewAppMonitor(cfg Config, log *slog.Logger) *XpropMonitor {
	return NewXpropMonitor(cfg.PollApp, nil, log)
}
