//go:build !linux

package platform

import (
	"context"
	"log/slog"
)

// NewHook is not available on this system.
func NewHook(Config, *slog.Logger) (Hook, error) {
	return nil, ErrNotAvailable
}

// NewOutput is not available on this system.
func NewOutput(Config, *slog.Logger) (Output, error) {
	return nil, ErrNotAvailable
}

// NewAppMonitor returns a monitor that never starts; every event resolves
// against the wildcard table.
func NewAppMonitor(cfg Config, log *slog.Logger) *XpropMonitor {
	return NewXpropMonitor(cfg.PollApp, func(context.Context, string, ...string) ([]byte, error) {
		return nil, ErrNotAvailable
	}, log)
}
