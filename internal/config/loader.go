package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// ErrReloadBeforeLoad is returned by Reload when no path has been loaded.
var ErrReloadBeforeLoad = errors.New("config: reload called before load")

// Loader reads keymaps and keeps the last good one. A failed Load or Reload
// leaves the previous keymap in place.
type Loader struct {
	mu       sync.RWMutex
	path     string
	current  *Keymap
	onChange []func(*Keymap)

	goos     string
	validate bool
	log      *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithGOOS overrides the OS used for row filtering.
func WithGOOS(goos string) LoaderOption {
	return func(l *Loader) { l.goos = goos }
}

// WithSchemaValidation toggles JSON schema checks on structured keymaps.
func WithSchemaValidation(on bool) LoaderOption {
	return func(l *Loader) { l.validate = on }
}

// WithLogger sets the loader's logger.
func WithLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader creates a loader holding the built-in keymap.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		current:  DefaultKeymap(),
		goos:     runtime.GOOS,
		validate: true,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the keymap at path and remembers path for Reload.
func (l *Loader) Load(path string) (*Keymap, error) {
	l.mu.Lock()
	l.path = path
	l.mu.Unlock()
	return l.load(path)
}

// Reload re-reads the last path passed to Load.
func (l *Loader) Reload() (*Keymap, error) {
	l.mu.RLock()
	path := l.path
	l.mu.RUnlock()
	if path == "" {
		return nil, ErrReloadBeforeLoad
	}
	return l.load(path)
}

func (l *Loader) load(path string) (*Keymap, error) {
	km, err := LoadKeymap(path, l.goos, l.validate)
	if err != nil {
		l.log.Warn("keymap rejected", "path", path, "error", err)
		return nil, err
	}

	l.mu.Lock()
	l.current = km
	callbacks := append([]func(*Keymap){}, l.onChange...)
	l.mu.Unlock()

	l.log.Info("keymap loaded",
		"path", path,
		"entries", km.Table.Count(),
		"modifiers", len(km.Modifiers),
		"defaults", km.Defaults,
	)

	for _, cb := range callbacks {
		cb(km)
	}
	return km, nil
}

// Current returns the active keymap.
func (l *Loader) Current() *Keymap {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Path returns the path last passed to Load.
func (l *Loader) Path() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

// OnChange registers a callback run after every successful load.
func (l *Loader) OnChange(cb func(*Keymap)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// LoadKeymap reads a keymap file, picking the syntax by extension. A missing
// file yields DefaultKeymap.
func LoadKeymap(path, goos string, validate bool) (*Keymap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			km := DefaultKeymap()
			km.Path = path
			return km, nil
		}
		return nil, fmt.Errorf("read keymap: %w", err)
	}

	var km *Keymap
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml", ".json", ".yaml", ".yml":
		km, err = ParseStructured(data, ext, goos, validate)
	default:
		km, err = ParseText(bytes.NewReader(data), goos)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	km.Path = path
	return km, nil
}
