// Package logging sets up log/slog for the daemon.
//
// Records carry a component attribute. Attributes that could reveal typed
// keys ("key", "keys", "action") are only kept at debug level, so an info
// log of a running daemon never contains what the user typed. Output goes
// to stderr, stdout, a size-rotated file, or stderr and the file together.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = []struct {
	name  string
	level Level
}{
	{"debug", LevelDebug},
	{"info", LevelInfo},
	{"warn", LevelWarn},
	{"error", LevelError},
}

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config describes a Logger.
type Config struct {
	Level  Level
	Format Format

	// Output is "stderr", "stdout", "file" or "both" (stderr and file).
	Output string

	// FilePath, MaxSize (megabytes, 0 disables rotation), MaxBackups and
	// Compress apply when Output writes to a file.
	FilePath   string
	MaxSize    int64
	MaxBackups int
	Compress   bool

	AddSource bool
	Component string

	// Writer overrides Output. Tests use it to capture records.
	Writer io.Writer
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxBackups: 3,
		Component:  "capsunlocked",
	}
}

// defaultLogPath follows each OS's convention for per-user logs.
func defaultLogPath() string {
	const app, file = "capsunlocked", "capsunlocked.log"
	home, _ := os.UserHomeDir()

	var dir string
	switch runtime.GOOS {
	case "darwin":
		dir = filepath.Join(home, "Library", "Logs", app)
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = os.Getenv("APPDATA")
		}
		dir = filepath.Join(base, app, "logs")
	default:
		base := os.Getenv("XDG_STATE_HOME")
		if base == "" {
			base = filepath.Join(home, ".local", "state")
		}
		dir = filepath.Join(base, app)
	}
	return filepath.Join(dir, file)
}

// Logger is a slog.Logger that owns its log file, if any.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
	mu      sync.Mutex
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the process-wide logger, creating one from DefaultConfig
// on first use.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l, err := New(DefaultConfig())
	if err != nil {
		l = &Logger{Logger: slog.Default(), config: DefaultConfig()}
	}
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	return defaultLogger.Load()
}

// SetDefault installs l as the process-wide logger and as slog's default.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
	slog.SetDefault(l.Logger)
}

// New builds a Logger. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Logger{config: cfg}

	w, err := l.writer()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	h = keystrokeFilter{h}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	l.Logger = slog.New(h)
	return l, nil
}

func (l *Logger) writer() (io.Writer, error) {
	if l.config.Writer != nil {
		return l.config.Writer, nil
	}

	out := strings.ToLower(l.config.Output)
	switch out {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
	default:
		return os.Stderr, nil
	}

	rotator, err := NewFileRotator(l.config)
	if err != nil {
		return nil, err
	}
	l.rotator = rotator
	if out == "both" {
		return io.MultiWriter(os.Stderr, rotator), nil
	}
	return rotator, nil
}

// keystrokeAttrs name attributes that can reveal what was typed.
var keystrokeAttrs = map[string]bool{
	"key":    true,
	"keys":   true,
	"action": true,
}

// keystrokeFilter drops keystroke attributes from records above debug level.
type keystrokeFilter struct {
	slog.Handler
}

func (h keystrokeFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level <= LevelDebug {
		return h.Handler.Handle(ctx, r)
	}
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if !keystrokeAttrs[a.Key] {
			out.AddAttrs(a)
		}
		return true
	})
	return h.Handler.Handle(ctx, out)
}

func (h keystrokeFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return keystrokeFilter{h.Handler.WithAttrs(attrs)}
}

func (h keystrokeFilter) WithGroup(name string) slog.Handler {
	return keystrokeFilter{h.Handler.WithGroup(name)}
}

// WithComponent returns a logger tagged with another component name. It
// shares the parent's file.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		config:  l.config,
		rotator: l.rotator,
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// Sync flushes the log file to disk.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Sync()
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(s)
	if s == "warning" {
		s = "warn"
	}
	for _, n := range levelNames {
		if n.name == s {
			return n.level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// ParseFormat accepts "text" (or empty) and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %q", s)
}

// LevelString is the inverse of ParseLevel. Unknown levels print as info.
func LevelString(level Level) string {
	for _, n := range levelNames {
		if n.level == level {
			return n.name
		}
	}
	return "info"
}
