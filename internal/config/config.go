// Package config loads the daemon settings file and the keymap file that
// feeds the mapping engine.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current settings file format version.
const Version = 1

// Settings is the daemon configuration.
type Settings struct {
	Version  int              `toml:"version" json:"version" yaml:"version"`
	Keymap   KeymapSettings   `toml:"keymap" json:"keymap" yaml:"keymap"`
	Logging  LoggingSettings  `toml:"logging" json:"logging" yaml:"logging"`
	Metrics  MetricsSettings  `toml:"metrics" json:"metrics" yaml:"metrics"`
	Platform PlatformSettings `toml:"platform" json:"platform" yaml:"platform"`
}

// KeymapSettings locates the keymap file.
type KeymapSettings struct {
	// Path to the keymap. The extension selects the syntax.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Validate enables JSON schema checks on structured keymaps.
	Validate bool `toml:"validate" json:"validate" yaml:"validate"`
}

// LoggingSettings configures internal/logging.
type LoggingSettings struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// MetricsSettings configures the optional metrics endpoint.
type MetricsSettings struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" json:"addr" yaml:"addr"`
}

// PlatformSettings configures the OS collaborators.
type PlatformSettings struct {
	// Device is the evdev node to read. Empty means autodetect.
	Device string `toml:"device" json:"device" yaml:"device"`

	// Grab takes exclusive ownership of the device so consumed events never
	// reach other readers.
	Grab bool `toml:"grab" json:"grab" yaml:"grab"`

	// PollAppMS is the foreground application poll interval.
	PollAppMS int `toml:"poll_app_ms" json:"poll_app_ms" yaml:"poll_app_ms"`

	// DoubleTapMS is the CapsLock double-tap window that toggles the overlay.
	DoubleTapMS int `toml:"double_tap_ms" json:"double_tap_ms" yaml:"double_tap_ms"`
}

// DefaultSettings returns settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Version: Version,
		Keymap: KeymapSettings{
			Path:     DefaultKeymapPath(),
			Validate: true,
		},
		Logging: LoggingSettings{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "capsunlocked.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsSettings{
			Enabled: false,
			Addr:    "127.0.0.1:9477",
		},
		Platform: PlatformSettings{
			Grab:        true,
			PollAppMS:   250,
			DoubleTapMS: 300,
		},
	}
}

// LoadSettings reads settings from path. An empty path means SettingsPath().
// A missing file yields DefaultSettings. The format is chosen by extension.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()

	if path == "" {
		path = SettingsPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.ApplyEnvOverrides()
			return s, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if err := decodeByExt(path, data, s); err != nil {
		return nil, err
	}

	s.ApplyEnvOverrides()
	return s, nil
}

func decodeByExt(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies CAPSUNLOCKED_* environment overrides.
func (s *Settings) ApplyEnvOverrides() {
	if v := os.Getenv("CAPSUNLOCKED_KEYMAP"); v != "" {
		s.Keymap.Path = v
	}
	if v := os.Getenv("CAPSUNLOCKED_LOG_LEVEL"); v != "" {
		s.Logging.Level = v
	}
}

// Validate checks the settings for errors.
func (s *Settings) Validate() error {
	return ValidateSettings(s)
}

// Save writes the settings as TOML, creating the parent directory.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
