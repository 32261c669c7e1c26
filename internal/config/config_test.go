package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s == nil {
		t.Fatal("DefaultSettings returned nil")
	}

	if s.Version != Version {
		t.Errorf("expected version %d, got %d", Version, s.Version)
	}
	if !strings.HasSuffix(s.Keymap.Path, "capsunlocked.ini") {
		t.Errorf("keymap path should end with capsunlocked.ini: %s", s.Keymap.Path)
	}
	if s.Logging.Level != "info" {
		t.Errorf("expected info level, got %s", s.Logging.Level)
	}
	if s.Platform.DoubleTapMS != 300 {
		t.Errorf("expected 300ms double tap, got %d", s.Platform.DoubleTapMS)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("default settings should validate: %v", err)
	}
}

func TestConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAPSUNLOCKED_CONFIG_DIR", dir)

	if got := ConfigDir(); got != dir {
		t.Errorf("expected %s, got %s", dir, got)
	}
	if got := SettingsPath(); got != filepath.Join(dir, "capsunlocked.toml") {
		t.Errorf("unexpected settings path %s", got)
	}
	if got := DefaultKeymapPath(); got != filepath.Join(dir, "capsunlocked.ini") {
		t.Errorf("unexpected keymap path %s", got)
	}
}

func TestLoadSettingsNonexistent(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Logging.Level != "info" {
		t.Errorf("expected defaults, got level %s", s.Logging.Level)
	}
}

func TestLoadSettingsTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capsunlocked.toml")
	content := `
version = 1

[keymap]
path = "/etc/capsunlocked/keys.ini"
validate = false

[logging]
level = "debug"
format = "json"

[metrics]
enabled = true
addr = "127.0.0.1:9100"

[platform]
device = "/dev/input/event3"
grab = false
poll_app_ms = 500
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	if s.Keymap.Path != "/etc/capsunlocked/keys.ini" {
		t.Errorf("unexpected keymap path %s", s.Keymap.Path)
	}
	if s.Keymap.Validate {
		t.Error("expected validate=false")
	}
	if s.Logging.Level != "debug" || s.Logging.Format != "json" {
		t.Errorf("unexpected logging %+v", s.Logging)
	}
	// Unset keys keep their defaults.
	if s.Logging.Output != "stderr" {
		t.Errorf("expected default output, got %s", s.Logging.Output)
	}
	if !s.Metrics.Enabled || s.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("unexpected metrics %+v", s.Metrics)
	}
	if s.Platform.Device != "/dev/input/event3" || s.Platform.Grab || s.Platform.PollAppMS != 500 {
		t.Errorf("unexpected platform %+v", s.Platform)
	}
	if s.Platform.DoubleTapMS != 300 {
		t.Errorf("expected default double tap, got %d", s.Platform.DoubleTapMS)
	}
}

func TestLoadSettingsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "capsunlocked.yaml")
	if err := os.WriteFile(yamlPath, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSettings(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if s.Logging.Level != "warn" {
		t.Errorf("yaml: expected warn, got %s", s.Logging.Level)
	}

	jsonPath := filepath.Join(dir, "capsunlocked.json")
	if err := os.WriteFile(jsonPath, []byte(`{"logging": {"level": "error"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	s, err = LoadSettings(jsonPath)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if s.Logging.Level != "error" {
		t.Errorf("json: expected error, got %s", s.Logging.Level)
	}
}

func TestLoadSettingsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capsunlocked.toml")
	if err := os.WriteFile(path, []byte("[logging\nlevel = "), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettings(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAPSUNLOCKED_KEYMAP", "/tmp/other.ini")
	t.Setenv("CAPSUNLOCKED_LOG_LEVEL", "debug")

	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Keymap.Path != "/tmp/other.ini" {
		t.Errorf("expected env keymap path, got %s", s.Keymap.Path)
	}
	if s.Logging.Level != "debug" {
		t.Errorf("expected env log level, got %s", s.Logging.Level)
	}
}

func TestValidateSettingsCollectsAll(t *testing.T) {
	s := DefaultSettings()
	s.Logging.Level = "loud"
	s.Logging.Output = "file"
	s.Logging.FilePath = ""
	s.Metrics.Enabled = true
	s.Metrics.Addr = "nope"
	s.Platform.PollAppMS = 0

	err := s.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, f := range []string{"logging.level", "logging.file_path", "metrics.addr", "platform.poll_app_ms"} {
		if !fields[f] {
			t.Errorf("missing error for %s in %v", f, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capsunlocked.toml")
	s := DefaultSettings()
	s.Logging.Level = "debug"
	if err := s.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("expected debug, got %s", loaded.Logging.Level)
	}
}

func TestFindSettingsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAPSUNLOCKED_CONFIG_DIR", dir)

	if got := FindSettingsFile(); got != "" {
		t.Errorf("expected no settings file, got %s", got)
	}

	path := filepath.Join(dir, "capsunlocked.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := FindSettingsFile(); got != path {
		t.Errorf("expected %s, got %s", path, got)
	}
}
