package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "capsunlocked"

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/capsunlocked/
//   - Linux:   ~/.config/capsunlocked/
//   - Windows: %APPDATA%\capsunlocked\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxConfigDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/capsunlocked/
//   - Linux:   ~/.local/state/capsunlocked/
//   - Windows: %LOCALAPPDATA%\capsunlocked\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSLogDir()
	case "linux":
		return linuxStateDir()
	case "windows":
		return windowsLogDir()
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

// ConfigDir returns the directory holding the settings and keymap files.
// CAPSUNLOCKED_CONFIG_DIR overrides the platform default.
func ConfigDir() string {
	if dir := os.Getenv("CAPSUNLOCKED_CONFIG_DIR"); dir != "" {
		return dir
	}
	return PlatformConfigDir()
}

// SettingsPath returns the default daemon settings file path.
func SettingsPath() string {
	return filepath.Join(ConfigDir(), "capsunlocked.toml")
}

// DefaultKeymapPath returns the default keymap file path.
func DefaultKeymapPath() string {
	return filepath.Join(ConfigDir(), "capsunlocked.ini")
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func macOSDataDir() string {
	return filepath.Join(homeDir(), "Library", "Application Support", appDirName)
}

func macOSLogDir() string {
	return filepath.Join(homeDir(), "Library", "Logs", appDirName)
}

// Linux paths follow the XDG Base Directory layout.

func linuxConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	return filepath.Join(homeDir(), ".config", appDirName)
}

func linuxStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	return filepath.Join(homeDir(), ".local", "state", appDirName)
}

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appDirName)
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", appDirName)
}

func windowsLogDir() string {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, appDirName, "logs")
	}
	return filepath.Join(homeDir(), "AppData", "Local", appDirName, "logs")
}

func fallbackDataDir() string {
	return filepath.Join(homeDir(), "."+appDirName)
}

// SupportedSettingsFormats returns the settings file extensions, in search order.
func SupportedSettingsFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindSettingsFile searches the working directory and then ConfigDir for a
// capsunlocked.<ext> settings file. It returns "" if none exists.
func FindSettingsFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedSettingsFormats() {
			path := filepath.Join(dir, "capsunlocked."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
