package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "stratus-go"

// Well-known file names inside the config and data directories.
const (
	configFileName   = "config.toml"
	sessionFileName  = "session.json"
	snapshotFileName = "catalog.db"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/stratus-go).
// On macOS, uses ~/Library/Application Support/stratus-go per Apple
// guidelines. Other platforms fall back to ~/.config/stratus-go.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// linuxConfigDir returns the XDG-compliant config directory for Linux.
func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application
// data (the session file and the catalog snapshot).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/stratus-go).
// On macOS, uses ~/Library/Application Support/stratus-go (macOS
// convention collapses config and data into one directory).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// linuxDataDir returns the XDG-compliant data directory for Linux.
func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the full path to the default config file.
// This is the fallback when neither STRATUS_GO_CONFIG nor --config is
// specified.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// SessionFilePath returns the session file location inside dataDir.
func SessionFilePath(dataDir string) string {
	return filepath.Join(dataDir, sessionFileName)
}

// SnapshotFilePath returns the catalog snapshot location inside dataDir.
func SnapshotFilePath(dataDir string) string {
	return filepath.Join(dataDir, snapshotFileName)
}
