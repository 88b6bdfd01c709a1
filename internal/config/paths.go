// Package config provides settings persistence for ClamUI: XDG paths, the
// YAML settings file with atomic save, and live reload via fsnotify.
package config

import (
	"os"
	"path/filepath"
)

// ConfigDir returns the directory holding the settings file.
//
// Location: $XDG_CONFIG_HOME/clamui, normally ~/.config/clamui.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return filepath.Join(os.TempDir(), "clamui")
		}
		return filepath.Join(home, ".config", "clamui")
	}
	return filepath.Join(dir, "clamui")
}

// DataDir returns the directory for mutable application data: the quarantine
// vault and store, and downloaded definitions.
//
// Location: $XDG_DATA_HOME/clamui, normally ~/.local/share/clamui.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "clamui")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "clamui-data")
	}
	return filepath.Join(home, ".local", "share", "clamui")
}

// SettingsPath returns the default settings file location.
func SettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.yaml")
}

// QuarantineDir returns the quarantine vault directory.
func QuarantineDir() string {
	return filepath.Join(DataDir(), "quarantine")
}

// DefinitionsDir returns the signature database directory.
func DefinitionsDir() string {
	return filepath.Join(DataDir(), "definitions")
}

// EnsureDirs creates the config and data directories. Data is 0700 since it
// holds quarantined malware.
func EnsureDirs() error {
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(QuarantineDir(), 0700); err != nil {
		return err
	}
	return os.MkdirAll(DefinitionsDir(), 0755)
}
