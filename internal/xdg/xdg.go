// Package xdg provides XDG Base Directory paths for waypost.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "waypost"

// ConfigDir returns the XDG config directory for waypost.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// StateDir returns the XDG state directory for waypost.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, appName)
}

// DefaultConfigFile returns the path of the user config file, or the
// empty string when no such file exists. Used when --config is not set.
func DefaultConfigFile() string {
	path := filepath.Join(ConfigDir(), "waypost.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
