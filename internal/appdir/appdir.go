// Package appdir resolves the platform data directory chat sessions live
// under. The store takes a Provider instead of reaching for ambient global
// state so tests can point it at a temporary directory.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appName = "chatkeep"

// Provider supplies the absolute storage root for session data, or the
// reason it could not be resolved.
type Provider interface {
	StorageRoot() (string, error)
}

// OS resolves the per-user data directory: XDG_DATA_HOME when set, else
// ~/.local/share, else the system temp directory.
type OS struct{}

// StorageRoot implements Provider.
func (OS) StorageRoot() (string, error) {
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if home == "" {
		return filepath.Join(os.TempDir(), appName), nil
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// Fixed is a Provider pinned to a single path. It backs the config override
// and test setups.
type Fixed string

// StorageRoot implements Provider.
func (f Fixed) StorageRoot() (string, error) {
	path := strings.TrimSpace(string(f))
	if path == "" {
		return "", fmt.Errorf("storage root cannot be empty")
	}
	return path, nil
}
