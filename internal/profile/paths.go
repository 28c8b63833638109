// Package profile lays out the on-disk directories of a local account.
// Each profile owns one store and one daemon.
package profile

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory, mostly for tests and scripts.
const HomeEnv = "CIPHERLOG_HOME"

// BaseDir returns $CIPHERLOG_HOME, or ~/.cipherlog.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cipherlog")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// StorePath returns the encrypted store database of a profile.
func StorePath(name string) string {
	return filepath.Join(Dir(name), "store.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "cipherlogd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
