package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.tgvault.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tgvault")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// DBPath returns the default embedded database path.
func DBPath() string {
	return filepath.Join(BaseDir(), "tgvault.db")
}

// MediaDir returns the default root directory for downloaded media.
func MediaDir() string {
	return filepath.Join(BaseDir(), "media")
}

// LockPath returns the single-instance lock file path.
func LockPath() string {
	return filepath.Join(BaseDir(), "LOCK")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the daemon log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "tgvaultd.log")
}

// EnsureDirs creates the base directory tree with proper permissions.
func EnsureDirs() error {
	dirs := []string{
		BaseDir(),
		LogDir(),
		MediaDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
