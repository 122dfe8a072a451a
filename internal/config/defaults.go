package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mitchellh/go-homedir"
)

const (
	// AppName names the config and data directories.
	AppName = "manage"

	ConfigFile   = "config.yml"
	DatabaseFile = "manage.db"

	// EnvGitHubToken is read when github.token is not set.
	EnvGitHubToken = "GITHUB_TOKEN"

	// GitHub defaults
	DefaultAPIBase           = "https://api.github.com"
	DefaultCacheTTL          = 5 * time.Minute
	DefaultRequestsPerSecond = 5.0

	// Log levels
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	// Log formats
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// DefaultConfigPath returns <user config dir>/manage/config.yml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, AppName, ConfigFile)
}

// DefaultDataDir returns the per-user data directory: %LOCALAPPDATA%\manage
// on Windows, $XDG_DATA_HOME/manage or ~/.local/share/manage elsewhere.
func DefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, AppName)
		}
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(home, ".local", "share", AppName)
}
