package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/battlewithbytes/manage/internal/paths"
	"github.com/battlewithbytes/manage/internal/release"
)

// Config represents the full application configuration written to config.yml.
type Config struct {
	DataDir  string        `yaml:"data_dir"`
	Paths    PathsConfig   `yaml:"paths"`
	GitHub   GitHubConfig  `yaml:"github"`
	Engine   EngineConfig  `yaml:"engine"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Packages []string      `yaml:"packages"`
}

type PathsConfig struct {
	TempDir string            `yaml:"temp_dir"`
	Tokens  map[string]string `yaml:"tokens,omitempty"`
}

type GitHubConfig struct {
	APIBase            string        `yaml:"api_base"`
	Token              string        `yaml:"token,omitempty"`
	IncludePrereleases bool          `yaml:"include_prereleases"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond  float64       `yaml:"requests_per_second"`
}

type EngineConfig struct {
	KeepWorkingDir bool `yaml:"keep_working_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		GitHub: GitHubConfig{
			APIBase:           DefaultAPIBase,
			CacheTTL:          DefaultCacheTTL,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatConsole,
		},
	}
}

// Load reads and parses a config file from the given path. Keys missing
// from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv(EnvGitHubToken)
	}
}

var tokenNameRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Validate checks that all required fields are present and values are in range.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	// Path tokens
	for name, dir := range c.Paths.Tokens {
		if !tokenNameRe.MatchString(name) {
			return fmt.Errorf("paths.tokens: %q must be upper case letters, digits and underscores", name)
		}
		if paths.IsBuiltin(name) {
			return fmt.Errorf("paths.tokens: %q shadows a built-in placeholder", name)
		}
		if dir == "" {
			return fmt.Errorf("paths.tokens: %q has an empty path", name)
		}
	}

	// GitHub
	u, err := url.Parse(c.GitHub.APIBase)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("github.api_base must be an http(s) URL")
	}
	if c.GitHub.RequestsPerSecond <= 0 {
		return fmt.Errorf("github.requests_per_second must be > 0")
	}
	if c.GitHub.CacheTTL < 0 {
		return fmt.Errorf("github.cache_ttl cannot be negative")
	}

	// Logging
	switch c.Logging.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// ok
	default:
		return fmt.Errorf("logging.level must be %q, %q, %q, or %q", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)
	}
	switch c.Logging.Format {
	case LogFormatConsole, LogFormatJSON:
		// ok
	default:
		return fmt.Errorf("logging.format must be %q or %q", LogFormatConsole, LogFormatJSON)
	}

	for _, p := range c.Packages {
		if !release.ValidFullName(p) {
			return fmt.Errorf("packages: %q is not owner/repo", p)
		}
	}

	return nil
}

// DatabasePath is the SQLite file holding install records and job history.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DatabaseFile)
}

// Save writes the config to the given path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
