package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DataDir: "/var/lib/manage",
		Paths: PathsConfig{
			TempDir: "/tmp/manage-test",
			Tokens:  map[string]string{"DEST": "/opt/apps"},
		},
		GitHub: GitHubConfig{
			APIBase:           DefaultAPIBase,
			CacheTTL:          DefaultCacheTTL,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Logging: LoggingConfig{
			Level:  LogLevelInfo,
			Format: LogFormatConsole,
		},
		Packages: []string{"acme/widget"},
	}
}

func TestValidateValid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateMissingDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing data_dir")
	}
}

func TestValidateTokens(t *testing.T) {
	tests := []struct {
		name   string
		tokens map[string]string
	}{
		{"lower case", map[string]string{"dest": "/opt"}},
		{"leading digit", map[string]string{"1DEST": "/opt"}},
		{"shadows builtin", map[string]string{"TEMP": "/opt"}},
		{"empty path", map[string]string{"DEST": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Paths.Tokens = tt.tokens
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error for tokens %v", tt.tokens)
			}
		})
	}
}

func TestValidateAPIBase(t *testing.T) {
	for _, base := range []string{"", "ftp://example.com", "api.github.com", "https://"} {
		cfg := validConfig()
		cfg.GitHub.APIBase = base
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for api_base %q", base)
		}
	}
}

func TestValidateRate(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.RequestsPerSecond = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for requests_per_second 0")
	}
}

func TestValidateNegativeTTL(t *testing.T) {
	cfg := validConfig()
	cfg.GitHub.CacheTTL = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative cache_ttl")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestValidateInvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log format")
	}
}

func TestValidateInvalidPackage(t *testing.T) {
	cfg := validConfig()
	cfg.Packages = []string{"not-a-repo"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid package")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.yml")

	cfg := validConfig()
	cfg.GitHub.CacheTTL = 90 * time.Second
	cfg.Engine.KeepWorkingDir = true
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Fatalf("expected 0640 permissions, got %o", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.DataDir != cfg.DataDir {
		t.Errorf("data_dir: got %q, want %q", loaded.DataDir, cfg.DataDir)
	}
	if loaded.Paths.Tokens["DEST"] != "/opt/apps" {
		t.Errorf("paths.tokens: got %v", loaded.Paths.Tokens)
	}
	if loaded.GitHub.CacheTTL != 90*time.Second {
		t.Errorf("cache_ttl: got %v, want 90s", loaded.GitHub.CacheTTL)
	}
	if !loaded.Engine.KeepWorkingDir {
		t.Error("keep_working_dir not preserved")
	}
	if len(loaded.Packages) != 1 || loaded.Packages[0] != "acme/widget" {
		t.Errorf("packages: got %v", loaded.Packages)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("data_dir: /srv/manage\ngithub:\n  cache_ttl: 2m\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.GitHub.APIBase != DefaultAPIBase {
		t.Errorf("api_base: got %q, want default", cfg.GitHub.APIBase)
	}
	if cfg.GitHub.CacheTTL != 2*time.Minute {
		t.Errorf("cache_ttl: got %v, want 2m", cfg.GitHub.CacheTTL)
	}
	if cfg.Logging.Level != LogLevelInfo {
		t.Errorf("logging.level: got %q, want info", cfg.Logging.Level)
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	t.Setenv(EnvGitHubToken, "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("data_dir: /srv/manage\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.GitHub.Token != "from-env" {
		t.Errorf("token: got %q, want from-env", cfg.GitHub.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.GitHub.APIBase != DefaultAPIBase {
		t.Errorf("expected defaults, got %+v", cfg.GitHub)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	os.WriteFile(path, []byte("{{invalid yaml"), 0644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if filepath.Base(p) != ConfigFile || filepath.Base(filepath.Dir(p)) != AppName {
		t.Errorf("unexpected default config path %q", p)
	}
}
