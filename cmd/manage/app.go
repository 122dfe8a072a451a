package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/config"
	"github.com/battlewithbytes/manage/internal/engine"
	"github.com/battlewithbytes/manage/internal/guard"
	"github.com/battlewithbytes/manage/internal/logging"
	"github.com/battlewithbytes/manage/internal/metrics"
	"github.com/battlewithbytes/manage/internal/operation"
	"github.com/battlewithbytes/manage/internal/paths"
	"github.com/battlewithbytes/manage/internal/registry"
	"github.com/battlewithbytes/manage/internal/release"
	"github.com/battlewithbytes/manage/internal/store"
)

// app holds the wired components for a single command invocation.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   *store.Store
	github  *release.GitHub
	engine  *engine.Engine
	metrics *metrics.Metrics
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	resolver := paths.New(paths.WithTempDir(cfg.Paths.TempDir), paths.WithTokens(cfg.Paths.Tokens))
	gh := release.NewGitHub(release.GitHubOptions{
		APIBase:            cfg.GitHub.APIBase,
		Token:              cfg.GitHub.Token,
		IncludePrereleases: cfg.GitHub.IncludePrereleases,
		CacheTTL:           cfg.GitHub.CacheTTL,
		RequestsPerSecond:  cfg.GitHub.RequestsPerSecond,
	}, log)
	m := metrics.New()

	eng, err := engine.New(engine.Deps{
		Source:         gh,
		Downloader:     gh,
		Paths:          resolver,
		Guard:          guard.New(log, nil),
		Executor:       operation.NewExecutor(resolver, nil, log),
		Registry:       registry.New(st),
		Jobs:           st,
		Metrics:        m,
		Logger:         log,
		KeepWorkingDir: cfg.Engine.KeepWorkingDir,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, store: st, github: gh, engine: eng, metrics: m}, nil
}

func (a *app) Close() error {
	err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile)
	if err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.Metrics.Textfile).Msg("could not write metrics textfile")
	}
	return errors.Join(err, a.store.Close())
}

// withApp wires the app for a command and tears it down afterwards. The
// context is cancelled on interrupt.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		runErr := fn(ctx, a, args)
		closeErr := a.Close()
		if runErr != nil {
			return runErr
		}
		return closeErr
	}
}

// lookupRepository resolves "owner/name" to a repository with its ID.
func (a *app) lookupRepository(ctx context.Context, fullName string) (release.Repository, error) {
	owner, name, err := release.ParseFullName(fullName)
	if err != nil {
		return release.Repository{}, err
	}
	return a.github.Repository(ctx, owner, name)
}

// lookupRelease returns the release with the given ID, or nil when id is 0.
func (a *app) lookupRelease(ctx context.Context, repo release.Repository, id int64) (*release.Release, error) {
	if id == 0 {
		return nil, nil
	}
	return a.github.Release(ctx, repo, id)
}

func parseReleaseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid release id %q", s)
	}
	return id, nil
}
