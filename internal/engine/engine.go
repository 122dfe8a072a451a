// Package engine orchestrates package install and uninstall runs: it fetches
// a release into a working directory, validates its manifest, checks for
// conflicting processes, executes the manifest operations and keeps the
// install registry in step.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/battlewithbytes/manage/internal/guard"
	"github.com/battlewithbytes/manage/internal/manifest"
	"github.com/battlewithbytes/manage/internal/operation"
	"github.com/battlewithbytes/manage/internal/paths"
	"github.com/battlewithbytes/manage/internal/registry"
	"github.com/battlewithbytes/manage/internal/release"
)

// Recorder receives run and step outcomes, typically for metrics.
type Recorder interface {
	ObserveOperation(kind string, err error, d time.Duration)
	ObserveStep(action string, err error)
}

// Action is the install button state for a package.
type Action string

const (
	ActionDisabled  Action = "disabled"
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionUpdate    Action = "update"
)

// Deps are the collaborators of an Engine. Source, Downloader, Paths,
// Guard, Executor and Registry are required.
type Deps struct {
	Source     release.Source
	Downloader release.Downloader
	Paths      *paths.Resolver
	Guard      *guard.Guard
	Executor   *operation.Executor
	Registry   *registry.Registry
	Jobs       JobStore
	Metrics    Recorder
	Logger     zerolog.Logger

	// KeepWorkingDir leaves the per-release working directory in place
	// after a run.
	KeepWorkingDir bool
}

// Engine runs install and uninstall calls. Calls for different packages may
// run concurrently; calls for the same package must be serialized by the
// caller.
type Engine struct {
	source      release.Source
	downloader  release.Downloader
	paths       *paths.Resolver
	guard       *guard.Guard
	exec        *operation.Executor
	registry    *registry.Registry
	jobs        JobStore
	metrics     Recorder
	log         zerolog.Logger
	keepWorkDir bool
	newID       func() string
}

// New creates an Engine. When the job store supports it, jobs left
// unfinished by a previous process are marked failed.
func New(d Deps) (*Engine, error) {
	switch {
	case d.Source == nil:
		return nil, fmt.Errorf("engine: release source is required")
	case d.Downloader == nil:
		return nil, fmt.Errorf("engine: downloader is required")
	case d.Paths == nil:
		return nil, fmt.Errorf("engine: path resolver is required")
	case d.Guard == nil:
		return nil, fmt.Errorf("engine: process guard is required")
	case d.Executor == nil:
		return nil, fmt.Errorf("engine: operation executor is required")
	case d.Registry == nil:
		return nil, fmt.Errorf("engine: install registry is required")
	}
	if d.Jobs == nil {
		d.Jobs = NewMemoryJobStore()
	}

	e := &Engine{
		source:      d.Source,
		downloader:  d.Downloader,
		paths:       d.Paths,
		guard:       d.Guard,
		exec:        d.Executor,
		registry:    d.Registry,
		jobs:        d.Jobs,
		metrics:     d.Metrics,
		log:         d.Logger.With().Str("component", "engine").Logger(),
		keepWorkDir: d.KeepWorkingDir,
		newID:       uuid.NewString,
	}
	if e.metrics != nil {
		e.exec.OnStep = func(a manifest.Action, err error) { e.metrics.ObserveStep(string(a), err) }
	}

	if r, ok := d.Jobs.(interface{ RecoverOrphanedJobs() ([]string, error) }); ok {
		ids, err := r.RecoverOrphanedJobs()
		if err != nil {
			return nil, fmt.Errorf("recovering orphaned jobs: %w", err)
		}
		if len(ids) > 0 {
			e.log.Warn().Int("count", len(ids)).Msg("marked interrupted jobs as failed")
		}
	}
	return e, nil
}

// Install installs rel of repo, or the latest release when rel is nil. If the
// package is already installed, the new release's uninstall list runs first.
// On any failure before recording, the install registry is left untouched.
func (e *Engine) Install(ctx context.Context, repo release.Repository, rel *release.Release) error {
	return e.run(ctx, JobTypeInstall, installSteps, repo, rel)
}

// Uninstall runs the uninstall list of rel (or the latest release when rel
// is nil) and removes the install record.
func (e *Engine) Uninstall(ctx context.Context, repo release.Repository, rel *release.Release) error {
	return e.run(ctx, JobTypeUninstall, uninstallSteps, repo, rel)
}

// ButtonState reports which action applies to repo.
func (e *Engine) ButtonState(ctx context.Context, repo release.Repository) (Action, error) {
	latest, err := e.source.LatestRelease(ctx, repo)
	if err != nil {
		return ActionDisabled, fmt.Errorf("fetching latest release: %w", err)
	}
	if latest == nil {
		return ActionDisabled, nil
	}
	rec, ok, err := e.registry.Find(ctx, repo.ID)
	if err != nil {
		return ActionDisabled, err
	}
	switch {
	case !ok:
		return ActionInstall, nil
	case rec.ReleaseID == latest.ID:
		return ActionUninstall, nil
	default:
		return ActionUpdate, nil
	}
}

// RecordOnly writes the install record without running anything. It is the
// retry path after an install whose operations succeeded but whose record
// could not be written.
func (e *Engine) RecordOnly(ctx context.Context, repo release.Repository, releaseID int64) error {
	start := time.Now()
	job := e.newJob(JobTypeRecord, repo)
	job.ReleaseID = releaseID
	rc := &runContext{engine: e, job: job, ctx: ctx, repo: repo}

	rc.transition(StateRecording)
	err := e.registry.Record(ctx, repo.ID, releaseID, repo.FullName())
	rc.finish(err)
	e.observe(JobTypeRecord, err, start)
	return err
}

// Installed lists install records.
func (e *Engine) Installed(ctx context.Context) ([]registry.Record, error) {
	return e.registry.List(ctx)
}

// InstalledRelease returns the installed release ID of repo, if any.
func (e *Engine) InstalledRelease(ctx context.Context, repo release.Repository) (int64, bool, error) {
	rec, ok, err := e.registry.Find(ctx, repo.ID)
	return rec.ReleaseID, ok, err
}

// Job returns a job by ID.
func (e *Engine) Job(id string) (*Job, error) {
	return e.jobs.GetJob(id)
}

// Jobs returns all jobs, most recent first.
func (e *Engine) Jobs() ([]*Job, error) {
	return e.jobs.ListJobs()
}

// JobLogs returns the log lines of a job.
func (e *Engine) JobLogs(jobID string) ([]*LogEntry, error) {
	return e.jobs.GetLogs(jobID)
}

func (e *Engine) newJob(kind string, repo release.Repository) *Job {
	now := time.Now()
	job := &Job{
		ID:         e.newID(),
		Type:       kind,
		State:      StateQueued,
		PackageID:  repo.ID,
		Repository: repo.FullName(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.jobs.CreateJob(job); err != nil {
		e.log.Warn().Err(err).Str("job", job.ID).Msg("could not persist job")
	}
	return job
}

func (e *Engine) observe(kind string, err error, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveOperation(kind, err, time.Since(start))
	}
}
