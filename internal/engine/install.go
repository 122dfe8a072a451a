package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/battlewithbytes/manage/internal/manifest"
	"github.com/battlewithbytes/manage/internal/registry"
	"github.com/battlewithbytes/manage/internal/release"
)

type step struct {
	state string
	fn    func(rc *runContext) error
	// skip, when set and true, bypasses the step without a transition.
	skip func(rc *runContext) bool
}

// installSteps is the ordered state machine of an install run.
var installSteps = []step{
	{state: StateResolving, fn: stepFetchRelease},
	{state: StateValidating, fn: stepValidateManifest},
	{state: StateGuardChecking, fn: stepGuardProcesses},
	{state: StateUninstalling, fn: stepUninstallPrevious, skip: notInstalled},
	{state: StateInstalling, fn: stepInstall},
	{state: StateRecording, fn: stepRecordInstall},
}

// uninstallSteps is the ordered state machine of an uninstall run.
var uninstallSteps = []step{
	{state: StateResolving, fn: stepFetchManifest},
	{state: StateValidating, fn: stepValidateManifest},
	{state: StateGuardChecking, fn: stepGuardProcesses},
	{state: StateUninstalling, fn: stepUninstall},
	{state: StateRecording, fn: stepForget},
}

// runContext carries state through a run.
type runContext struct {
	engine *Engine
	job    *Job
	ctx    context.Context

	repo     release.Repository
	rel      *release.Release
	workDir  string
	manifest *manifest.InstructionManifest
	previous *registry.Record
}

func (rc *runContext) log(level zerolog.Level, msg string, args ...interface{}) {
	message := fmt.Sprintf(msg, args...)
	rc.engine.jobs.AppendLog(&LogEntry{
		JobID:     rc.job.ID,
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
	})
	rc.engine.log.WithLevel(level).Str("job", rc.job.ID).Str("repository", rc.job.Repository).Msg(message)
}

func (rc *runContext) info(msg string, args ...interface{}) {
	rc.log(zerolog.InfoLevel, msg, args...)
}

func (rc *runContext) warn(msg string, args ...interface{}) {
	rc.log(zerolog.WarnLevel, msg, args...)
}

func (rc *runContext) transition(state string) {
	rc.job.State = state
	rc.job.UpdatedAt = time.Now()
	rc.engine.jobs.UpdateJob(rc.job)
	rc.log(zerolog.DebugLevel, "State: %s", state)
}

func (rc *runContext) finish(err error) {
	now := time.Now()
	if err != nil {
		rc.log(zerolog.ErrorLevel, "Failed at %s: %v", rc.job.State, err)
		rc.job.State = StateFailed
		rc.job.Error = err.Error()
	} else {
		rc.job.State = StateCompleted
	}
	rc.job.UpdatedAt = now
	rc.job.CompletedAt = &now
	rc.engine.jobs.UpdateJob(rc.job)
}

func (e *Engine) run(ctx context.Context, kind string, steps []step, repo release.Repository, rel *release.Release) error {
	start := time.Now()
	rc := &runContext{engine: e, job: e.newJob(kind, repo), ctx: ctx, repo: repo, rel: rel}
	rc.info("Starting %s of %s", kind, repo.FullName())

	err := rc.runSteps(steps)
	rc.cleanup()
	rc.finish(err)
	e.observe(kind, err, start)
	if err == nil {
		rc.info("%s of %s release %d complete", kind, repo.FullName(), rc.job.ReleaseID)
	}
	return err
}

func (rc *runContext) runSteps(steps []step) error {
	for _, s := range steps {
		if s.skip != nil && s.skip(rc) {
			continue
		}
		rc.transition(s.state)
		if err := s.fn(rc); err != nil {
			return err
		}
	}
	return nil
}

func (rc *runContext) cleanup() {
	if rc.workDir == "" || rc.engine.keepWorkDir {
		return
	}
	// Programs handed to the shell may still be starting from here.
	if rc.manifest != nil && (launches(rc.manifest.Install) || launches(rc.manifest.Uninstall)) {
		rc.info("Keeping working directory %s for launched programs", rc.workDir)
		return
	}
	if err := os.RemoveAll(rc.workDir); err != nil {
		rc.warn("Could not remove working directory %s: %v", rc.workDir, err)
	}
}

func launches(ops []manifest.Operation) bool {
	for _, op := range ops {
		if op.Action == manifest.ActionRun {
			return true
		}
	}
	return false
}

// resolveRelease picks the caller's release or the latest one and prepares
// the working directory for it.
func (rc *runContext) resolveRelease() error {
	if rc.rel == nil {
		latest, err := rc.engine.source.LatestRelease(rc.ctx, rc.repo)
		if err != nil {
			return fmt.Errorf("fetching latest release: %w", err)
		}
		if latest == nil {
			return ErrNoReleaseFound
		}
		rc.rel = latest
	}
	rc.job.ReleaseID = rc.rel.ID
	if _, ok := rc.rel.Asset(manifest.FileName); !ok {
		return &MissingManifestError{ReleaseID: rc.rel.ID}
	}

	dir, err := rc.engine.paths.EnsureWorkingDir(rc.repo.FullName(), rc.rel.ID)
	if err != nil {
		return err
	}
	rc.workDir = dir
	rc.info("Release %s (%d), working directory %s", rc.rel.TagName, rc.rel.ID, dir)
	return nil
}

func (rc *runContext) download(asset release.Asset) error {
	if _, err := rc.engine.downloader.Download(rc.ctx, asset, rc.rel, rc.repo, rc.workDir); err != nil {
		return fmt.Errorf("downloading %s: %w", asset.Name, err)
	}
	rc.info("Downloaded %s", asset.Name)
	return nil
}

func stepFetchRelease(rc *runContext) error {
	if err := rc.resolveRelease(); err != nil {
		return err
	}
	for _, asset := range rc.rel.Assets {
		if err := rc.download(asset); err != nil {
			return err
		}
	}
	return nil
}

func stepFetchManifest(rc *runContext) error {
	if err := rc.resolveRelease(); err != nil {
		return err
	}
	asset, _ := rc.rel.Asset(manifest.FileName)
	return rc.download(asset)
}

func stepValidateManifest(rc *runContext) error {
	m, err := manifest.Load(filepath.Join(rc.workDir, manifest.FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &MissingManifestError{ReleaseID: rc.rel.ID}
		}
		return err
	}
	if !m.Supported() {
		return &UnsupportedVersionError{Version: m.Version}
	}
	rc.manifest = m
	rc.info("Manifest valid: %d install and %d uninstall operations", len(m.Install), len(m.Uninstall))
	return nil
}

func stepGuardProcesses(rc *runContext) error {
	if err := rc.engine.guard.EnsureNoConflicts(rc.ctx, rc.manifest.Processes); err != nil {
		return err
	}
	// Past this point a run is not abandoned halfway.
	rc.ctx = context.WithoutCancel(rc.ctx)
	return nil
}

func notInstalled(rc *runContext) bool {
	rec, ok, err := rc.engine.registry.Find(rc.ctx, rc.repo.ID)
	if err != nil {
		// Surface the lookup error from the step itself.
		return false
	}
	if ok {
		rc.previous = &rec
	}
	return !ok
}

func stepUninstallPrevious(rc *runContext) error {
	if rc.previous == nil {
		rec, ok, err := rc.engine.registry.Find(rc.ctx, rc.repo.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rc.previous = &rec
	}
	rc.info("Release %d is installed, running uninstall operations first", rc.previous.ReleaseID)
	return rc.engine.exec.RunUninstall(rc.ctx, rc.manifest.Uninstall, rc.workDir)
}

func stepInstall(rc *runContext) error {
	return rc.engine.exec.RunInstall(rc.ctx, rc.manifest.Install, rc.workDir)
}

func stepRecordInstall(rc *runContext) error {
	return rc.engine.registry.Record(rc.ctx, rc.repo.ID, rc.rel.ID, rc.repo.FullName())
}

func stepUninstall(rc *runContext) error {
	return rc.engine.exec.RunUninstall(rc.ctx, rc.manifest.Uninstall, rc.workDir)
}

func stepForget(rc *runContext) error {
	return rc.engine.registry.Remove(rc.ctx, rc.repo.ID)
}
