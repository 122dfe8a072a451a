// Package operation executes the install and uninstall lists of a manifest
// against the filesystem and the OS shell.
package operation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/battlewithbytes/manage/internal/manifest"
	"github.com/battlewithbytes/manage/internal/paths"
)

// OperationError reports the operation that stopped a run.
type OperationError struct {
	Action manifest.Action
	Source string
	Err    error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Source, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Executor runs operation lists in order. The first failure aborts the rest
// of the list; operations already applied are not rolled back.
type Executor struct {
	paths  *paths.Resolver
	opener Opener
	log    zerolog.Logger

	// OnStep, when set, is called after every operation with its outcome.
	OnStep func(action manifest.Action, err error)
}

// NewExecutor creates an Executor. A nil opener selects ShellOpener.
func NewExecutor(resolver *paths.Resolver, opener Opener, log zerolog.Logger) *Executor {
	if opener == nil {
		opener = ShellOpener{}
	}
	return &Executor{
		paths:  resolver,
		opener: opener,
		log:    log.With().Str("component", "executor").Logger(),
	}
}

// RunInstall executes an install list (copy, run).
func (x *Executor) RunInstall(ctx context.Context, ops []manifest.Operation, workDir string) error {
	return x.run(ctx, manifest.ListInstall, ops, workDir)
}

// RunUninstall executes an uninstall list (delete, run).
func (x *Executor) RunUninstall(ctx context.Context, ops []manifest.Operation, workDir string) error {
	return x.run(ctx, manifest.ListUninstall, ops, workDir)
}

func (x *Executor) run(ctx context.Context, list manifest.List, ops []manifest.Operation, workDir string) error {
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.log.Debug().Str("list", string(list)).Int("index", i).
			Str("action", string(op.Action)).Str("source", op.Source).Msg("operation")

		err := x.apply(ctx, list, op, workDir)
		if x.OnStep != nil {
			x.OnStep(op.Action, err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (x *Executor) apply(ctx context.Context, list manifest.List, op manifest.Operation, workDir string) error {
	if !op.Action.AllowedIn(list) {
		return &OperationError{Action: op.Action, Source: op.Source,
			Err: fmt.Errorf("action not allowed in %s list", list)}
	}

	var err error
	switch op.Action {
	case manifest.ActionCopy:
		err = x.copy(op, workDir)
	case manifest.ActionRun:
		err = x.open(ctx, op, workDir)
	case manifest.ActionDelete:
		err = x.delete(op, workDir)
	default:
		err = errors.New("unknown action")
	}
	if err != nil {
		return &OperationError{Action: op.Action, Source: op.Source, Err: err}
	}
	return nil
}

func (x *Executor) copy(op manifest.Operation, workDir string) error {
	src, err := x.paths.ResolveIn(workDir, op.Source)
	if err != nil {
		return err
	}
	destDir, err := x.paths.ResolveIn(workDir, op.Destination)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	target := filepath.Join(destDir, filepath.Base(src))
	if sameFile(src, target) {
		x.log.Info().Str("file", src).Msg("source already in destination, not copied")
	} else {
		if err := copyFile(src, target); err != nil {
			return err
		}
		x.log.Info().Str("from", src).Str("to", target).Msg("copied")
	}

	if IsArchive(src) {
		if err := Extract(src, destDir); err != nil {
			return fmt.Errorf("extracting %s: %w", filepath.Base(src), err)
		}
		x.log.Info().Str("archive", target).Str("into", destDir).Msg("extracted")
	}
	return nil
}

func (x *Executor) open(ctx context.Context, op manifest.Operation, workDir string) error {
	target, err := x.paths.ResolveIn(workDir, op.Source)
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err != nil {
		return err
	}
	if err := x.opener.Open(ctx, target); err != nil {
		return fmt.Errorf("shell open: %w", err)
	}
	x.log.Info().Str("file", target).Msg("handed to shell")
	return nil
}

func (x *Executor) delete(op manifest.Operation, workDir string) error {
	target, err := x.paths.ResolveIn(workDir, op.Source)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			x.log.Warn().Str("file", target).Msg("file to delete does not exist, skipping")
			return nil
		}
		return err
	}
	x.log.Info().Str("file", target).Msg("deleted")
	return nil
}

// sameFile reports whether a and b name the same file. Copying a file onto
// itself would truncate it.
func sameFile(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
