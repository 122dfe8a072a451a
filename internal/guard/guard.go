// Package guard refuses to proceed while a named process is running.
package guard

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/battlewithbytes/manage/internal/manifest"
)

// ProcessConflictError names the first guarded process found running.
type ProcessConflictError struct {
	ProcessName string
}

func (e *ProcessConflictError) Error() string {
	return fmt.Sprintf("Please close %s first!", e.ProcessName)
}

// Lister returns the names of all running processes.
type Lister func(ctx context.Context) ([]string, error)

// Guard checks manifest process entries against a process snapshot.
type Guard struct {
	list Lister
	log  zerolog.Logger
}

// New creates a Guard backed by the host process table. A nil lister
// selects the gopsutil implementation.
func New(log zerolog.Logger, list Lister) *Guard {
	if list == nil {
		list = RunningProcesses
	}
	return &Guard{list: list, log: log.With().Str("component", "guard").Logger()}
}

// EnsureNoConflicts takes one snapshot of running process names and fails on
// the first manifest entry (in manifest order) that matches exactly.
func (g *Guard) EnsureNoConflicts(ctx context.Context, entries []manifest.ProcessEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	names, err := g.list(ctx)
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}
	running := make(map[string]struct{}, len(names))
	for _, n := range names {
		running[n] = struct{}{}
	}
	g.log.Debug().Int("running", len(running)).Int("guarded", len(entries)).Msg("process snapshot taken")

	for _, e := range entries {
		if _, ok := running[e.Name]; ok {
			g.log.Info().Str("process", e.Name).Msg("guarded process is running")
			return &ProcessConflictError{ProcessName: e.Name}
		}
	}
	return nil
}

// RunningProcesses lists process names via gopsutil. Processes that exit
// while the snapshot is taken are skipped.
func RunningProcesses(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
