package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/release"
	"github.com/battlewithbytes/manage/internal/ui"
)

var (
	uninstallRelease int64
	uninstallYes     bool
)

func init() {
	uninstallCmd.Flags().Int64Var(&uninstallRelease, "release", 0, "release whose uninstall operations to run (default: the installed one)")
	uninstallCmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(uninstallCmd)
}

// confirmUninstall asks before uninstalling. Overridden in tests.
var confirmUninstall = func(name string) (bool, error) {
	ok := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Uninstall %s?", name)).
			Description("The package's uninstall operations will run.").
			Affirmative("Uninstall").
			Negative("Cancel").
			Value(&ok),
	)).WithTheme(huh.ThemeCatppuccin())
	err := form.Run()
	return ok, err
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <owner/repo>",
	Short: "Uninstall a package",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		repo, err := a.lookupRepository(ctx, args[0])
		if err != nil {
			return err
		}
		rel, err := a.uninstallTarget(ctx, repo)
		if err != nil {
			return err
		}

		if !uninstallYes {
			ok, err := confirmUninstall(repo.FullName())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Uninstall cancelled.")
				return nil
			}
		}

		fmt.Println(ui.Cyan.Render("→") + " Uninstalling " + ui.White.Render(repo.FullName()))
		if err := a.engine.Uninstall(ctx, repo, rel); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("✓") + " Uninstalled " + ui.White.Render(repo.FullName()))
		return nil
	}),
}

// uninstallTarget picks the release whose uninstall list runs: the --release
// flag, then the installed release, then the latest (nil).
func (a *app) uninstallTarget(ctx context.Context, repo release.Repository) (*release.Release, error) {
	if uninstallRelease != 0 {
		return a.lookupRelease(ctx, repo, uninstallRelease)
	}
	id, ok, err := a.engine.InstalledRelease(ctx, repo)
	if err != nil || !ok {
		return nil, err
	}
	rel, err := a.lookupRelease(ctx, repo, id)
	if err != nil {
		a.log.Warn().Err(err).Int64("release", id).Msg("installed release unavailable, using latest")
		return nil, nil
	}
	return rel, nil
}
