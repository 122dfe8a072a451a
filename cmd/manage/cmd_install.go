package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/ui"
)

var installRelease int64

func init() {
	installCmd.Flags().Int64Var(&installRelease, "release", 0, "release ID to install (default: latest)")
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install <owner/repo>",
	Short: "Install or update a package",
	Long: "Install the latest release of a package, or the release given with --release.\n" +
		"If the package is already installed its uninstall operations run first.",
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		repo, err := a.lookupRepository(ctx, args[0])
		if err != nil {
			return err
		}
		rel, err := a.lookupRelease(ctx, repo, installRelease)
		if err != nil {
			return err
		}

		fmt.Println(ui.Cyan.Render("→") + " Installing " + ui.White.Render(repo.FullName()))
		if err := a.engine.Install(ctx, repo, rel); err != nil {
			return err
		}

		id, _, err := a.engine.InstalledRelease(ctx, repo)
		if err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("✓") + " Installed " + ui.White.Render(repo.FullName()) +
			ui.Dim.Render(fmt.Sprintf(" (release %d)", id)))
		return nil
	}),
}
