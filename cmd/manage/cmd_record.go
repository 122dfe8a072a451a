package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/ui"
)

func init() {
	rootCmd.AddCommand(recordCmd)
}

var recordCmd = &cobra.Command{
	Use:   "record <owner/repo> <release-id>",
	Short: "Record a package as installed without running any operations",
	Long:  "Retry only the recording step of an install whose operations already ran.",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		releaseID, err := parseReleaseID(args[1])
		if err != nil {
			return err
		}
		repo, err := a.lookupRepository(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.engine.RecordOnly(ctx, repo, releaseID); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("✓") + " Recorded " + ui.White.Render(repo.FullName()) +
			ui.Dim.Render(fmt.Sprintf(" (release %d)", releaseID)))
		return nil
	}),
}
