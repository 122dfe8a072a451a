package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/ui"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [owner/repo...]",
	Short: "Show which action applies to each package",
	Long:  "Show install, update or uninstall for each package. Without arguments the packages listed in the config are shown.",
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		names := args
		if len(names) == 0 {
			names = a.cfg.Packages
		}
		if len(names) == 0 {
			fmt.Println(ui.Dim.Render("No packages given and none configured."))
			return nil
		}

		for _, name := range names {
			repo, err := a.lookupRepository(ctx, name)
			if err != nil {
				fmt.Printf("%-40s %s\n", name, ui.Red.Render(err.Error()))
				continue
			}
			action, err := a.engine.ButtonState(ctx, repo)
			if err != nil {
				fmt.Printf("%-40s %s\n", name, ui.Red.Render(err.Error()))
				continue
			}
			fmt.Printf("%-40s %s\n", repo.FullName(), ui.ActionBadge(string(action)))
		}
		return nil
	}),
}
