package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/ui"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed packages",
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		records, err := a.engine.Installed(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println(ui.Dim.Render("No packages installed."))
			return nil
		}
		for _, rec := range records {
			name := rec.Repository
			if name == "" {
				name = fmt.Sprintf("package %d", rec.PackageID)
			}
			fmt.Printf("%-40s %s %s\n",
				ui.White.Render(name),
				ui.Cyan.Render(fmt.Sprintf("release %d", rec.ReleaseID)),
				ui.Dim.Render(rec.InstalledAt.Local().Format("2006-01-02 15:04")))
		}
		return nil
	}),
}
