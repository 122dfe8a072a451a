package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/manifest"
	"github.com/battlewithbytes/manage/internal/ui"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a " + manifest.FileName + " file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		var se *manifest.SchemaError
		if errors.As(err, &se) {
			fmt.Fprintln(os.Stderr, ui.Red.Render("✗")+" "+args[0])
			for _, p := range se.Problems {
				fmt.Fprintln(os.Stderr, "  "+p)
			}
			return fmt.Errorf("%d problems found", len(se.Problems))
		}
		if err != nil {
			return err
		}
		if !m.Supported() {
			return fmt.Errorf("unsupported manifest version %d (supported: %d)", m.Version, manifest.SupportedVersion)
		}
		fmt.Println(ui.Green.Render("✓") + " " + args[0] + ui.Dim.Render(
			fmt.Sprintf(" (%d processes, %d install, %d uninstall operations)", len(m.Processes), len(m.Install), len(m.Uninstall))))
		return nil
	},
}
