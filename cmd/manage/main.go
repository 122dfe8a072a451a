package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/config"
	"github.com/battlewithbytes/manage/internal/engine"
	"github.com/battlewithbytes/manage/internal/guard"
	"github.com/battlewithbytes/manage/internal/manifest"
	"github.com/battlewithbytes/manage/internal/operation"
	"github.com/battlewithbytes/manage/internal/registry"
	"github.com/battlewithbytes/manage/internal/ui"
	"github.com/battlewithbytes/manage/internal/version"
)

var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "manage",
	Short:         "manage: install and uninstall packages published as GitHub releases",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Long = ui.Green.Render("manage") + " " + ui.Cyan.Render(version.Version) + "\n" +
		ui.Dim.Render("Installs, updates and removes packages by following the manage.package manifest attached to each release.")

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", config.DefaultConfigPath(), "path to config.yml")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override data_dir from the config")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logging.level from the config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red.Render("Error:")+" "+errorMessage(err))
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, ui.Dim.Render(hint))
		}
		os.Exit(1)
	}
}

// errorMessage returns the message of the first known error type in err's
// chain, without the wrapping context added on the way up.
func errorMessage(err error) string {
	var (
		conflict    *guard.ProcessConflictError
		schema      *manifest.SchemaError
		unsupported *engine.UnsupportedVersionError
		missing     *engine.MissingManifestError
		op          *operation.OperationError
		reg         *registry.Error
	)
	switch {
	case errors.As(err, &conflict):
		return conflict.Error()
	case errors.As(err, &schema):
		return schema.Error()
	case errors.As(err, &unsupported):
		return unsupported.Error()
	case errors.As(err, &missing):
		return missing.Error()
	case errors.As(err, &op):
		return op.Error()
	case errors.As(err, &reg):
		return reg.Error()
	}
	return err.Error()
}

// errorHint suggests a follow-up command for errors the user can retry.
func errorHint(err error) string {
	var rerr *registry.Error
	if errors.As(err, &rerr) && rerr.Op == "record" && rerr.PackageID != 0 {
		return "The package operations completed but the install record was not saved. " +
			"Run `manage record <owner/repo> <release-id>` to retry."
	}
	return ""
}
