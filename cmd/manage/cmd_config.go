package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/ui"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Println(ui.Cyan.Render("Data dir: ") + ui.White.Render(cfg.DataDir))
		fmt.Println(ui.Cyan.Render("Packages: ") + ui.White.Render(strings.Join(cfg.Packages, ", ")))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Paths:"))
		fmt.Println(ui.Dim.Render("  Temp dir:  ") + ui.White.Render(orDefault(cfg.Paths.TempDir)))
		names := make([]string, 0, len(cfg.Paths.Tokens))
		for name := range cfg.Paths.Tokens {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(ui.Dim.Render(fmt.Sprintf("  $%-9s ", name)) + ui.White.Render(cfg.Paths.Tokens[name]))
		}
		fmt.Println()
		fmt.Println(ui.Cyan.Render("GitHub:"))
		fmt.Println(ui.Dim.Render("  API:       ") + ui.White.Render(cfg.GitHub.APIBase))
		fmt.Println(ui.Dim.Render("  Token:     ") + ui.White.Render(fmt.Sprintf("%v", cfg.GitHub.Token != "")))
		fmt.Println(ui.Dim.Render("  Prerelease:") + ui.White.Render(fmt.Sprintf(" %v", cfg.GitHub.IncludePrereleases)))
		fmt.Println(ui.Dim.Render("  Cache TTL: ") + ui.White.Render(cfg.GitHub.CacheTTL.String()))
		fmt.Println(ui.Dim.Render("  Rate:      ") + ui.White.Render(fmt.Sprintf("%g req/s", cfg.GitHub.RequestsPerSecond)))
		fmt.Println()
		fmt.Println(ui.Cyan.Render("Logging:  ") + ui.White.Render(cfg.Logging.Level+" / "+cfg.Logging.Format))
		fmt.Println(ui.Cyan.Render("Metrics:  ") + ui.White.Render(orDefault(cfg.Metrics.Textfile)))
		fmt.Println()
		fmt.Println(ui.Dim.Render("Config file: " + flagConfig))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(flagConfig)
	},
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
