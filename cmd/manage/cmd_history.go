package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/battlewithbytes/manage/internal/engine"
	"github.com/battlewithbytes/manage/internal/ui"
)

var historyClear bool

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete finished jobs and their logs")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [job-id]",
	Short: "Show past install and uninstall jobs, or the log of one job",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if historyClear {
			n, err := a.store.ClearTerminalJobs()
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d jobs.\n", n)
			return nil
		}
		if len(args) == 1 {
			return showJob(a, args[0])
		}

		jobs, err := a.engine.Jobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println(ui.Dim.Render("No jobs yet."))
			return nil
		}
		for _, j := range jobs {
			fmt.Printf("%s  %-9s %-30s %s %s\n",
				ui.Dim.Render(shortID(j.ID)),
				j.Type,
				j.Repository,
				ui.StateBadge(j.State),
				ui.Dim.Render(jobTiming(j)))
		}
		return nil
	}),
}

func showJob(a *app, id string) error {
	job, err := a.engine.Job(id)
	if err != nil {
		return err
	}
	fmt.Println(ui.KeyValue("Job:       ", job.ID))
	fmt.Println(ui.KeyValue("Type:      ", job.Type))
	fmt.Println(ui.KeyValue("Package:   ", job.Repository))
	if job.ReleaseID != 0 {
		fmt.Println(ui.KeyValue("Release:   ", fmt.Sprintf("%d", job.ReleaseID)))
	}
	fmt.Println(ui.Cyan.Render("State:     ") + " " + ui.StateBadge(job.State) + " " + ui.Dim.Render(jobTiming(job)))
	if job.Error != "" {
		fmt.Println(ui.Cyan.Render("Error:     ") + " " + ui.Red.Render(job.Error))
	}

	logs, err := a.engine.JobLogs(id)
	if err != nil {
		return err
	}
	fmt.Println()
	for _, l := range logs {
		line := fmt.Sprintf("%s %-5s %s", l.Timestamp.Local().Format("15:04:05"), strings.ToUpper(l.Level), l.Message)
		switch l.Level {
		case "error":
			fmt.Println(ui.Red.Render(line))
		case "warn":
			fmt.Println(ui.Yellow.Render(line))
		case "debug":
			fmt.Println(ui.Dim.Render(line))
		default:
			fmt.Println(line)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// jobTiming describes how long a finished job took, or when a running one
// started.
func jobTiming(j *engine.Job) string {
	if j.Terminal() && j.CompletedAt != nil {
		return "in " + j.CompletedAt.Sub(j.CreatedAt).Round(time.Millisecond).String()
	}
	return "since " + j.CreatedAt.Local().Format("2006-01-02 15:04:05")
}
