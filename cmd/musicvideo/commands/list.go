package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

var listStatuses []string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List generation runs and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Only show runs in these statuses")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.repo.List(listStatuses...)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No generations found")
		return nil
	}

	fmt.Fprintf(out, "%-45s %-12s %-38s %-5s %s\n", "ANALYSIS ID", "STATUS", "JOB", "SECS", "FILE")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------------------------------")

	for _, g := range runs {
		job := g.JobID
		if job == "" {
			job = "-"
		}
		file := g.LocalPath
		if g.Status == db.StatusFailed {
			file = "error: " + g.ErrorMessage
		}
		if file == "" {
			file = "-"
		}
		secs := "-"
		if g.Duration != 0 {
			secs = fmt.Sprintf("%d", g.Duration)
		}

		fmt.Fprintf(out, "%-45s %-12s %-38s %-5s %s\n", g.AnalysisID, g.Status, job, secs, file)
	}

	return nil
}
