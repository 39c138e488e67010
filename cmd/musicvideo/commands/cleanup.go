package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Fato07/runway-music-video-generator/pkg/db"
	"github.com/Fato07/runway-music-video-generator/pkg/errors"
)

var (
	cleanupAll      bool
	cleanupAnalysis string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up generation results (local files, mirrored videos)",
	Long: `Clean up results associated with generation runs:
  --all              Clean results for every run
  --analysis <id>    Clean results for one run
  --orphaned         Remove result directories with no live ledger row
                     (audit-only directories included)`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean all runs")
	cleanupCmd.Flags().StringVar(&cleanupAnalysis, "analysis", "", "Clean a specific run by analysis ID")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Clean orphaned result directories")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupAll && cleanupAnalysis == "" && !cleanupOrphaned {
		return fmt.Errorf("must specify --all, --analysis, or --orphaned")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	switch {
	case cleanupAll:
		return cleanupAllRuns(ctx, out, a)
	case cleanupAnalysis != "":
		return cleanupSpecificRun(ctx, out, a, cleanupAnalysis)
	default:
		return cleanupOrphanedResults(out, a)
	}
}

func cleanupAllRuns(ctx context.Context, out io.Writer, a *app) error {
	runs, err := a.repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Fprintf(out, "🧹 Cleaning up %d runs...\n", len(runs))

	var cleaned []int64
	for _, g := range runs {
		if g.Status == db.StatusCleaned || !g.Terminal() {
			continue
		}
		if err := cleanupRunResources(ctx, a, g); err != nil {
			fmt.Fprintf(out, "⚠️  Failed to clean %s: %v\n", g.AnalysisID, err)
			continue
		}
		cleaned = append(cleaned, g.ID)
		fmt.Fprintf(out, "✅ Cleaned: %s\n", g.AnalysisID)
	}

	n, err := a.repo.MarkCleaned(ctx, cleaned)
	if err != nil {
		return errors.Wrap(err, "failed to update database")
	}
	fmt.Fprintf(out, "✅ Marked %d runs cleaned\n", n)
	return nil
}

func cleanupSpecificRun(ctx context.Context, out io.Writer, a *app, analysisID string) error {
	g, err := a.repo.GetByAnalysisID(analysisID)
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}
	if g == nil {
		return fmt.Errorf("generation %s not found", analysisID)
	}
	if !g.Terminal() {
		return fmt.Errorf("generation %s is still %s", analysisID, g.Status)
	}

	fmt.Fprintf(out, "🧹 Cleaning up %s...\n", analysisID)

	if err := cleanupRunResources(ctx, a, g); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}
	if _, err := a.repo.MarkCleaned(ctx, []int64{g.ID}); err != nil {
		return errors.Wrap(err, "failed to update database")
	}

	fmt.Fprintf(out, "✅ Cleaned: %s\n", analysisID)
	return nil
}

// cleanupRunResources removes the local result directory and the mirrored
// object of one run.
func cleanupRunResources(ctx context.Context, a *app, g *db.Generation) error {
	if err := a.store.Remove(g.AnalysisID); err != nil {
		return errors.Wrap(err, "failed to remove results")
	}

	if g.S3Key != "" {
		if a.mirror == nil {
			return fmt.Errorf("run has mirrored object %s but no S3 bucket is configured", g.S3Key)
		}
		if err := a.mirror.Delete(ctx, g.S3Key); err != nil {
			return errors.Wrap(err, "failed to delete mirrored video")
		}
	}
	return nil
}

func cleanupOrphanedResults(out io.Writer, a *app) error {
	fmt.Fprintln(out, "🔍 Scanning for orphaned results...")

	dirs, err := a.store.List()
	if err != nil {
		return errors.Wrap(err, "failed to list results")
	}

	orphanCount := 0
	for _, id := range dirs {
		g, err := a.repo.GetByAnalysisID(id)
		if err != nil {
			fmt.Fprintf(out, "⚠️  Lookup failed for %s: %v\n", id, err)
			continue
		}
		if g != nil && g.Status != db.StatusCleaned {
			continue
		}
		if err := a.store.Remove(id); err != nil {
			fmt.Fprintf(out, "⚠️  Failed to remove orphaned directory %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "🗑️  Removed orphaned directory: %s\n", id)
		orphanCount++
	}

	fmt.Fprintf(out, "✅ Removed %d orphaned results\n", orphanCount)
	return nil
}
