package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/vinyl-shelf/internal/report"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an exclusion and pricing audit of a stored build",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Build settings and counters
- Pricing coverage and the summed shelf value
- The most valuable items
- Exclusions grouped by reason, and every excluded release

The report is saved to <artifacts>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("run", "", "run ID to report on (default: latest build)")
	reportCmd.Flags().String("out", "", "output directory (default: <artifacts>/reports/<timestamp>)")
	reportCmd.Flags().Float64("min-price", 50, "list items at or above this price as valuable (0 disables)")
	reportCmd.Flags().Bool("stdout", false, "print the report instead of writing a file")
}

func runReport(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")
	runID, _ := cmd.Flags().GetString("run")
	minPrice, _ := cmd.Flags().GetFloat64("min-price")
	toStdout, _ := cmd.Flags().GetBool("stdout")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := report.GenerateSummaryReport(db, runID, minPrice)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = dbPath

	if toStdout {
		fmt.Fprint(cmd.OutOrStdout(), report.RenderMarkdown(summary))
		return nil
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("artifacts", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Run: %s (%s, %s)", shortID(summary.Run.ID), summary.Run.State, util.FormatAge(summary.Run.FinishedAt))
	util.InfoLog("  Scanned: %d, on the shelf: %d", summary.Run.Scanned, summary.Rows)
	if summary.Run.Excluded > 0 {
		util.InfoLog("  Excluded: %d in %d reasons", summary.Run.Excluded, len(summary.ExclusionReasons))
	}
	if summary.Currency != "" {
		util.InfoLog("  Shelf value: %s over %d listed items", util.FormatPrice(summary.ShelfValue, summary.Currency), summary.Listed)
	}
	if summary.Run.PriceError != "" {
		util.WarnLog("  Prices incomplete: %s", summary.Run.PriceError)
	}
	return nil
}
