package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/franz/vinyl-shelf/internal/store"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored builds",
	Long: `List the builds stored in the database, newest first.

Failed builds are kept as well so their error message can be reviewed.
Use --prune N to delete everything but the N most recent builds.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "number of builds to list (0 = all)")
	historyCmd.Flags().Int("prune", -1, "keep only the N most recent builds")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	prune, _ := cmd.Flags().GetInt("prune")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if prune >= 0 {
		deleted, err := db.PruneRuns(prune)
		if err != nil {
			return fmt.Errorf("failed to prune builds: %w", err)
		}
		util.SuccessLog("Deleted %d builds, kept %d", deleted, prune)
	}

	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		util.InfoLog("No stored builds. Run 'shelf build' first.")
		return nil
	}

	headers, cells, aligns := historyTable(runs)
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, cells, aligns, tableWidth()))
	return nil
}

func historyTable(runs []*store.Run) ([]string, [][]string, []columnAlignment) {
	headers := []string{"Run", "When", "User", "Media", "Sort", "State", "Rows", "Excluded", "Took", "Message"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}

	cells := make([][]string, 0, len(runs))
	for _, r := range runs {
		sortBy := r.SortBy
		if r.Currency != "" {
			sortBy += " (" + r.Currency + ")"
		}
		message := r.Message
		if r.PriceError != "" {
			message = "prices: " + r.PriceError
		}
		cells = append(cells, []string{
			shortID(r.ID),
			util.FormatAge(r.StartedAt),
			r.Username,
			r.Media,
			sortBy,
			r.State,
			strconv.Itoa(r.Accepted),
			strconv.Itoa(r.Excluded),
			r.Duration().Round(100 * time.Millisecond).String(),
			util.Truncate(message, 60),
		})
	}
	return headers, cells, aligns
}
