package main

import (
	"fmt"
	"strconv"

	"github.com/franz/vinyl-shelf/internal/collection"
	"github.com/franz/vinyl-shelf/internal/store"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a stored build without calling the API",
	Long: `Display the rows of a stored build as a table.

By default the most recent successful build is shown. Rows can be re-sorted
with --sort-by and filtered to valuable items with --min-price; both work
from the stored prices, so nothing is fetched.`,
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	// Show-specific flags
	showCmd.Flags().String("run", "", "run ID to show (default: latest successful build)")
	showCmd.Flags().Float64("min-price", 0, "only rows whose lowest price is at least this value")
	showCmd.Flags().String("sort-by", "", "re-sort the stored rows: artist, title, year, price_asc or price_desc")
	showCmd.Flags().String("various-policy", "normal", "compilation placement when re-sorting")
	showCmd.Flags().Bool("plain", false, "print plain shelf lines instead of a table")
	showCmd.Flags().Bool("dividers", false, "with --plain, insert '=== A ===' headers")
	showCmd.Flags().Bool("show-country", false, "include the release country")
}

func runShow(cmd *cobra.Command, args []string) error {
	runID, _ := cmd.Flags().GetString("run")
	minPrice, _ := cmd.Flags().GetFloat64("min-price")
	sortBy, _ := cmd.Flags().GetString("sort-by")
	various, _ := cmd.Flags().GetString("various-policy")
	plain, _ := cmd.Flags().GetBool("plain")
	dividers, _ := cmd.Flags().GetBool("dividers")
	showCountry, _ := cmd.Flags().GetBool("show-country")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := findRun(db, runID)
	if err != nil {
		return err
	}

	stored, err := db.RunRows(run.ID)
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}
	rows := fromStoreRows(stored)

	if sortBy != "" {
		by, err := collection.ParseSortBy(sortBy)
		if err != nil {
			return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
		}
		policy, err := collection.ParseVariousPolicy(various)
		if err != nil {
			return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
		}
		rows = collection.Sort(rows, by, policy)
	}

	priced := run.Currency != ""
	if minPrice > 0 {
		if !priced {
			util.WarnLog("Run %s has no prices; rerun 'shelf build --prices'", shortID(run.ID))
			return nil
		}
		rows = collection.AtOrAbove(rows, minPrice)
		util.InfoLog("%d items at or above %s", len(rows), util.FormatPrice(minPrice, run.Currency))
	}

	util.InfoLog("Run %s: %s, %s, sorted by %s, %s",
		shortID(run.ID), run.Username, run.Media, run.SortBy, util.FormatAge(run.FinishedAt))

	out := cmd.OutOrStdout()
	if plain {
		opts := collection.LineOptions{ShowCountry: showCountry, ShowPrice: priced}
		for _, line := range collection.Lines(rows, dividers, opts) {
			fmt.Fprintln(out, line)
		}
		return nil
	}

	if len(rows) == 0 {
		util.InfoLog("No rows to show")
		return nil
	}
	headers, cells, aligns := rowTable(rows, priced, showCountry)
	fmt.Fprintln(out, renderTable(headers, cells, aligns, tableWidth()))
	return nil
}

// findRun resolves --run, falling back to the latest successful build
func findRun(db *store.Store, runID string) (*store.Run, error) {
	if runID != "" {
		return db.GetRun(runID)
	}
	run, err := db.LatestRun(true)
	if err != nil {
		return nil, fmt.Errorf("no stored build, run 'shelf build' first: %w", err)
	}
	return run, nil
}

func rowTable(rows []collection.Row, priced, showCountry bool) ([]string, [][]string, []columnAlignment) {
	headers := []string{"#", "Artist", "Title", "Year", "Label", "Format"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
	if showCountry {
		headers = append(headers, "Country")
		aligns = append(aligns, alignLeft)
	}
	if priced {
		headers = append(headers, "Lowest", "For sale")
		aligns = append(aligns, alignRight, alignRight)
	}

	cells := make([][]string, 0, len(rows))
	for i, r := range rows {
		year := ""
		if r.Year != nil && *r.Year > 0 {
			year = strconv.Itoa(*r.Year)
		}
		line := []string{
			strconv.Itoa(i + 1),
			r.ArtistDisplay,
			r.Title,
			year,
			joinLabel(r.Label, r.CatalogNumber),
			util.Truncate(r.FormatDescription, 40),
		}
		if showCountry {
			line = append(line, r.Country)
		}
		if priced {
			line = append(line, priceCell(r.Pricing), forSaleCell(r.Pricing))
		}
		cells = append(cells, line)
	}
	return headers, cells, aligns
}

func joinLabel(label, catno string) string {
	switch {
	case label == "":
		return catno
	case catno == "":
		return label
	default:
		return label + " " + catno
	}
}

func priceCell(p collection.Pricing) string {
	if p.LowestPrice == nil {
		return "-"
	}
	return util.FormatPrice(*p.LowestPrice, p.Currency)
}

func forSaleCell(p collection.Pricing) string {
	if p.NumForSale == nil {
		return "?"
	}
	return strconv.Itoa(*p.NumForSale)
}
