package report

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/franz/vinyl-shelf/internal/store"
	"github.com/franz/vinyl-shelf/internal/util"
)

// SummaryReport describes one stored build
type SummaryReport struct {
	GeneratedAt time.Time
	Run         *store.Run

	// Pricing statistics
	Rows        int
	Listed      int
	NotForSale  int
	Unpriced    int
	ShelfValue  float64 // sum of lowest prices of listed rows
	Currency    string
	MinValuable float64

	// Details
	ExclusionReasons []ReasonSummary
	Exclusions       []store.Exclusion
	Valuable         []store.RunRow

	// Metadata
	DatabasePath string
	EventLogPath string
}

// ReasonSummary is an exclusion reason with its count
type ReasonSummary struct {
	Reason string
	Count  int
}

// maxValuable caps the valuable-items table
const maxValuable = 25

// GenerateSummaryReport builds a report for runID, or for the latest build when
// runID is empty. Rows priced at or above minValuable are listed as valuable
// items; minValuable <= 0 disables that section.
func GenerateSummaryReport(db *store.Store, runID string, minValuable float64) (*SummaryReport, error) {
	var run *store.Run
	var err error
	if runID == "" {
		run, err = db.LatestRun(false)
	} else {
		run, err = db.GetRun(runID)
	}
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{
		GeneratedAt:      time.Now(),
		Run:              run,
		Currency:         run.Currency,
		MinValuable:      minValuable,
		EventLogPath:     run.EventLogPath,
		ExclusionReasons: make([]ReasonSummary, 0),
	}

	rows, err := db.RunRows(run.ID)
	if err != nil {
		return nil, err
	}
	report.Rows = len(rows)
	for _, r := range rows {
		switch {
		case r.LowestPrice != nil && r.NumForSale != nil && *r.NumForSale > 0:
			report.Listed++
			report.ShelfValue += *r.LowestPrice
			if minValuable > 0 && *r.LowestPrice >= minValuable {
				report.Valuable = append(report.Valuable, r)
			}
		case r.NumForSale != nil && *r.NumForSale == 0:
			report.NotForSale++
		default:
			report.Unpriced++
		}
	}
	slices.SortStableFunc(report.Valuable, func(a, b store.RunRow) int {
		return cmp.Compare(*b.LowestPrice, *a.LowestPrice)
	})
	if len(report.Valuable) > maxValuable {
		report.Valuable = report.Valuable[:maxValuable]
	}

	report.Exclusions, err = db.RunExclusions(run.ID)
	if err != nil {
		return nil, err
	}
	report.ExclusionReasons = gatherReasons(report.Exclusions)

	return report, nil
}

// gatherReasons counts exclusions per reason, most frequent first
func gatherReasons(exclusions []store.Exclusion) []ReasonSummary {
	counts := make(map[string]int)
	for _, e := range exclusions {
		counts[e.Reason]++
	}

	reasons := make([]ReasonSummary, 0, len(counts))
	for reason, count := range counts {
		reasons = append(reasons, ReasonSummary{Reason: reason, Count: count})
	}
	slices.SortFunc(reasons, func(a, b ReasonSummary) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Reason, b.Reason))
	})
	return reasons
}

// RenderMarkdown formats the report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder
	run := report.Run

	md.WriteString("# Vinyl Shelf - Build Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Run | `%s` |\n", run.ID))
	md.WriteString(fmt.Sprintf("| User | %s |\n", run.Username))
	md.WriteString(fmt.Sprintf("| Media | %s (%s) |\n", run.Media, run.Policy))
	md.WriteString(fmt.Sprintf("| Sort | %s |\n", run.SortBy))
	md.WriteString(fmt.Sprintf("| State | %s |\n", run.State))
	md.WriteString(fmt.Sprintf("| Started | %s (%s) |\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), util.FormatAge(run.StartedAt)))
	md.WriteString(fmt.Sprintf("| Duration | %s |\n", run.Duration().Round(time.Second)))
	md.WriteString(fmt.Sprintf("| Items Scanned | %s |\n", util.FormatCount(run.Scanned)))
	md.WriteString(fmt.Sprintf("| On the Shelf | %s |\n", util.FormatCount(run.Accepted)))
	md.WriteString(fmt.Sprintf("| Excluded | %s |\n", util.FormatCount(run.Excluded)))
	if run.Malformed > 0 {
		md.WriteString(fmt.Sprintf("| Malformed | %d |\n", run.Malformed))
	}
	md.WriteString("\n")

	if report.Listed > 0 || report.NotForSale > 0 {
		md.WriteString("## Pricing\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Listed | %d |\n", report.Listed))
		md.WriteString(fmt.Sprintf("| Not For Sale | %d |\n", report.NotForSale))
		md.WriteString(fmt.Sprintf("| Unpriced | %d |\n", report.Unpriced))
		md.WriteString(fmt.Sprintf("| Shelf Value (lowest) | %s |\n", util.FormatPrice(report.ShelfValue, report.Currency)))
		md.WriteString(fmt.Sprintf("| Fetched / Cached / Skipped | %d / %d / %d |\n", run.PricesFetched, run.PricesCached, run.PricesSkipped))
		if run.PriceError != "" {
			md.WriteString(fmt.Sprintf("| Price Error | %s |\n", escapeCell(run.PriceError)))
		}
		md.WriteString("\n")
	}

	if len(report.Valuable) > 0 {
		md.WriteString(fmt.Sprintf("## Valuable Items (%s and up)\n\n", util.FormatPrice(report.MinValuable, report.Currency)))
		md.WriteString("| Price | For Sale | Artist | Title | Year |\n")
		md.WriteString("|-------|----------|--------|-------|------|\n")
		for _, r := range report.Valuable {
			md.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				util.FormatPrice(*r.LowestPrice, r.Currency), *r.NumForSale,
				escapeCell(r.Artist), escapeCell(truncateMiddle(r.Title, 60)), yearCell(r.Year)))
		}
		md.WriteString("\n")
	}

	if len(report.ExclusionReasons) > 0 {
		md.WriteString("## Exclusions by Reason\n\n")
		md.WriteString("| Count | Reason |\n")
		md.WriteString("|-------|--------|\n")
		for _, r := range report.ExclusionReasons {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", r.Count, r.Reason))
		}
		md.WriteString("\n")

		md.WriteString("## Excluded Releases\n\n")
		md.WriteString("| Release | Artist | Title | Format | Reason |\n")
		md.WriteString("|---------|--------|-------|--------|--------|\n")
		for _, e := range report.Exclusions {
			id := "-"
			if e.ReleaseID != nil {
				id = fmt.Sprintf("%d", *e.ReleaseID)
			}
			md.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				id, escapeCell(e.Artist), escapeCell(truncateMiddle(e.Title, 60)),
				escapeCell(truncateMiddle(e.Format, 40)), e.Reason))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by [vinyl-shelf](https://github.com/franz/vinyl-shelf)*\n")
	return md.String()
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func yearCell(year *int) string {
	if year == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *year)
}

// escapeCell keeps pipes from breaking table rows
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// truncateMiddle shortens s to maxLen runes, keeping start and end
func truncateMiddle(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	keep := maxLen/2 - 2
	if keep <= 0 {
		return util.Truncate(s, maxLen)
	}
	return string(runes[:keep]) + "..." + string(runes[len(runes)-keep:])
}
