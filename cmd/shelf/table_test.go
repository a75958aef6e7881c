package main

import (
	"strings"
	"testing"

	"github.com/franz/vinyl-shelf/internal/collection"
	"github.com/franz/vinyl-shelf/internal/store"
)

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Artist", "Price"},
		[][]string{{"Can", "45 USD"}, {"Neu!"}},
		[]columnAlignment{alignLeft, alignRight},
		0,
	)

	for _, want := range []string{"Artist", "Price", "Can", "45 USD", "Neu!", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("Table missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Split(out, "\n"); len(lines) != 6 {
		t.Errorf("Expected 6 lines (borders, header, separator, 2 rows), got %d:\n%s", len(lines), out)
	}
}

func TestRenderTable_NoHeaders(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}, nil, 0); out != "" {
		t.Errorf("Expected empty output, got %q", out)
	}
}

func TestRowTable(t *testing.T) {
	rows := sampleResult().Rows

	headers, cells, aligns := rowTable(rows, true, true)
	if len(headers) != 9 || len(aligns) != 9 {
		t.Fatalf("Expected 9 columns, got %d headers and %d aligns", len(headers), len(aligns))
	}
	if got := cells[0]; got[1] != "Miles Davis" || got[3] != "1959" || got[4] != "Columbia CL 1355" || got[6] != "US" || got[7] != "25 USD" || got[8] != "14" {
		t.Errorf("Unexpected first row %v", got)
	}
	if got := cells[1]; got[3] != "" || got[7] != "-" || got[8] != "?" {
		t.Errorf("Unexpected unpriced row %v", got)
	}

	headers, _, _ = rowTable(rows, false, false)
	if len(headers) != 6 {
		t.Errorf("Expected 6 columns without prices or country, got %d", len(headers))
	}
}

func TestJoinLabel(t *testing.T) {
	testCases := []struct {
		label, catno, want string
	}{
		{"Columbia", "CL 1355", "Columbia CL 1355"},
		{"United Artists", "", "United Artists"},
		{"", "SD 1361", "SD 1361"},
		{"", "", ""},
	}
	for _, tc := range testCases {
		if got := joinLabel(tc.label, tc.catno); got != tc.want {
			t.Errorf("joinLabel(%q, %q) = %q, want %q", tc.label, tc.catno, got, tc.want)
		}
	}
}

func TestHistoryTable(t *testing.T) {
	res := sampleResult()
	cfg := collection.DefaultConfig()
	cfg.Prices = true

	runs := []*store.Run{
		runRecord("0123456789abcdef", cfg, res, ""),
		{ID: "failed-run", State: "failed", Message: "authenticating: token rejected"},
	}

	headers, cells, _ := historyTable(runs)
	if len(cells) != 2 || len(cells[0]) != len(headers) {
		t.Fatalf("Unexpected table shape %d x %d", len(cells), len(cells[0]))
	}
	if cells[0][0] != "01234567" {
		t.Errorf("Expected short run ID, got %q", cells[0][0])
	}
	if cells[0][4] != "artist (USD)" {
		t.Errorf("Expected priced sort column, got %q", cells[0][4])
	}
	if !strings.HasPrefix(cells[0][9], "prices: ") {
		t.Errorf("Expected price error in message column, got %q", cells[0][9])
	}
	if cells[1][5] != "failed" || cells[1][9] != "authenticating: token rejected" {
		t.Errorf("Unexpected failed run row %v", cells[1])
	}
}
