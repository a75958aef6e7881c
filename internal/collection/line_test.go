package collection

import (
	"reflect"
	"testing"
)

func TestLine(t *testing.T) {
	year := 1959
	price := 24.6
	forSale := 14
	zero := 0

	full := Row{
		ArtistDisplay: "Miles Davis",
		Title:         "Kind Of Blue",
		Year:          &year,
		Label:         "Columbia",
		CatalogNumber: "CL 1355",
		Country:       "US",
		Pricing:       Pricing{LowestPrice: &price, NumForSale: &forSale, Currency: "USD"},
	}

	tests := []struct {
		name     string
		row      Row
		opts     LineOptions
		expected string
	}{
		{
			name:     "plain",
			row:      full,
			expected: "Miles Davis — Kind Of Blue (1959) [Columbia CL 1355]",
		},
		{
			name:     "country and price",
			row:      full,
			opts:     LineOptions{ShowCountry: true, ShowPrice: true},
			expected: "Miles Davis — Kind Of Blue (1959) [Columbia CL 1355] {US} - 25 USD+ (14 for sale)",
		},
		{
			name:     "label without catalog number",
			row:      Row{ArtistDisplay: "Can", Title: "Future Days", Label: "United Artists"},
			expected: "Can — Future Days [United Artists]",
		},
		{
			name:     "not listed",
			row:      Row{ArtistDisplay: "Can", Title: "Soon Over Babaluma", Pricing: Pricing{NumForSale: &zero}},
			opts:     LineOptions{ShowPrice: true},
			expected: "Can — Soon Over Babaluma [Not listed]",
		},
		{
			name:     "country hidden when unknown",
			row:      Row{ArtistDisplay: "Neu!", Title: "Neu! 75"},
			opts:     LineOptions{ShowCountry: true},
			expected: "Neu! — Neu! 75",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Line(tt.row, tt.opts); got != tt.expected {
				t.Errorf("Line() =\n  %q\nexpected\n  %q", got, tt.expected)
			}
		})
	}
}

func TestDividerLetter(t *testing.T) {
	tests := map[string]string{
		"beatles":   "B",
		" ástor":    "Á",
		"10cc":      "#",
		"":          "#",
		"!!! (chk)": "#",
	}
	for in, want := range tests {
		if got := DividerLetter(in); got != want {
			t.Errorf("DividerLetter(%q) = %q, expected %q", in, got, want)
		}
	}
}

func TestLines(t *testing.T) {
	rows := []Row{
		row("Abba", "Arrival", 0),
		row("Air", "Moon Safari", 0),
		row("Beck", "Odelay", 0),
		row("10cc", "Sheet Music", 0),
	}

	got := Lines(rows, true, LineOptions{})
	expected := []string{
		"=== A ===",
		"Abba — Arrival",
		"Air — Moon Safari",
		"=== B ===",
		"Beck — Odelay",
		"=== # ===",
		"10cc — Sheet Music",
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Lines() =\n%v\nexpected\n%v", got, expected)
	}

	if plain := Lines(rows, false, LineOptions{}); len(plain) != len(rows) {
		t.Errorf("Lines() without dividers returned %d lines, expected %d", len(plain), len(rows))
	}
}
