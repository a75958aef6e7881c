package collection

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LineOptions controls the plain-text shelf listing
type LineOptions struct {
	ShowCountry bool
	ShowPrice   bool
}

// Line renders one row, e.g.
//
//	Miles Davis — Kind Of Blue (1959) [Columbia CL 1355] {US} - 25 USD+ (14 for sale)
func Line(r Row, opts LineOptions) string {
	var b strings.Builder
	b.WriteString(r.ArtistDisplay)
	b.WriteString(" — ")
	b.WriteString(r.Title)

	if r.Year != nil && *r.Year > 0 {
		fmt.Fprintf(&b, " (%d)", *r.Year)
	}
	if r.Label != "" || r.CatalogNumber != "" {
		fmt.Fprintf(&b, " [%s]", strings.TrimSpace(r.Label+" "+r.CatalogNumber))
	}
	if opts.ShowCountry && r.Country != "" {
		fmt.Fprintf(&b, " {%s}", r.Country)
	}
	if opts.ShowPrice {
		if r.Pricing.Listed() {
			fmt.Fprintf(&b, " - %.0f %s+ (%d for sale)", *r.Pricing.LowestPrice, r.Pricing.Currency, *r.Pricing.NumForSale)
		} else {
			b.WriteString(" [Not listed]")
		}
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

// DividerLetter is the shelf section a sort artist belongs to: its upper-cased
// first letter, or "#" for anything else.
func DividerLetter(sortArtist string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(sortArtist))
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return "#"
	}
	return string(unicode.ToUpper(r))
}

// Lines renders rows in order, inserting "=== X ===" headers when the section changes
func Lines(rows []Row, dividers bool, opts LineOptions) []string {
	lines := make([]string, 0, len(rows))
	current := ""
	for _, r := range rows {
		if dividers {
			if letter := DividerLetter(r.SortArtist); letter != current {
				current = letter
				lines = append(lines, fmt.Sprintf("=== %s ===", letter))
			}
		}
		lines = append(lines, Line(r, opts))
	}
	return lines
}
