package collection

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortBy selects the ordering of a shelf
type SortBy string

const (
	SortByArtist    SortBy = "artist"
	SortByTitle     SortBy = "title"
	SortByYear      SortBy = "year"
	SortByPriceAsc  SortBy = "price_asc"
	SortByPriceDesc SortBy = "price_desc"
)

// ParseSortBy validates a sort name; empty means artist
func ParseSortBy(s string) (SortBy, error) {
	switch by := SortBy(strings.ToLower(strings.TrimSpace(s))); by {
	case "":
		return SortByArtist, nil
	case SortByArtist, SortByTitle, SortByYear, SortByPriceAsc, SortByPriceDesc:
		return by, nil
	}
	return "", fmt.Errorf("unknown sort %q (want artist, title, year, price_asc or price_desc)", s)
}

// NeedsPrices reports whether the ordering depends on marketplace data
func (s SortBy) NeedsPrices() bool {
	return s == SortByPriceAsc || s == SortByPriceDesc
}

// VariousPolicy controls where "Various Artists" compilations are filed
type VariousPolicy string

const (
	VariousNormal VariousPolicy = "normal" // filed under "various"
	VariousLast   VariousPolicy = "last"   // after every named artist
	VariousTitle  VariousPolicy = "title"  // filed by their own title
)

// ParseVariousPolicy validates a policy name; empty means normal
func ParseVariousPolicy(s string) (VariousPolicy, error) {
	switch p := VariousPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return VariousNormal, nil
	case VariousNormal, VariousLast, VariousTitle:
		return p, nil
	}
	return "", fmt.Errorf("unknown various policy %q (want normal, last or title)", s)
}

// IsVariousArtist reports whether the display artist is a compilation placeholder
func IsVariousArtist(artistDisplay string) bool {
	switch strings.ToLower(strings.TrimSpace(artistDisplay)) {
	case "various", "various artists":
		return true
	}
	return false
}

const missingYear = 9999

func yearKey(r *Row) int {
	if r.Year == nil {
		return missingYear
	}
	return *r.Year
}

// byNames breaks ties on sort artist then sort title
func byNames(a, b *Row) int {
	return cmp.Or(
		cmp.Compare(a.SortArtist, b.SortArtist),
		cmp.Compare(a.SortTitle, b.SortTitle),
	)
}

func comparePrice(a, b *Row, desc bool) int {
	aUnknown, bUnknown := a.Pricing.LowestPrice == nil, b.Pricing.LowestPrice == nil
	switch {
	case aUnknown && bUnknown:
		return byNames(a, b)
	case aUnknown:
		return 1
	case bUnknown:
		return -1
	}
	c := cmp.Compare(*a.Pricing.LowestPrice, *b.Pricing.LowestPrice)
	if desc {
		c = -c
	}
	return cmp.Or(c, byNames(a, b))
}

// generalKey is (various flag, primary, secondary, year, tie)
type generalKey struct {
	various   int
	primary   string
	secondary string
	year      int
	tie       string
}

func keyFor(r *Row, by SortBy, policy VariousPolicy) generalKey {
	k := generalKey{year: yearKey(r)}
	isVarious := IsVariousArtist(r.ArtistDisplay)
	if policy == VariousLast && isVarious {
		k.various = 1
	}
	switch {
	case policy == VariousTitle && isVarious:
		k.primary, k.secondary, k.tie = r.SortTitle, r.SortTitle, r.SortArtist
	case by == SortByTitle:
		k.primary, k.secondary, k.tie = r.SortTitle, r.SortArtist, r.SortTitle
	default:
		k.primary, k.secondary, k.tie = r.SortArtist, r.SortTitle, r.SortArtist
	}
	return k
}

func compareGeneral(a, b generalKey) int {
	return cmp.Or(
		cmp.Compare(a.various, b.various),
		cmp.Compare(a.primary, b.primary),
		cmp.Compare(a.secondary, b.secondary),
		cmp.Compare(a.year, b.year),
		cmp.Compare(a.tie, b.tie),
	)
}

// Sort returns a new slice ordered by the requested key. The sort is stable and
// rows with an unknown price go last in both price directions.
func Sort(rows []Row, by SortBy, policy VariousPolicy) []Row {
	out := slices.Clone(rows)

	switch by {
	case SortByPriceAsc, SortByPriceDesc:
		desc := by == SortByPriceDesc
		slices.SortStableFunc(out, func(a, b Row) int {
			return comparePrice(&a, &b, desc)
		})
	case SortByYear:
		slices.SortStableFunc(out, func(a, b Row) int {
			return cmp.Or(cmp.Compare(yearKey(&a), yearKey(&b)), byNames(&a, &b))
		})
	default:
		slices.SortStableFunc(out, func(a, b Row) int {
			return cmp.Or(
				compareGeneral(keyFor(&a, by, policy), keyFor(&b, by, policy)),
				byNames(&a, &b),
			)
		})
	}
	return out
}

// AtOrAbove returns the rows, in input order, whose lowest price is at least threshold
func AtOrAbove(rows []Row, threshold float64) []Row {
	var out []Row
	for _, r := range rows {
		if r.Pricing.LowestPrice != nil && *r.Pricing.LowestPrice >= threshold {
			out = append(out, r)
		}
	}
	return out
}
