package collection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/sortkey"
)

// ReleaseURLPrefix is the public web page of a release
const ReleaseURLPrefix = "https://www.discogs.com/release/"

// Pricing is the marketplace data attached to a row. It is the only part of a
// row that changes after construction.
type Pricing struct {
	LowestPrice *float64 `json:"lowest_price"`
	NumForSale  *int     `json:"num_for_sale"`
	Currency    string   `json:"currency,omitempty"`
}

// Looked reports whether a price lookup has been applied
func (p Pricing) Looked() bool {
	return p.NumForSale != nil
}

// Listed reports whether copies are for sale at a known price
func (p Pricing) Listed() bool {
	return p.LowestPrice != nil && p.NumForSale != nil && *p.NumForSale > 0
}

// NotForSale reports a confirmed absence of listings
func (p Pricing) NotForSale() bool {
	return p.LowestPrice == nil && p.NumForSale != nil && *p.NumForSale == 0
}

// Row is one accepted release, ready for display and ordering
type Row struct {
	ReleaseID *int `json:"release_id"`
	MasterID  *int `json:"master_id,omitempty"`

	ArtistDisplay     string `json:"artist"`
	Title             string `json:"title"`
	Year              *int   `json:"year"`
	Label             string `json:"label"`
	CatalogNumber     string `json:"catno"`
	Country           string `json:"country"`
	FormatDescription string `json:"format"`
	URL               string `json:"discogs_url"`
	Notes             string `json:"notes"`
	ThumbURL          string `json:"thumb_url,omitempty"`
	CoverImageURL     string `json:"cover_image_url,omitempty"`

	SortArtist string `json:"sort_artist"`
	SortTitle  string `json:"sort_title"`

	Pricing Pricing `json:"pricing"`
}

// Exclusion records a release that did not match the requested media
type Exclusion struct {
	ReleaseID         *int   `json:"release_id"`
	ArtistDisplay     string `json:"artist"`
	Title             string `json:"title"`
	Year              *int   `json:"year"`
	FormatDescription string `json:"format"`
	Reason            string `json:"reason"`
}

var joinSpacingRe = regexp.MustCompile(`(?i)\s+([&,+]|feat\.|with)\s+`)
var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// ArtistDisplay joins the credited artists with their join words.
// Releases without artist credits fall back to the title.
func ArtistDisplay(basic *discogs.BasicInformation) string {
	if basic == nil {
		return ""
	}
	if len(basic.Artists) == 0 {
		return basic.Title
	}

	var b strings.Builder
	for _, a := range basic.Artists {
		b.WriteString(sortkey.StripNumericSuffix(a.Name))
		join := strings.TrimSpace(a.Join)
		switch join {
		case "":
		case ",":
			b.WriteString(", ")
		default:
			b.WriteString(" " + join + " ")
		}
	}
	text := strings.TrimSpace(b.String())
	text = joinSpacingRe.ReplaceAllString(text, " $1 ")
	return multiSpaceRe.ReplaceAllString(text, " ")
}

// FormatString summarizes format descriptors, e.g. "2xVinyl, LP, Album; CD".
// The quantity prefix is omitted when it is 1.
func FormatString(formats []discogs.Format) string {
	var pieces []string
	for _, f := range formats {
		if p := formatPiece(f); p != "" {
			pieces = append(pieces, p)
		}
	}
	return strings.Join(pieces, "; ")
}

func formatPiece(f discogs.Format) string {
	name := strings.TrimSpace(f.Name)
	qty := strings.TrimSpace(f.Qty)

	var descs []string
	for _, d := range f.Descriptions {
		if d = strings.TrimSpace(d); d != "" {
			descs = append(descs, d)
		}
	}

	base := name
	if qty != "" && qty != "1" {
		base = qty + "x" + name
	}
	switch {
	case base != "" && len(descs) > 0:
		return base + ", " + strings.Join(descs, ", ")
	case len(descs) > 0:
		return strings.Join(descs, ", ")
	}
	return base
}

// LabelAndCatalogNumber returns the first label credit
func LabelAndCatalogNumber(labels []discogs.LabelCredit) (string, string) {
	if len(labels) == 0 {
		return "", ""
	}
	return strings.TrimSpace(labels[0].Name), strings.TrimSpace(labels[0].Catno)
}

// ReleaseID returns the release id of a collection item, preferring the
// embedded release summary over the item itself.
func ReleaseID(item discogs.CollectionItem) *int {
	if item.BasicInformation != nil && item.BasicInformation.ID.Valid && item.BasicInformation.ID.Value > 0 {
		return item.BasicInformation.ID.Ptr()
	}
	if item.ID.Valid && item.ID.Value > 0 {
		return item.ID.Ptr()
	}
	return nil
}

func yearOf(basic *discogs.BasicInformation) *int {
	if !basic.Year.Valid || basic.Year.Value <= 0 {
		return nil
	}
	return basic.Year.Ptr()
}

// BuildRow converts a collection item into a row. ok is false when the item
// carries no release summary.
func BuildRow(item discogs.CollectionItem, opts sortkey.Options) (row Row, ok bool) {
	basic := item.BasicInformation
	if basic == nil {
		return Row{}, false
	}

	artist := ArtistDisplay(basic)
	label, catno := LabelAndCatalogNumber(basic.Labels)
	id := ReleaseID(item)

	row = Row{
		ReleaseID:         id,
		MasterID:          basic.MasterID.Ptr(),
		ArtistDisplay:     artist,
		Title:             strings.TrimSpace(basic.Title),
		Year:              yearOf(basic),
		Label:             label,
		CatalogNumber:     catno,
		Country:           strings.TrimSpace(basic.Country),
		FormatDescription: FormatString(basic.Formats),
		Notes:             string(item.Notes),
		ThumbURL:          basic.Thumb,
		CoverImageURL:     basic.CoverImage,
	}
	if row.MasterID != nil && *row.MasterID == 0 {
		row.MasterID = nil
	}
	if id != nil {
		row.URL = fmt.Sprintf("%s%d", ReleaseURLPrefix, *id)
	}
	row.SortArtist, row.SortTitle = sortkey.Build(row.ArtistDisplay, row.Title, opts)
	return row, true
}

func exclusionFor(item discogs.CollectionItem, reason string) Exclusion {
	basic := item.BasicInformation
	return Exclusion{
		ReleaseID:         ReleaseID(item),
		ArtistDisplay:     ArtistDisplay(basic),
		Title:             strings.TrimSpace(basic.Title),
		Year:              yearOf(basic),
		FormatDescription: FormatString(basic.Formats),
		Reason:            reason,
	}
}
