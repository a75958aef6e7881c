package collection

import (
	"testing"

	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/sortkey"
)

func TestArtistDisplay(t *testing.T) {
	tests := []struct {
		name     string
		basic    *discogs.BasicInformation
		expected string
	}{
		{"nil release", nil, ""},
		{"single artist", &discogs.BasicInformation{Artists: []discogs.ArtistCredit{{Name: "Can"}}}, "Can"},
		{
			name: "ampersand join is padded",
			basic: &discogs.BasicInformation{Artists: []discogs.ArtistCredit{
				{Name: "Simon", Join: "&"}, {Name: "Garfunkel"},
			}},
			expected: "Simon & Garfunkel",
		},
		{
			name: "comma join",
			basic: &discogs.BasicInformation{Artists: []discogs.ArtistCredit{
				{Name: "Crosby", Join: ","}, {Name: "Stills", Join: "&"}, {Name: "Nash"},
			}},
			expected: "Crosby, Stills & Nash",
		},
		{
			name: "numeric disambiguation removed",
			basic: &discogs.BasicInformation{Artists: []discogs.ArtistCredit{
				{Name: "Prince (2)", Join: "Feat."}, {Name: "Chaka Khan"},
			}},
			expected: "Prince Feat. Chaka Khan",
		},
		{"no credits falls back to title", &discogs.BasicInformation{Title: "Soundtrack"}, "Soundtrack"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArtistDisplay(tt.basic); got != tt.expected {
				t.Errorf("ArtistDisplay() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		name     string
		formats  []discogs.Format
		expected string
	}{
		{"empty", nil, ""},
		{"single LP", []discogs.Format{{Name: "Vinyl", Qty: "1", Descriptions: []string{"LP", "Album"}}}, "Vinyl, LP, Album"},
		{
			name: "double LP with CD",
			formats: []discogs.Format{
				{Name: "Vinyl", Qty: "2", Descriptions: []string{"LP", " ", "Album"}},
				{Name: "CD", Qty: "1"},
			},
			expected: "2xVinyl, LP, Album; CD",
		},
		{"descriptions only", []discogs.Format{{Descriptions: []string{"Reissue"}}}, "Reissue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatString(tt.formats); got != tt.expected {
				t.Errorf("FormatString() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestReleaseID(t *testing.T) {
	tests := []struct {
		name     string
		item     discogs.CollectionItem
		expected int // 0 = absent
	}{
		{"prefers release summary", discogs.CollectionItem{ID: discogs.Some(1), BasicInformation: &discogs.BasicInformation{ID: discogs.Some(2)}}, 2},
		{"falls back to item", discogs.CollectionItem{ID: discogs.Some(3), BasicInformation: &discogs.BasicInformation{}}, 3},
		{"zero is absent", discogs.CollectionItem{ID: discogs.Some(0)}, 0},
		{"missing", discogs.CollectionItem{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReleaseID(tt.item)
			switch {
			case tt.expected == 0 && got != nil:
				t.Errorf("ReleaseID() = %d, expected absent", *got)
			case tt.expected != 0 && (got == nil || *got != tt.expected):
				t.Errorf("ReleaseID() = %v, expected %d", got, tt.expected)
			}
		})
	}
}

func TestBuildRow(t *testing.T) {
	item := discogs.CollectionItem{
		ID:    discogs.Some(1355),
		Notes: "first press",
		BasicInformation: &discogs.BasicInformation{
			ID:       discogs.Some(1355),
			MasterID: discogs.Some(0),
			Title:    " Kind Of Blue ",
			Year:     discogs.Some(1959),
			Artists:  []discogs.ArtistCredit{{Name: "Miles Davis"}},
			Labels:   []discogs.LabelCredit{{Name: "Columbia", Catno: "CL 1355"}, {Name: "CBS"}},
			Formats:  []discogs.Format{{Name: "Vinyl", Qty: "1", Descriptions: []string{"LP", "Album", "Mono"}}},
			Country:  "US",
		},
	}

	row, ok := BuildRow(item, sortkey.Options{LastNameFirst: true})
	if !ok {
		t.Fatal("BuildRow() rejected an item with release data")
	}

	if row.ArtistDisplay != "Miles Davis" || row.Title != "Kind Of Blue" {
		t.Errorf("Unexpected names %q / %q", row.ArtistDisplay, row.Title)
	}
	if row.Year == nil || *row.Year != 1959 {
		t.Errorf("Year = %v, expected 1959", row.Year)
	}
	if row.Label != "Columbia" || row.CatalogNumber != "CL 1355" {
		t.Errorf("Label = %q %q, expected first label credit", row.Label, row.CatalogNumber)
	}
	if row.URL != "https://www.discogs.com/release/1355" {
		t.Errorf("URL = %q", row.URL)
	}
	if row.MasterID != nil {
		t.Errorf("MasterID = %d, expected absent for 0", *row.MasterID)
	}
	if row.Notes != "first press" || row.FormatDescription != "Vinyl, LP, Album, Mono" {
		t.Errorf("Unexpected notes/format %q / %q", row.Notes, row.FormatDescription)
	}
	if row.SortArtist != "davis, miles" || row.SortTitle != "kind of blue" {
		t.Errorf("Sort keys = %q / %q", row.SortArtist, row.SortTitle)
	}
	if row.Pricing.Looked() {
		t.Error("New row should not carry pricing")
	}

	if _, ok := BuildRow(discogs.CollectionItem{ID: discogs.Some(1)}, sortkey.Options{}); ok {
		t.Error("BuildRow() accepted an item without release data")
	}
}

func TestBuildRow_MissingYearAndID(t *testing.T) {
	item := discogs.CollectionItem{BasicInformation: &discogs.BasicInformation{
		Title:   "Untitled",
		Year:    discogs.Some(0),
		Artists: []discogs.ArtistCredit{{Name: "Unknown Artist"}},
	}}

	row, ok := BuildRow(item, sortkey.Options{})
	if !ok {
		t.Fatal("BuildRow() rejected item")
	}
	if row.Year != nil {
		t.Errorf("Year = %d, expected missing for 0", *row.Year)
	}
	if row.ReleaseID != nil || row.URL != "" {
		t.Errorf("Expected no id and no URL, got %v %q", row.ReleaseID, row.URL)
	}
}

func TestPricingStates(t *testing.T) {
	price := 12.0
	zero, some := 0, 4

	tests := []struct {
		name                       string
		pricing                    Pricing
		looked, listed, notForSale bool
	}{
		{"not looked up", Pricing{}, false, false, false},
		{"listed", Pricing{LowestPrice: &price, NumForSale: &some}, true, true, false},
		{"not for sale", Pricing{NumForSale: &zero}, true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.pricing
			if p.Looked() != tt.looked || p.Listed() != tt.listed || p.NotForSale() != tt.notForSale {
				t.Errorf("Looked/Listed/NotForSale = %v/%v/%v, expected %v/%v/%v",
					p.Looked(), p.Listed(), p.NotForSale(), tt.looked, tt.listed, tt.notForSale)
			}
		})
	}
}
