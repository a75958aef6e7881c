package collection

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/franz/vinyl-shelf/internal/classify"
	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/pricecache"
	"github.com/franz/vinyl-shelf/internal/util"
)

// fakeCatalog serves a fixed collection and price table
type fakeCatalog struct {
	username    string
	identityErr error
	items       []discogs.CollectionItem
	pageErr     error
	prices      map[int]*discogs.Price
	priceErrs   map[int]error

	priceCalls []int
	pageOpts   discogs.PageOptions
}

func (f *fakeCatalog) Identity(ctx context.Context) (*discogs.Identity, error) {
	if f.identityErr != nil {
		return nil, f.identityErr
	}
	return &discogs.Identity{Username: f.username}, nil
}

func (f *fakeCatalog) Collection(ctx context.Context, username string, opts discogs.PageOptions) iter.Seq2[discogs.CollectionItem, error] {
	f.pageOpts = opts
	return func(yield func(discogs.CollectionItem, error) bool) {
		for _, item := range f.items {
			if !yield(item, nil) {
				return
			}
		}
		if f.pageErr != nil {
			yield(discogs.CollectionItem{}, f.pageErr)
		}
	}
}

func (f *fakeCatalog) MarketplaceStats(ctx context.Context, releaseID int, currency string) (*discogs.Price, error) {
	f.priceCalls = append(f.priceCalls, releaseID)
	if err := f.priceErrs[releaseID]; err != nil {
		return nil, err
	}
	if p, ok := f.prices[releaseID]; ok {
		return p, nil
	}
	zero := 0
	return &discogs.Price{NumForSale: &zero, Currency: currency}, nil
}

func item(id int, artist, title string, formats ...discogs.Format) discogs.CollectionItem {
	return discogs.CollectionItem{
		ID: discogs.Some(id),
		BasicInformation: &discogs.BasicInformation{
			ID:      discogs.Some(id),
			Title:   title,
			Artists: []discogs.ArtistCredit{{Name: artist}},
			Formats: formats,
		},
	}
}

var (
	lpFormat = discogs.Format{Name: "Vinyl", Qty: "1", Descriptions: []string{"LP", "Album"}}
	cdFormat = discogs.Format{Name: "CD", Qty: "1", Descriptions: []string{"Album"}}
	sevenIn  = discogs.Format{Name: "Vinyl", Qty: "1", Descriptions: []string{`7"`, "45 RPM", "Single"}}
)

func listing(price float64, count int) *discogs.Price {
	return &discogs.Price{LowestPrice: &price, NumForSale: &count, Currency: "USD"}
}

func newCache(t *testing.T) *pricecache.Cache {
	t.Helper()
	return pricecache.New(filepath.Join(t.TempDir(), "prices.json"))
}

func TestPipeline_AuthenticateErrors(t *testing.T) {
	denied := &discogs.APIError{Path: "/oauth/identity", StatusCode: http.StatusUnauthorized}

	tests := []struct {
		name    string
		catalog Catalog
		wantErr error
	}{
		{"no catalog", nil, util.ErrNoToken},
		{"rejected token", &fakeCatalog{identityErr: denied}, denied},
		{"empty username", &fakeCatalog{username: "  "}, ErrNoUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.catalog, nil, DefaultConfig())
			_, err := p.Authenticate(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, expected %v", err, tt.wantErr)
			}
			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.State != StateAuthenticating {
				t.Errorf("Expected an authenticating StageError, got %#v", err)
			}
			if p.State() != StateFailed {
				t.Errorf("State() = %s, expected failed", p.State())
			}
		})
	}
}

func TestPipeline_AuthenticateBindsCache(t *testing.T) {
	cache := newCache(t)
	cache.SetActiveUser("someone-else")
	cache.Set(1, "USD", nil, nil)

	p := New(&fakeCatalog{username: "digger"}, cache, DefaultConfig())
	user, err := p.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("Authenticate() failed: %v", err)
	}
	if user != "digger" || cache.Username() != "digger" {
		t.Errorf("Expected cache bound to digger, got %q / %q", user, cache.Username())
	}
	if _, _, stale := cache.Get(1, "USD"); !stale {
		t.Error("Entries of the previous account should be discarded")
	}
}

func TestPipeline_BuildNoMatches(t *testing.T) {
	catalog := &fakeCatalog{
		username: "digger",
		items:    []discogs.CollectionItem{item(1, "Can", "Tago Mago", cdFormat)},
	}
	p := New(catalog, nil, DefaultConfig())

	res, err := p.Build(context.Background())
	if !errors.Is(err, ErrNoMatches) {
		t.Fatalf("Build() error = %v, expected ErrNoMatches", err)
	}
	if res.State != StateFailed || p.State() != StateFailed {
		t.Errorf("Expected failed state, got %s / %s", res.State, p.State())
	}
	if len(catalog.priceCalls) != 0 {
		t.Errorf("No prices should be fetched for an empty shelf, got %v", catalog.priceCalls)
	}
}

func TestPipeline_BuildPaginationError(t *testing.T) {
	catalog := &fakeCatalog{
		username: "digger",
		items:    []discogs.CollectionItem{item(1, "Can", "Tago Mago", lpFormat)},
		pageErr:  util.ErrRetriesExhausted,
	}
	p := New(catalog, nil, DefaultConfig())

	res, err := p.Build(context.Background())
	if !errors.Is(err, util.ErrRetriesExhausted) {
		t.Fatalf("Build() error = %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.State != StatePaginating {
		t.Errorf("Expected paginating StageError, got %v", err)
	}
	if res.State != StateFailed || len(res.Rows) != 0 {
		t.Errorf("Expected failed result without rows, got %s with %d rows", res.State, len(res.Rows))
	}
}

func TestPipeline_BuildClassifiesAndSorts(t *testing.T) {
	catalog := &fakeCatalog{
		username: "digger",
		items: []discogs.CollectionItem{
			item(1, "Zappa", "Hot Rats", lpFormat),
			item(2, "The Beatles", "Abbey Road", lpFormat),
			item(3, "Can", "Tago Mago", cdFormat),
			item(4, "Kinks", "Lola", sevenIn),
			{ID: discogs.Some(5)},
		},
	}
	cfg := DefaultConfig()
	cfg.CollectExclusions = true
	cfg.MaxPages = 3

	var states []State
	p := New(catalog, nil, cfg, WithProgress(func(s State, _ string) {
		if len(states) == 0 || states[len(states)-1] != s {
			states = append(states, s)
		}
	}))

	res, err := p.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if got := titles(res.Rows); !reflect.DeepEqual(got, []string{"Abbey Road", "Hot Rats"}) {
		t.Errorf("Rows = %v, expected [Abbey Road Hot Rats]", got)
	}
	expectedStats := Stats{Scanned: 4, Vinyl: 3, VinylLP: 2, Accepted: 2, Excluded: 2, Malformed: 1}
	if res.Stats != expectedStats {
		t.Errorf("Stats = %+v, expected %+v", res.Stats, expectedStats)
	}
	if len(res.Exclusions) != 2 || res.Exclusions[0].Reason != "not vinyl" {
		t.Errorf("Unexpected exclusions %+v", res.Exclusions)
	}
	if catalog.pageOpts.MaxPages != 3 || catalog.pageOpts.PerPage != discogs.MaxPerPage {
		t.Errorf("Page options = %+v", catalog.pageOpts)
	}
	if len(catalog.priceCalls) != 0 {
		t.Errorf("Artist sort should not fetch prices, got %v", catalog.priceCalls)
	}

	expectedStates := []State{StateAuthenticating, StatePaginating, StateClassifying, StateSorting, StateDone}
	if !reflect.DeepEqual(states, expectedStates) {
		t.Errorf("States = %v, expected %v", states, expectedStates)
	}
	if res.State != StateDone || res.Username != "digger" {
		t.Errorf("Result = %s for %q", res.State, res.Username)
	}
}

func TestPipeline_BuildOtherMedia(t *testing.T) {
	items := []discogs.CollectionItem{
		item(1, "Can", "Tago Mago", cdFormat),
		item(2, "Kinks", "Lola", sevenIn),
		item(3, "Zappa", "Hot Rats", lpFormat),
	}

	tests := []struct {
		media    classify.Media
		expected []string
	}{
		{classify.MediaCD, []string{"Tago Mago"}},
		{classify.Media45, []string{"Lola"}},
		{classify.MediaLP, []string{"Hot Rats"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.media), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Media = tt.media
			res, err := New(&fakeCatalog{username: "digger", items: items}, nil, cfg).Build(context.Background())
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if got := titles(res.Rows); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Rows = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestPipeline_FullPassMarksCache(t *testing.T) {
	cache := newCache(t)
	catalog := &fakeCatalog{username: "digger", items: []discogs.CollectionItem{item(1, "Can", "Tago Mago", lpFormat)}}

	p := New(catalog, cache, DefaultConfig())
	if _, err := p.Build(context.Background()); err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if cache.Stats().LastFullFetch.IsZero() {
		t.Error("A pass over every page should record the full fetch time")
	}
}

func TestPipeline_FetchPrices_OneLookupPerRelease(t *testing.T) {
	catalog := &fakeCatalog{
		username: "digger",
		prices:   map[int]*discogs.Price{1: listing(30, 2), 2: listing(12, 9)},
	}
	rows := []Row{
		withID(row("Can", "Tago Mago", 0), 1),
		withID(row("Can", "Tago Mago", 0), 1),
		withID(row("Neu!", "Neu!", 0), 2),
		row("Unknown", "No ID", 0),
	}

	var ticks []int
	p := New(catalog, newCache(t), DefaultConfig(), WithPriceProgress(func(done, total int) {
		ticks = append(ticks, done)
	}))
	summary, err := p.FetchPrices(context.Background(), rows)
	if err != nil {
		t.Fatalf("FetchPrices() failed: %v", err)
	}

	if !reflect.DeepEqual(catalog.priceCalls, []int{1, 2}) {
		t.Errorf("Lookups = %v, expected [1 2]", catalog.priceCalls)
	}
	if summary != (PriceSummary{Requested: 2, Fetched: 2}) {
		t.Errorf("Summary = %+v", summary)
	}
	for i := 0; i < 2; i++ {
		if !rows[i].Pricing.Listed() || *rows[i].Pricing.LowestPrice != 30 {
			t.Errorf("Row %d pricing = %+v, expected 30 USD", i, rows[i].Pricing)
		}
	}
	if rows[3].Pricing.Looked() {
		t.Error("A row without release id should not be priced")
	}
	if !reflect.DeepEqual(ticks, []int{1, 2}) {
		t.Errorf("Progress ticks = %v", ticks)
	}
}

func TestPipeline_FetchPrices_CacheFirst(t *testing.T) {
	cache := newCache(t)
	cache.SetActiveUser("digger")
	zero := 0
	cache.Set(1, "USD", nil, &zero)

	catalog := &fakeCatalog{username: "digger", prices: map[int]*discogs.Price{2: listing(8, 1)}}
	rows := []Row{withID(row("A", "Cached", 0), 1), withID(row("B", "Fresh", 0), 2)}

	p := New(catalog, cache, DefaultConfig())
	summary, err := p.FetchPrices(context.Background(), rows)
	if err != nil {
		t.Fatalf("FetchPrices() failed: %v", err)
	}

	if !reflect.DeepEqual(catalog.priceCalls, []int{2}) {
		t.Errorf("Lookups = %v, expected only the uncached release", catalog.priceCalls)
	}
	if summary.FromCache != 1 || summary.Fetched != 1 {
		t.Errorf("Summary = %+v", summary)
	}
	if !rows[0].Pricing.NotForSale() {
		t.Errorf("Cached not-for-sale entry should be applied, got %+v", rows[0].Pricing)
	}

	reloaded := pricecache.New(cache.Path())
	if price, _, stale := reloaded.Get(2, "USD"); stale || price == nil || *price != 8 {
		t.Errorf("Fetched price should be persisted, got %v stale=%v", price, stale)
	}
}

func TestPipeline_FetchPrices_NotFoundSkipped(t *testing.T) {
	catalog := &fakeCatalog{
		username:  "digger",
		prices:    map[int]*discogs.Price{3: listing(15, 4)},
		priceErrs: map[int]error{2: &discogs.APIError{Path: "/marketplace/stats/2", StatusCode: http.StatusNotFound}},
	}
	rows := []Row{withID(row("A", "One", 0), 1), withID(row("B", "Two", 0), 2), withID(row("C", "Three", 0), 3)}

	cache := newCache(t)
	summary, err := New(catalog, cache, DefaultConfig()).FetchPrices(context.Background(), rows)
	if err != nil {
		t.Fatalf("FetchPrices() failed: %v", err)
	}
	if summary.Skipped != 1 || summary.Fetched != 2 {
		t.Errorf("Summary = %+v", summary)
	}
	if rows[1].Pricing.Looked() {
		t.Error("Skipped release should stay unpriced")
	}
	if _, _, stale := cache.Get(2, "USD"); !stale {
		t.Error("Skipped release should not be cached")
	}
}

func TestPipeline_FetchPrices_AbortPersistsPartial(t *testing.T) {
	catalog := &fakeCatalog{
		username:  "digger",
		prices:    map[int]*discogs.Price{1: listing(10, 1)},
		priceErrs: map[int]error{2: util.ErrRetriesExhausted},
	}
	rows := []Row{withID(row("A", "One", 0), 1), withID(row("B", "Two", 0), 2), withID(row("C", "Three", 0), 3)}

	cache := newCache(t)
	summary, err := New(catalog, cache, DefaultConfig()).FetchPrices(context.Background(), rows)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.State != StatePriceEnriching {
		t.Fatalf("Expected price_enriching StageError, got %v", err)
	}
	if !errors.Is(err, util.ErrRetriesExhausted) {
		t.Errorf("Cause should be preserved, got %v", err)
	}
	if summary.Fetched != 1 || summary.Remaining != 2 {
		t.Errorf("Summary = %+v", summary)
	}
	if !reflect.DeepEqual(catalog.priceCalls, []int{1, 2}) {
		t.Errorf("Lookups = %v, expected to stop after the failure", catalog.priceCalls)
	}

	reloaded := pricecache.New(cache.Path())
	if _, _, stale := reloaded.Get(1, "USD"); stale {
		t.Error("Prices fetched before the abort should be persisted")
	}
}

func TestPipeline_BuildKeepsRowsWhenPricesFail(t *testing.T) {
	catalog := &fakeCatalog{
		username: "digger",
		items: []discogs.CollectionItem{
			item(1, "Zappa", "Hot Rats", lpFormat),
			item(2, "Can", "Tago Mago", lpFormat),
		},
		prices:    map[int]*discogs.Price{1: listing(40, 3)},
		priceErrs: map[int]error{2: errors.New("connection reset")},
	}
	cfg := DefaultConfig()
	cfg.SortBy = SortByPriceDesc

	res, err := New(catalog, newCache(t), cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if res.PriceError == nil || res.State != StateDone {
		t.Fatalf("Expected done with a price error, got %s / %v", res.State, res.PriceError)
	}
	if got := titles(res.Rows); !reflect.DeepEqual(got, []string{"Hot Rats", "Tago Mago"}) {
		t.Errorf("Rows = %v, expected priced row first", got)
	}
}

func TestStageError(t *testing.T) {
	err := &StageError{State: StatePaginating, Err: errors.New("status 500\nbody")}
	if err.Error() != "paginating: status 500" {
		t.Errorf("Error() = %q", err.Error())
	}
	if State(42).String() != "state(42)" {
		t.Errorf("Unknown state String() = %q", State(42).String())
	}
}

func withID(r Row, id int) Row {
	r.ReleaseID = &id
	return r
}
