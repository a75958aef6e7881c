// Package collection turns a catalog account into an ordered, priced shelf:
// fetch, classify, build rows, enrich prices through the cache, sort.
package collection

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/franz/vinyl-shelf/internal/classify"
	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/pricecache"
	"github.com/franz/vinyl-shelf/internal/report"
	"github.com/franz/vinyl-shelf/internal/sortkey"
	"github.com/franz/vinyl-shelf/internal/util"
)

var (
	// ErrNoUsername indicates the identity endpoint returned no username
	ErrNoUsername = errors.New("could not determine username from token")

	// ErrNoMatches indicates the collection holds nothing of the requested media
	ErrNoMatches = errors.New("no matching items found")
)

// State is a pipeline phase
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StatePaginating
	StateClassifying
	StatePriceEnriching
	StateSorting
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateAuthenticating: "authenticating",
	StatePaginating:     "paginating",
	StateClassifying:    "classifying",
	StatePriceEnriching: "price_enriching",
	StateSorting:        "sorting",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// ProgressFunc receives every state transition and progress message
type ProgressFunc func(state State, message string)

// Catalog is the subset of the API client the pipeline uses
type Catalog interface {
	Identity(ctx context.Context) (*discogs.Identity, error)
	Collection(ctx context.Context, username string, opts discogs.PageOptions) iter.Seq2[discogs.CollectionItem, error]
	MarketplaceStats(ctx context.Context, releaseID int, currency string) (*discogs.Price, error)
}

// StageError is the single error a failed stage reports
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	msg := e.Err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return fmt.Sprintf("%s: %s", e.State, msg)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config selects what a build collects and how it is ordered
type Config struct {
	Media             classify.Media
	Policy            classify.Policy
	CollectExclusions bool
	PerPage           int
	MaxPages          int // 0 = all pages
	SortKeys          sortkey.Options
	SortBy            SortBy
	Various           VariousPolicy
	Prices            bool // fetch prices even when the sort does not need them
	Currency          string
}

// DefaultConfig returns an LP build sorted by artist, without prices
func DefaultConfig() Config {
	return Config{
		Media:    classify.MediaLP,
		Policy:   classify.PolicyDefault,
		PerPage:  discogs.MaxPerPage,
		SortBy:   SortByArtist,
		Various:  VariousNormal,
		Currency: "USD",
	}
}

// NeedsPrices reports whether a build enriches rows with marketplace data
func (c Config) NeedsPrices() bool {
	return c.Prices || c.SortBy.NeedsPrices()
}

func (c Config) currency() string {
	if cur := strings.ToUpper(strings.TrimSpace(c.Currency)); cur != "" {
		return cur
	}
	return "USD"
}

// Stats counts what a collection pass saw
type Stats struct {
	Scanned   int `json:"scanned"`
	Vinyl     int `json:"vinyl"`
	VinylLP   int `json:"vinyl_lp"`
	VinylLP33 int `json:"vinyl_lp_33"`
	Accepted  int `json:"accepted"`
	Excluded  int `json:"excluded"`
	Malformed int `json:"malformed"`
}

// Collection is the outcome of paginating and classifying an account
type Collection struct {
	Username   string
	Rows       []Row
	Exclusions []Exclusion
	Stats      Stats
}

// PriceSummary counts distinct releases by how their price was obtained
type PriceSummary struct {
	Requested int `json:"requested"`
	FromCache int `json:"from_cache"`
	Fetched   int `json:"fetched"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// Result is the outcome of a full build
type Result struct {
	State      State
	Message    string
	Username   string
	Rows       []Row
	Exclusions []Exclusion
	Stats      Stats
	Prices     PriceSummary
	PriceError error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline runs builds for one account. It is not safe for concurrent use.
type Pipeline struct {
	catalog       Catalog
	cache         *pricecache.Cache
	cfg           Config
	progress      ProgressFunc
	priceProgress func(done, total int)
	events        *report.EventLogger
	now           func() time.Time
	state         State
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithProgress registers the transition callback
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// WithPriceProgress registers a counter callback invoked after each price lookup
func WithPriceProgress(fn func(done, total int)) Option {
	return func(p *Pipeline) {
		p.priceProgress = fn
	}
}

// WithEvents writes pipeline events to a JSONL event log
func WithEvents(events *report.EventLogger) Option {
	return func(p *Pipeline) {
		p.events = events
	}
}

// WithClock replaces time.Now for run timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pipeline. cache may be nil, in which case every price is fetched.
func New(catalog Catalog, cache *pricecache.Cache, cfg Config, opts ...Option) *Pipeline {
	if cfg.Media == "" {
		cfg.Media = classify.MediaLP
	}
	if cfg.SortBy == "" {
		cfg.SortBy = SortByArtist
	}
	if cfg.Various == "" {
		cfg.Various = VariousNormal
	}
	p := &Pipeline{
		catalog: catalog,
		cache:   cache,
		cfg:     cfg,
		now:     time.Now,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the phase the pipeline is in
func (p *Pipeline) State() State {
	return p.state
}

// Config returns the build configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

func (p *Pipeline) transition(state State, message string) {
	p.state = state
	if p.progress != nil {
		p.progress(state, message)
	}
	p.events.LogState(state.String(), message)
}

func (p *Pipeline) fail(stage State, err error) *StageError {
	stageErr := &StageError{State: stage, Err: err}
	p.transition(StateFailed, stageErr.Error())
	p.events.LogError(report.EventError, stage.String(), err)
	return stageErr
}

// Authenticate resolves the account that owns the token and binds the cache to it
func (p *Pipeline) Authenticate(ctx context.Context) (string, error) {
	p.transition(StateAuthenticating, "Checking token")
	if p.catalog == nil {
		return "", p.fail(StateAuthenticating, util.ErrNoToken)
	}

	ident, err := p.catalog.Identity(ctx)
	if err != nil {
		return "", p.fail(StateAuthenticating, err)
	}
	username := strings.TrimSpace(ident.Username)
	if username == "" {
		return "", p.fail(StateAuthenticating, ErrNoUsername)
	}

	if p.cache != nil {
		p.cache.SetActiveUser(username)
	}
	p.transition(StateAuthenticating, "User: "+username)
	return username, nil
}

// Collect pages through the collection, classifying every item and building rows
// for the accepted ones. Items without release data count as malformed.
func (p *Pipeline) Collect(ctx context.Context, username string) (*Collection, error) {
	p.transition(StatePaginating, fmt.Sprintf("Fetching collection for %s", username))

	coll := &Collection{Username: username}
	opts := discogs.PageOptions{PerPage: p.cfg.PerPage, MaxPages: p.cfg.MaxPages}

	for item, err := range p.catalog.Collection(ctx, username, opts) {
		if err != nil {
			return nil, p.fail(StatePaginating, err)
		}
		p.classifyItem(coll, item)
		if coll.Stats.Scanned > 0 && coll.Stats.Scanned%discogs.MaxPerPage == 0 {
			p.transition(StatePaginating, fmt.Sprintf("Scanned %d items", coll.Stats.Scanned))
		}
	}

	if p.cache != nil && p.cfg.MaxPages == 0 {
		p.cache.MarkFullFetch()
	}

	p.transition(StateClassifying, fmt.Sprintf("%d of %d items match %s (%d excluded, %d malformed)",
		coll.Stats.Accepted, coll.Stats.Scanned, p.cfg.Media, coll.Stats.Excluded, coll.Stats.Malformed))
	return coll, nil
}

func (p *Pipeline) classifyItem(coll *Collection, item discogs.CollectionItem) {
	basic := item.BasicInformation
	if basic == nil {
		coll.Stats.Malformed++
		util.DebugLog("Skipping collection item %d without release data", item.ID.Value)
		return
	}

	coll.Stats.Scanned++
	counts := classify.Breakdown(basic.Formats)
	if counts.Vinyl {
		coll.Stats.Vinyl++
	}
	if counts.VinylLP {
		coll.Stats.VinylLP++
	}
	if counts.VinylLP33 {
		coll.Stats.VinylLP33++
	}

	if !classify.Accepts(p.cfg.Media, basic.Formats, p.cfg.Policy) {
		coll.Stats.Excluded++
		if p.cfg.CollectExclusions {
			ex := exclusionFor(item, classify.Explain(basic.Formats, p.cfg.Media, p.cfg.Policy))
			coll.Exclusions = append(coll.Exclusions, ex)
			p.events.LogExclusion(derefInt(ex.ReleaseID), ex.ArtistDisplay, ex.Title, ex.Reason)
		}
		return
	}

	row, ok := BuildRow(item, p.cfg.SortKeys)
	if !ok {
		return
	}
	coll.Rows = append(coll.Rows, row)
	coll.Stats.Accepted++
}

// FetchPrices fills row pricing, cache first. Each distinct release is looked up
// at most once and the cache is persisted when enrichment ends, including after
// an aborted pass. A release the marketplace does not know is skipped; any other
// failure aborts the remaining lookups.
func (p *Pipeline) FetchPrices(ctx context.Context, rows []Row) (PriceSummary, error) {
	currency := p.cfg.currency()
	var summary PriceSummary

	positions := make(map[int][]int)
	var order []int
	for i := range rows {
		id := rows[i].ReleaseID
		if id == nil {
			continue
		}
		if _, seen := positions[*id]; !seen {
			order = append(order, *id)
		}
		positions[*id] = append(positions[*id], i)
	}
	summary.Requested = len(order)

	apply := func(id int, pricing Pricing) {
		for _, i := range positions[id] {
			rows[i].Pricing = pricing
		}
	}

	toFetch := order
	if p.cache != nil {
		toFetch = nil
		for _, id := range order {
			price, count, stale := p.cache.Get(id, currency)
			if stale {
				toFetch = append(toFetch, id)
				continue
			}
			apply(id, Pricing{LowestPrice: price, NumForSale: count, Currency: currency})
			summary.FromCache++
		}
	}

	if len(toFetch) == 0 {
		p.transition(StatePriceEnriching, fmt.Sprintf("All %d prices loaded from cache", summary.FromCache))
		return summary, nil
	}

	p.transition(StatePriceEnriching, fmt.Sprintf("Fetching %d prices (%s), %d loaded from cache",
		len(toFetch), currency, summary.FromCache))
	if p.cache != nil {
		defer p.persistCache()
	}

	for n, id := range toFetch {
		if err := ctx.Err(); err != nil {
			summary.Remaining = len(toFetch) - n
			return summary, &StageError{State: StatePriceEnriching, Err: err}
		}

		first := rows[positions[id][0]]
		p.transition(StatePriceEnriching, fmt.Sprintf("[%d/%d] %s", n+1, len(toFetch),
			util.Truncate(first.ArtistDisplay+" - "+first.Title, 40)))

		price, err := p.catalog.MarketplaceStats(ctx, id, currency)
		if err != nil {
			p.events.LogPrice(id, currency, nil, nil, false, err)
			var apiErr *discogs.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				util.WarnLog("No marketplace data for release %d, skipping", id)
				summary.Skipped++
				p.tickPrice(n+1, len(toFetch))
				continue
			}
			summary.Remaining = len(toFetch) - n
			util.WarnLog("Price lookup aborted after %d of %d: %v", n, len(toFetch), err)
			return summary, &StageError{State: StatePriceEnriching, Err: err}
		}

		if p.cache != nil {
			p.cache.Set(id, currency, price.LowestPrice, price.NumForSale)
		}
		apply(id, Pricing{LowestPrice: price.LowestPrice, NumForSale: price.NumForSale, Currency: price.Currency})
		p.events.LogPrice(id, price.Currency, price.LowestPrice, price.NumForSale, false, nil)
		summary.Fetched++
		p.tickPrice(n+1, len(toFetch))
	}

	p.transition(StatePriceEnriching, "Price fetch complete")
	return summary, nil
}

func (p *Pipeline) tickPrice(done, total int) {
	if p.priceProgress != nil {
		p.priceProgress(done, total)
	}
}

func (p *Pipeline) persistCache() {
	if err := p.cache.Persist(); err != nil {
		util.WarnLog("Failed to save price cache: %v", err)
	}
}

// Build runs every stage. Authentication, pagination failures and an empty
// result end the run in StateFailed; price failures are kept in Result.PriceError
// and the rows are still sorted and returned.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	res := &Result{StartedAt: p.now()}
	finish := func(state State, message string, err error) (*Result, error) {
		res.State = state
		res.Message = message
		res.FinishedAt = p.now()
		return res, err
	}

	username, err := p.Authenticate(ctx)
	if err != nil {
		return finish(StateFailed, err.Error(), err)
	}
	res.Username = username

	coll, err := p.Collect(ctx, username)
	if err != nil {
		return finish(StateFailed, err.Error(), err)
	}
	res.Exclusions = coll.Exclusions
	res.Stats = coll.Stats

	if len(coll.Rows) == 0 {
		err := p.fail(StateClassifying, fmt.Errorf("%w (media %s, %d scanned)", ErrNoMatches, p.cfg.Media, coll.Stats.Scanned))
		return finish(StateFailed, err.Error(), err)
	}

	if p.cfg.NeedsPrices() {
		res.Prices, res.PriceError = p.FetchPrices(ctx, coll.Rows)
	}

	p.transition(StateSorting, fmt.Sprintf("Sorting %d items by %s", len(coll.Rows), p.cfg.SortBy))
	res.Rows = Sort(coll.Rows, p.cfg.SortBy, p.cfg.Various)

	message := fmt.Sprintf("%d items on the shelf", len(res.Rows))
	if res.PriceError != nil {
		message += " (prices incomplete)"
	}
	p.transition(StateDone, message)
	return finish(StateDone, message, nil)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
