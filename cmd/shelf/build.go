package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/franz/vinyl-shelf/internal/collection"
	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/store"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Fetch the collection and print it in shelf order",
	Long: `Fetch the Discogs collection of the token owner, keep the releases of the
requested media, build sort keys and print them in shelf order.

Stages:
1. Authenticate: resolve the account behind the token
2. Paginate: stream every collection page
3. Classify: keep LPs, 7" singles or CDs
4. Prices (optional): marketplace lookups through the local price cache
5. Sort: artist, title, year or price

The result is stored in the build history database. Use 'shelf show' to
list it again and 'shelf report' to audit what was excluded.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd.Flags())
	},
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd.Flags())

	// Output-only flags
	buildCmd.Flags().Bool("dividers", false, "insert '=== A ===' headers between letters")
	buildCmd.Flags().Bool("show-country", false, "append the release country")
	buildCmd.Flags().Bool("json", false, "print the result as JSON")
	buildCmd.Flags().Bool("report-filters", false, "list every excluded release with its reason")
	buildCmd.Flags().Bool("debug-stats", false, "print the vinyl format breakdown")
}

// addBuildFlags registers the pipeline flags shared by build and watch
func addBuildFlags(flags *pflag.FlagSet) {
	flags.String("media", "lp", "media to collect: lp, 45 or cd")
	flags.Bool("lp-strict", false, "LPs need explicit 33 RPM evidence")
	flags.Bool("lp-probable-33", false, "accept LPs unless they are marked 45 or 78 RPM")
	flags.Int("per-page", discogs.MaxPerPage, "collection page size (1-100)")
	flags.Int("max-pages", 0, "stop after this many pages (0 = all)")
	flags.String("sort-by", "artist", "artist, title, year, price_asc or price_desc")
	flags.String("various-policy", "normal", "file compilations: normal, last or title")
	flags.String("articles-extra", "", "extra leading articles to ignore, comma separated")
	flags.Bool("last-name-first", false, "sort two-word personal names by last name")
	flags.Bool("lnf-allow-3", false, "also flip 'First M. Last' and 'First van Last'")
	flags.String("lnf-exclude", "", "artists never flipped, semicolon separated")
	flags.Bool("lnf-safe-bands", false, "skip names that look like bands")
	flags.Bool("prices", false, "fetch marketplace prices even when not sorting by price")
	flags.String("currency", "USD", "marketplace currency")
	flags.Int("requests-per-minute", 0, "pace API requests (0 = only the rate-limit courtesy pause)")
}

// bindFlags binds the running command's flags so that config and environment
// values fill in whatever was not set on the command line
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}

// outputOptions controls how a finished build is printed
type outputOptions struct {
	JSON          bool
	Dividers      bool
	ShowCountry   bool
	ReportFilters bool
	DebugStats    bool
}

func outputOptionsFromConfig() outputOptions {
	return outputOptions{
		JSON:          viper.GetBool("json"),
		Dividers:      viper.GetBool("dividers"),
		ShowCountry:   viper.GetBool("show-country"),
		ReportFilters: viper.GetBool("report-filters"),
		DebugStats:    viper.GetBool("debug-stats"),
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := pipelineConfig()
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = buildOnce(ctx, client, db, cfg, outputOptionsFromConfig(), cmd.OutOrStdout())
	return err
}

// buildOnce runs one pipeline build under the cache lock, stores it and prints it
func buildOnce(ctx context.Context, catalog collection.Catalog, db *store.Store, cfg collection.Config, out outputOptions, w io.Writer) (*collection.Result, error) {
	cache := openCache()
	unlock, err := cache.TryLock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := newEventLogger()
	defer logger.Close()

	progress := newBuildProgress()
	pipeline := collection.New(catalog, cache, cfg,
		collection.WithProgress(progress.onState),
		collection.WithPriceProgress(progress.onPrice),
		collection.WithEvents(logger),
	)

	util.InfoLog("=== Building shelf (%s, sorted by %s) ===", cfg.Media, cfg.SortBy)
	res, buildErr := pipeline.Build(ctx)
	progress.finish()

	runID := store.NewRunID()
	run := runRecord(runID, cfg, res, logger.Path())
	if err := db.SaveRun(run, toStoreRows(res.Rows), toStoreExclusions(res.Exclusions)); err != nil {
		util.WarnLog("Failed to store build: %v", err)
	}
	logger.LogRun(runID, res.Username, res.State.String(), len(res.Rows), res.FinishedAt.Sub(res.StartedAt))

	if buildErr != nil {
		return res, buildErr
	}

	if res.PriceError != nil {
		util.WarnLog("Prices incomplete: %v", res.PriceError)
		if res.Prices.Remaining > 0 {
			util.WarnLog("  %d lookups not attempted; rerun to continue from the cache", res.Prices.Remaining)
		}
	}

	if out.JSON {
		if err := writeJSON(w, runID, cfg, res, out.ReportFilters); err != nil {
			return res, err
		}
	} else {
		writeText(w, cfg, res, out)
	}

	util.SuccessLog("%d items on the shelf (run %s)", len(res.Rows), shortID(runID))
	return res, nil
}

// buildProgress reports pipeline transitions on stderr and drives the price bar
type buildProgress struct {
	bar *progressbar.ProgressBar
	tty bool
}

func newBuildProgress() *buildProgress {
	return &buildProgress{tty: util.IsTerminal(os.Stderr.Fd()) && !util.IsQuiet()}
}

func (p *buildProgress) onState(state collection.State, message string) {
	switch {
	case state == collection.StateFailed:
		util.ErrorLog("%s", message)
	case state == collection.StatePriceEnriching && strings.HasPrefix(message, "["):
		// per-release lookups; the bar shows them on a terminal
		if p.tty {
			util.DebugLog("%s", message)
		} else {
			util.InfoLog("  %s", message)
		}
	default:
		util.InfoLog("%s", message)
	}
}

func (p *buildProgress) onPrice(done, total int) {
	if !p.tty {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Prices"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("releases"),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Set(done)
}

func (p *buildProgress) finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

func writeText(w io.Writer, cfg collection.Config, res *collection.Result, out outputOptions) {
	if out.DebugStats {
		s := res.Stats
		util.InfoLog("Scanned %d: %d vinyl, %d vinyl LP, %d vinyl LP with 33 RPM marking",
			s.Scanned, s.Vinyl, s.VinylLP, s.VinylLP33)
		util.InfoLog("Accepted %d, excluded %d, malformed %d", s.Accepted, s.Excluded, s.Malformed)
		if cfg.NeedsPrices() {
			p := res.Prices
			util.InfoLog("Prices: %d requested, %d cached, %d fetched, %d skipped", p.Requested, p.FromCache, p.Fetched, p.Skipped)
		}
	}

	if out.ReportFilters && len(res.Exclusions) > 0 {
		util.InfoLog("Excluded %d releases:", len(res.Exclusions))
		for _, e := range res.Exclusions {
			util.InfoLog("  - %s - %s [%s]: %s", e.ArtistDisplay, e.Title, e.FormatDescription, e.Reason)
		}
	}

	opts := collection.LineOptions{ShowCountry: out.ShowCountry, ShowPrice: cfg.NeedsPrices()}
	for _, line := range collection.Lines(res.Rows, out.Dividers, opts) {
		fmt.Fprintln(w, line)
	}
}

type jsonResult struct {
	RunID      string                  `json:"run_id"`
	Username   string                  `json:"username"`
	Media      string                  `json:"media"`
	SortBy     string                  `json:"sort_by"`
	Currency   string                  `json:"currency,omitempty"`
	Stats      collection.Stats        `json:"stats"`
	Prices     *collection.PriceSummary `json:"prices,omitempty"`
	PriceError string                  `json:"price_error,omitempty"`
	Rows       []collection.Row        `json:"rows"`
	Exclusions []collection.Exclusion  `json:"exclusions,omitempty"`
}

func writeJSON(w io.Writer, runID string, cfg collection.Config, res *collection.Result, withExclusions bool) error {
	doc := jsonResult{
		RunID:    runID,
		Username: res.Username,
		Media:    string(cfg.Media),
		SortBy:   string(cfg.SortBy),
		Stats:    res.Stats,
		Rows:     res.Rows,
	}
	if doc.Rows == nil {
		doc.Rows = []collection.Row{}
	}
	if cfg.NeedsPrices() {
		doc.Currency = cfg.Currency
		doc.Prices = &res.Prices
	}
	if res.PriceError != nil {
		doc.PriceError = res.PriceError.Error()
	}
	if withExclusions {
		doc.Exclusions = res.Exclusions
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
