package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/vinyl-shelf/internal/classify"
	"github.com/franz/vinyl-shelf/internal/collection"
	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/pricecache"
	"github.com/franz/vinyl-shelf/internal/report"
	"github.com/franz/vinyl-shelf/internal/sortkey"
	"github.com/franz/vinyl-shelf/internal/store"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (SHELF_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// resolveToken prefers --token / SHELF_TOKEN / config, then DISCOGS_TOKEN
func resolveToken() string {
	if token := strings.TrimSpace(viper.GetString("token")); token != "" {
		return token
	}
	return strings.TrimSpace(os.Getenv("DISCOGS_TOKEN"))
}

// newClient builds the API client from the resolved token and pacing settings
func newClient() (*discogs.Client, error) {
	return discogs.New(resolveToken(),
		discogs.WithUserAgent(viper.GetString("user-agent")),
		discogs.WithRateLimit(viper.GetInt("requests-per-minute")),
	)
}

func openStore() (*store.Store, error) {
	dbPath := viper.GetString("db")
	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{
		NetworkOptimized: viper.GetBool("db-network"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	return db, nil
}

func openCache() *pricecache.Cache {
	return pricecache.New(GetConfigString("cache", pricecache.DefaultFileName))
}

// newEventLogger creates the per-run JSONL log, falling back to a no-op logger
func newEventLogger() *report.EventLogger {
	logLevel := report.LevelInfo
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger(GetConfigString("artifacts", "artifacts"), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.DebugLog("Event log: %s", logger.Path())
	return logger
}

// pipelineConfig assembles a build configuration from flags, environment and config file
func pipelineConfig() (collection.Config, error) {
	cfg := collection.DefaultConfig()

	media, err := classify.ParseMedia(viper.GetString("media"))
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	cfg.Media = media
	cfg.Policy = classify.PolicyFromFlags(viper.GetBool("lp-strict"), viper.GetBool("lp-probable-33"))
	cfg.CollectExclusions = true

	maxPages := viper.GetInt("max-pages")
	if maxPages < 0 {
		return cfg, fmt.Errorf("%w: --max-pages must not be negative", util.ErrInvalidConfig)
	}
	cfg.MaxPages = maxPages
	cfg.PerPage = discogs.ClampPerPage(GetConfigInt("per-page", discogs.MaxPerPage))

	if cfg.SortBy, err = collection.ParseSortBy(viper.GetString("sort-by")); err != nil {
		return cfg, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	if cfg.Various, err = collection.ParseVariousPolicy(viper.GetString("various-policy")); err != nil {
		return cfg, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}

	cfg.SortKeys = sortkey.Options{
		ExtraArticles:  sortkey.ParseArticles(viper.GetString("articles-extra")),
		LastNameFirst:  viper.GetBool("last-name-first"),
		AllowThreeWord: viper.GetBool("lnf-allow-3"),
		Exclude:        sortkey.ParseExclude(viper.GetString("lnf-exclude")),
		SafeBands:      viper.GetBool("lnf-safe-bands"),
	}

	cfg.Prices = viper.GetBool("prices")
	cfg.Currency = strings.ToUpper(GetConfigString("currency", "USD"))
	return cfg, nil
}
