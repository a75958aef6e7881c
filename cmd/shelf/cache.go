package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/franz/vinyl-shelf/internal/pricecache"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local price cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show price cache contents",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached prices",
	Long: `Drop cached prices so the next build fetches them again.

With --currency only that currency is dropped; with --all the whole cache,
including the account it is bound to, is reset.`,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheClearCmd.Flags().String("currency", "", "only drop prices in this currency")
	cacheClearCmd.Flags().Bool("all", false, "reset the whole cache")
}

func loadCache() (*pricecache.Cache, error) {
	cache := openCache()
	if err := cache.Load(); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cache.Path(), err)
	}
	return cache, nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cache, err := loadCache()
	if err != nil {
		return err
	}
	s := cache.Stats()

	util.InfoLog("Price cache: %s", cache.Path())
	if s.Releases == 0 {
		util.InfoLog("Empty")
		return nil
	}

	rows := [][]string{
		{"Account", s.Username},
		{"Releases", util.FormatCount(s.Releases)},
		{"Prices", util.FormatCount(s.Prices)},
		{"Stale", util.FormatCount(s.Stale)},
		{"Not for sale", util.FormatCount(s.NotForSale)},
		{"Oldest", util.FormatAge(s.Oldest)},
		{"Newest", util.FormatAge(s.Newest)},
		{"Last full pass", util.FormatAge(s.LastFullFetch)},
	}
	for _, cur := range slices.Sorted(maps.Keys(s.ByCurrency)) {
		rows = append(rows, []string{"Prices in " + cur, strconv.Itoa(s.ByCurrency[cur])})
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"", ""}, rows, []columnAlignment{alignLeft, alignRight}, 0))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	currency, _ := cmd.Flags().GetString("currency")
	all, _ := cmd.Flags().GetBool("all")
	if currency == "" && !all {
		return fmt.Errorf("%w: pass --currency CODE or --all", util.ErrInvalidConfig)
	}

	cache := openCache()
	unlock, err := cache.TryLock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := cache.Load(); err != nil {
		util.WarnLog("Existing cache unreadable, resetting: %v", err)
	}

	if all {
		cache.Reset()
		util.SuccessLog("Price cache reset")
	} else {
		n := cache.Clear(currency)
		util.SuccessLog("Dropped %s prices for %d releases", currency, n)
	}
	return cache.Persist()
}
