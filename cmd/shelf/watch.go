package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever the collection size changes",
	Long: `Build once, then poll the collection size every --interval and rebuild
when items were added or removed. Takes the same pipeline flags as build.

Stop with Ctrl-C.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindFlags(cmd.Flags())
	},
	RunE: runWatch,
}

// minWatchInterval keeps polling well inside the API rate limit
const minWatchInterval = time.Minute

func init() {
	rootCmd.AddCommand(watchCmd)
	addBuildFlags(watchCmd.Flags())

	watchCmd.Flags().Duration("interval", 15*time.Minute, "time between collection size checks")
	watchCmd.Flags().Bool("dividers", false, "insert '=== A ===' headers between letters")
	watchCmd.Flags().Bool("show-country", false, "append the release country")
}

func runWatch(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval < minWatchInterval {
		return fmt.Errorf("%w: --interval must be at least %s", util.ErrInvalidConfig, minWatchInterval)
	}

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

	util.InfoLog("Checking the collection every %s", interval)

	out := outputOptionsFromConfig()
	rebuild := func(ctx context.Context) error {
		_, err := buildOnce(ctx, client, db, cfg, out, cmd.OutOrStdout())
		return err
	}

	err = watchLoop(ctx, interval, sizeProbe(client), rebuild)
	if errors.Is(err, context.Canceled) {
		util.InfoLog("Stopped watching")
		return nil
	}
	return err
}

// sizeProbe reports the collection size, resolving the account on first success.
// A failed lookup surfaces as a probe error and is tried again on the next tick.
func sizeProbe(api identityProber) func(context.Context) (int, error) {
	var username string
	return func(ctx context.Context) (int, error) {
		if username == "" {
			identity, err := api.Identity(ctx)
			if err != nil {
				return 0, fmt.Errorf("failed to resolve account: %w", err)
			}
			username = identity.Username
			util.InfoLog("Watching the collection of %s", username)
		}
		return api.CollectionSize(ctx, username)
	}
}

// watchLoop builds once, then rebuilds whenever probe reports a different size.
// Probe and build failures are logged and retried on the next tick; only
// context cancellation ends the loop.
func watchLoop(ctx context.Context, interval time.Duration, probe func(context.Context) (int, error), rebuild func(context.Context) error) error {
	lastSize := -1
	check := func() {
		size, err := probe(ctx)
		if err != nil {
			util.WarnLog("Collection size check failed: %v", err)
			return
		}
		if size == lastSize {
			util.DebugLog("Collection unchanged (%d items)", size)
			return
		}
		if lastSize >= 0 {
			util.InfoLog("Collection changed: %d -> %d items", lastSize, size)
		}
		if err := rebuild(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			util.ErrorLog("Build failed: %v", err)
			return
		}
		lastSize = size
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			check()
		}
	}
}
