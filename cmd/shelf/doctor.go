package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/vinyl-shelf/internal/discogs"
	"github.com/franz/vinyl-shelf/internal/pricecache"
	"github.com/franz/vinyl-shelf/internal/store"
	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure shelf can operate correctly.

This command checks:
- SQLite version compatibility
- Database accessibility and integrity
- Discogs token presence
- API reachability and the account behind the token (skipped with --offline)
- Price cache readability
- Artifacts directory permissions

Use this command to troubleshoot issues before running a build.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().Bool("offline", false, "skip the API check")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	offline, _ := cmd.Flags().GetBool("offline")

	util.InfoLog("=== Shelf Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{
		checkSQLite(),
		checkDatabase(viper.GetString("db")),
		checkToken(resolveToken()),
	}

	if !offline {
		if client, err := newClient(); err == nil {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			results = append(results, checkAPI(ctx, client))
			cancel()
		}
	}

	results = append(results,
		checkPriceCache(openCache()),
		checkArtifactsDirectory(GetConfigString("artifacts", "artifacts")),
	)

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before building.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! Ready to build.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first build)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	runs, _ := db.ListRuns(0)
	size := util.FormatBytes(info.Size())

	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s (%s, %d builds)", dbPath, size, len(runs)),
	}
}

// checkToken only verifies that a token is configured; checkAPI validates it
func checkToken(token string) checkResult {
	if token == "" {
		return checkResult{
			name:    "Token",
			error:   true,
			message: util.ErrNoToken.Error(),
		}
	}
	return checkResult{
		name:    "Token",
		message: fmt.Sprintf("configured (%d characters)", len(token)),
	}
}

// identityProber is the part of the API client doctor and watch need
type identityProber interface {
	Identity(ctx context.Context) (*discogs.Identity, error)
	CollectionSize(ctx context.Context, username string) (int, error)
}

// checkAPI resolves the account behind the token and counts its collection
func checkAPI(ctx context.Context, client identityProber) checkResult {
	identity, err := client.Identity(ctx)
	if err != nil {
		var apiErr *discogs.APIError
		msg := fmt.Sprintf("identity lookup failed: %v", err)
		if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
			msg = "token rejected (401 Unauthorized)"
		}
		return checkResult{
			name:    "Discogs API",
			error:   true,
			message: msg,
		}
	}

	size, err := client.CollectionSize(ctx, identity.Username)
	if err != nil {
		return checkResult{
			name:    "Discogs API",
			warning: true,
			message: fmt.Sprintf("authenticated as %s, but the collection is not readable: %v", identity.Username, err),
		}
	}

	return checkResult{
		name:    "Discogs API",
		message: fmt.Sprintf("authenticated as %s (%s items)", identity.Username, util.FormatCount(size)),
	}
}

// checkPriceCache verifies the cache file parses; a missing file is fine
func checkPriceCache(cache *pricecache.Cache) checkResult {
	if err := cache.Load(); err != nil {
		return checkResult{
			name:    "Price cache",
			warning: true,
			message: fmt.Sprintf("%s unreadable, it will be rebuilt: %v", cache.Path(), err),
		}
	}

	s := cache.Stats()
	if s.Releases == 0 {
		return checkResult{
			name:    "Price cache",
			message: fmt.Sprintf("%s (empty)", cache.Path()),
		}
	}

	result := checkResult{
		name:    "Price cache",
		message: fmt.Sprintf("%s (%d prices for %s, %d stale)", cache.Path(), s.Prices, s.Username, s.Stale),
	}
	if s.Prices > 0 && s.Stale == s.Prices {
		result.warning = true
		result.message += ", every price will be fetched again"
	}
	return result
}

// checkArtifactsDirectory verifies event logs and reports can be written
func checkArtifactsDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Artifacts directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Artifacts directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".shelf_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Artifacts directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Artifacts directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}
