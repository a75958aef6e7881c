package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/vinyl-shelf/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "shelf",
		Short: "Vinyl Shelf - order a Discogs collection the way it sits on the shelf",
		Long: `shelf reads a Discogs collection, keeps the releases of one physical
media (33 RPM LPs, 7" singles or CDs), builds shelf sort keys for them and
prints them in shelf order, optionally enriched with marketplace prices.

Every build is stored in a local database so it can be shown, audited and
compared later without calling the API again.`,
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/shelf.yaml)")
	rootCmd.PersistentFlags().String("db", "shelf-state.db", "build history database file")
	rootCmd.PersistentFlags().Bool("db-network", false, "tune the database for a network share")
	rootCmd.PersistentFlags().String("cache", ".discogs_collection_cache.json", "price cache file")
	rootCmd.PersistentFlags().String("token", "", "Discogs personal access token (or DISCOGS_TOKEN)")
	rootCmd.PersistentFlags().String("user-agent", "", "User-Agent sent to the API")
	rootCmd.PersistentFlags().String("artifacts", "artifacts", "directory for event logs and reports")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	for _, name := range []string{"db", "db-network", "cache", "token", "user-agent", "artifacts", "verbose", "quiet"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("shelf")
		viper.SetConfigType("yaml")
	}

	// SHELF_TOKEN, SHELF_SORT_BY, ...
	viper.SetEnvPrefix("SHELF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func setupLogging() {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
