// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command bookindex is the operational tool for the catalog search index:
// offline rebuilds from a catalog export and health statistics.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/bookindex/internal/cache"
	"github.com/jeranaias/bookindex/internal/catalog"
	"github.com/jeranaias/bookindex/internal/config"
	"github.com/jeranaias/bookindex/internal/index"
	"github.com/jeranaias/bookindex/internal/rebuild"
)

var (
	flagConfig  string
	flagVerbose bool
	flagFrom    string
)

var rootCmd = &cobra.Command{
	Use:   "bookindex",
	Short: "Catalog search index maintenance",
	Long: `Maintenance tool for the book catalog's search index and cache.

The index is an embedded SQLite FTS5 database; the cache is Redis. Both are
derived state: everything here can be reconstructed from the catalog.

Examples:
  bookindex rebuild --from records.json
  bookindex stats --config /etc/bookindex/config.toml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from a catalog export",
	Long: `Rebuild the search index from scratch.

Reads a JSON export of the catalog (an array of records) and replaces the
index contents atomically; readers keep seeing the old index until the
swap. All cached search results are invalidated afterwards.`,
	RunE: runRebuild,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index and cache statistics",
	RunE:  runStats,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop every cached record and search result",
	Long: `Flush the cache completely.

Entries repopulate on demand from the index and the catalog, so this is
safe at any time; the only cost is a cold cache.`,
	RunE: runClearCache,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	rebuildCmd.Flags().StringVar(&flagFrom, "from", "", "catalog export JSON file (required)")
	rebuildCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(rebuildCmd, statsCmd, clearCacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openServices builds the index and cache from configuration.
func openServices(cfg *config.Config) (*index.Index, *cache.Cache, error) {
	idxCfg := index.DefaultConfig(cfg.Index.Path)
	idxCfg.Tokenizer = cfg.Index.Tokenizer
	idxCfg.BusyTimeout = cfg.BusyTimeout()
	idxCfg.RebuildBatchSize = cfg.Rebuild.BatchSize

	idx, err := index.Open(idxCfg)
	if err != nil {
		return nil, nil, err
	}

	cacheCfg := cache.DefaultConfig(cfg.Cache.Addr)
	cacheCfg.Password = cfg.Cache.Password
	cacheCfg.DB = cfg.Cache.DB
	cacheCfg.Enabled = cfg.Cache.Enabled
	cacheCfg.DefaultTTL = cfg.CacheTTL()
	cacheCfg.OpTimeout = cfg.OpTimeout()

	return idx, cache.New(cacheCfg), nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	store, err := catalog.OpenFileStore(flagFrom)
	if err != nil {
		return err
	}

	idx, c, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()
	defer c.Close()

	rep, err := rebuild.New(store, idx, c, slog.Default()).Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("rebuild %s finished in %s\n", rep.RunID, rep.Duration.Round(time.Millisecond))
	fmt.Printf("  records: %d  indexed: %d  skipped: %d\n",
		rep.TotalRecords, rep.Indexed, rep.Skipped)
	for _, e := range rep.Errors {
		fmt.Printf("  skipped %q: %s\n", e.ID, e.Reason)
	}
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	cacheCfg := cache.DefaultConfig(cfg.Cache.Addr)
	cacheCfg.Password = cfg.Cache.Password
	cacheCfg.DB = cfg.Cache.DB
	cacheCfg.Enabled = cfg.Cache.Enabled
	cacheCfg.OpTimeout = cfg.OpTimeout()

	c := cache.New(cacheCfg)
	defer c.Close()

	c.Clear(cmd.Context())
	fmt.Println("cache cleared")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	idx, c, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()
	defer c.Close()

	idxStats, err := idx.Stats(cmd.Context())
	if err != nil {
		return err
	}
	cacheStats := c.Stats(cmd.Context())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "index entries\t%d\n", idxStats.EntryCount)
	fmt.Fprintf(w, "index size\t%d bytes\n", idxStats.SizeBytes)
	if idxStats.LastRebuild.IsZero() {
		fmt.Fprintf(w, "last rebuild\tnever\n")
	} else {
		fmt.Fprintf(w, "last rebuild\t%s\n", idxStats.LastRebuild.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "cache enabled\t%v\n", cacheStats.Enabled)
	fmt.Fprintf(w, "cache reachable\t%v\n", cacheStats.Reachable)
	fmt.Fprintf(w, "cache keys\t%d\n", cacheStats.KeyCount)
	fmt.Fprintf(w, "cache memory\t%d bytes\n", cacheStats.MemoryBytes)
	fmt.Fprintf(w, "cache hits/misses\t%d/%d\n", cacheStats.HitCount, cacheStats.MissCount)
	return w.Flush()
}
