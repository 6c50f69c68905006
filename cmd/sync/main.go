// Command sync refreshes the on-disk metadata cache from the remote
// SDMX registry and reports the resulting watermark.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sdmxcli/internal/config"
	"sdmxcli/internal/fetcher"
	"sdmxcli/internal/infrastructure"
	"sdmxcli/internal/metadata"
)

func main() {
	force := flag.Bool("force", false, "bypass the cache TTL and sync unconditionally")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve paths: %v\n", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := fetcher.New(fetcher.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryBackoff: cfg.Fetch.RetryBackoff,
		RateLimit:    cfg.Fetch.RateLimit,
		RateBurst:    cfg.Fetch.RateBurst,
		Logger:       logger,
	})

	store := metadata.NewStore(paths.CacheDir)
	source := metadata.NewRemoteSource(client, cfg.API.BaseURL, cfg.API.DefaultAgency)
	syncer := metadata.NewSyncer(store, source, metadata.SyncerOptions{
		TTL:            cfg.Cache.TTL,
		MaxSyncHistory: cfg.Cache.MaxSyncHistory,
		SourceURL:      cfg.API.BaseURL,
		Logger:         logger,
	})

	snap, err := syncer.Run(ctx, *force)
	if err != nil {
		logger.Error("sync failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", err)
		os.Exit(1)
	}

	wm := snap.Watermark
	fmt.Printf("Synced %d dataflows, %d indicators (parser=%s, at %s)\n",
		wm.Dataflows, wm.Indicators, wm.Parser, wm.SyncedAt.Format("2006-01-02 15:04:05"))
	for tier, count := range wm.TierCounts {
		fmt.Printf("  tier %s: %d\n", tier, count)
	}
}
