// Command server exposes the query pipeline and sync trigger over HTTP.
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
	"sdmxcli/internal/pipeline"
	transport "sdmxcli/internal/transport/http"
)

func main() {
	tracing := flag.Bool("tracing", false, "emit spans to stdout")
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

	shutdownTracing, err := infrastructure.InitTracing(ctx, *tracing)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	client := fetcher.New(fetcher.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryBackoff: cfg.Fetch.RetryBackoff,
		PageSize:     cfg.Fetch.PageSize,
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
	pl := pipeline.New(cfg, store, client, logger)

	server := transport.NewServer(cfg, pl, syncer, store, logger)
	if err := server.Start(ctx); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
