package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"appraiser/internal/config"
	"appraiser/internal/database"
	"appraiser/internal/extract"
	"appraiser/internal/feed"
	"appraiser/internal/ingest"
	"appraiser/internal/ratelimit"
	"appraiser/internal/valuation"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	file := flag.String("file", "", "file with one post per line (defaults to feed.path)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Cannot load config", "error", err)
		os.Exit(1)
	}

	path := *file
	if path == "" {
		path = cfg.Feed.Path
	}
	if path == "" {
		logger.Error("No input file; pass -file or set feed.path")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ingestFile(ctx, cfg, path, logger); err != nil {
		logger.Error("Ingestion failed", "error", err)
		os.Exit(1)
	}
}

func ingestFile(ctx context.Context, cfg config.Config, path string, logger *slog.Logger) error {
	repo, closeRepo, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	limiter, err := ratelimit.New(cfg.Limiter.MaxCalls, cfg.Limiter.TimeWindow, ratelimit.WithLogger(logger))
	if err != nil {
		return err
	}

	runner := ingest.NewRunner(logger, limiter, extract.NewClientFromConfig(cfg.Extractor, logger), repo, nil)
	stats, err := runner.RunFeed(ctx, feed.NewFileFeed(path, logger))
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d posts: %d recorded, %d failed\n", stats.Received, stats.Extracted, stats.Failed)

	engine := valuation.NewEngine(logger, repo, nil)
	if _, err := engine.Recompute(ctx); err != nil {
		return err
	}

	rels, err := engine.Relationships(ctx)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		fmt.Println("No relationships recorded yet.")
		return nil
	}
	for _, rel := range rels {
		if rel.AverageRatio == nil {
			fmt.Printf("1 %s has no defined value in %s (based on %d trades)\n", rel.TypeA, rel.TypeB, rel.TradeCount)
			continue
		}
		fmt.Printf("1 %s is worth %.3f %s (based on %d trades)\n", rel.TypeA, *rel.AverageRatio, rel.TypeB, rel.TradeCount)
	}
	return nil
}
