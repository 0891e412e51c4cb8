package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"

	"appraiser/internal/config"
	"appraiser/internal/database"
	"appraiser/internal/extract"
	"appraiser/internal/feed"
	"appraiser/internal/httpapi"
	"appraiser/internal/ingest"
	"appraiser/internal/observability"
	"appraiser/internal/ratelimit"
	"appraiser/internal/valuation"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Cannot load config", "error", err)
		os.Exit(1)
	}

	if err := runServer(cfg, logger); err != nil {
		logger.Error("Appraiser stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Appraiser stopped")
}

func runServer(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	repo, closeRepo, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("appraiser")
	}

	engine := valuation.NewEngine(logger, repo, metrics)

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	// Periodic recompute
	{
		rctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return engine.RunPeriodic(rctx, cfg.Recompute.Interval, cfg.Recompute.OnStart)
		}, func(error) {
			cancel()
		})
	}

	// HTTP API
	{
		opts := httpapi.Options{ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout}
		if metrics != nil {
			opts.MetricsPath = cfg.Metrics.Path
			opts.MetricsHandler = metrics.Handler()
		}
		srv := httpapi.New(cfg.Server.Addr, engine, logger, opts)
		g.Add(func() error {
			if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		})
	}

	// Feed ingestion
	source, err := feed.NewClient(cfg.Feed, logger)
	switch {
	case errors.Is(err, feed.ErrDisabled):
		logger.Info("No feed configured; ingestion disabled")
	case err != nil:
		return err
	default:
		limiter, err := ratelimit.New(cfg.Limiter.MaxCalls, cfg.Limiter.TimeWindow,
			ratelimit.WithLogger(logger),
			ratelimit.WithWaitObserver(metrics.ObserveLimiterWait),
		)
		if err != nil {
			return err
		}
		runner := ingest.NewRunner(logger, limiter, extract.NewClientFromConfig(cfg.Extractor, logger), repo, metrics)

		ictx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			_, err := runner.RunFeed(ictx, source)
			if err != nil {
				return err
			}
			// A finite feed is done; keep serving until interrupted.
			<-ictx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}

	logger.Info("Appraiser starting",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Driver,
		"feed", cfg.Feed.Kind,
		"recomputeInterval", cfg.Recompute.Interval,
	)

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info("Received signal, shutting down", "signal", sigErr.Signal.String())
		return nil
	}
	return err
}
