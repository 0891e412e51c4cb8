// Package ingest turns a stream of posts into ledger trades.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"appraiser/internal/database"
	"appraiser/internal/extract"
	"appraiser/internal/feed"
	"appraiser/internal/model"
	"appraiser/internal/observability"
)

// Limiter gates calls to the extraction service.
type Limiter interface {
	Acquire()
}

// Stats counts what a run did with the posts it received.
type Stats struct {
	Received  int
	Extracted int
	Failed    int
}

// Runner extracts trades from posts and appends them to the ledger. Every
// extraction call is preceded by a limiter admission.
type Runner struct {
	logger    *slog.Logger
	limiter   Limiter
	extractor extract.Extractor
	ledger    database.TradeLedger
	metrics   *observability.Metrics
}

// NewRunner creates a new ingestion runner. metrics may be nil.
func NewRunner(logger *slog.Logger, limiter Limiter, extractor extract.Extractor, ledger database.TradeLedger, metrics *observability.Metrics) *Runner {
	return &Runner{
		logger:    logger,
		limiter:   limiter,
		extractor: extractor,
		ledger:    ledger,
		metrics:   metrics,
	}
}

// Handle processes one post. It reports whether a trade was recorded.
// Extraction failures are logged and skipped; ledger failures are returned.
func (r *Runner) Handle(ctx context.Context, post model.Post) (bool, error) {
	r.metrics.IncPosts()
	r.limiter.Acquire()

	obs, err := r.extractor.Extract(ctx, post.Text)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		result := "error"
		if errors.Is(err, extract.ErrUnparseable) {
			result = "unparseable"
		}
		r.metrics.ObserveExtraction(result)
		r.logger.Warn("Failed to analyze post", "source", post.Source, "text", post.Text, "error", err)
		return false, nil
	}
	r.metrics.ObserveExtraction("ok")

	if err := r.ledger.AppendTrade(ctx, obs); err != nil {
		return false, fmt.Errorf("append trade: %w", err)
	}
	r.logger.Info("Recorded trade",
		"id", obs.ID,
		"offeredQty", obs.OfferedQuantity,
		"offered", obs.OfferedType,
		"requestedQty", obs.RequestedQuantity,
		"requested", obs.RequestedType,
	)
	return true, nil
}

// Run consumes posts until the channel is closed or ctx ends.
func (r *Runner) Run(ctx context.Context, posts <-chan model.Post) (Stats, error) {
	var stats Stats
	for {
		select {
		case <-ctx.Done():
			return stats, nil
		case post, ok := <-posts:
			if !ok {
				return stats, nil
			}
			stats.Received++
			recorded, err := r.Handle(ctx, post)
			if err != nil {
				if ctx.Err() != nil {
					return stats, nil
				}
				return stats, err
			}
			if recorded {
				stats.Extracted++
			} else {
				stats.Failed++
			}
		}
	}
}

// RunFeed streams posts from client into Run and waits for both to finish.
// Run stops when the feed is exhausted.
func (r *Runner) RunFeed(ctx context.Context, client feed.Client) (Stats, error) {
	posts := make(chan model.Post, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(posts)
		if err := client.Stream(gctx, posts); err != nil {
			return fmt.Errorf("%s feed: %w", client.Name(), err)
		}
		return nil
	})

	var stats Stats
	g.Go(func() error {
		var err error
		stats, err = r.Run(gctx, posts)
		return err
	})

	err := g.Wait()
	r.logger.Info("Ingestion finished",
		"feed", client.Name(),
		"received", stats.Received,
		"extracted", stats.Extracted,
		"failed", stats.Failed,
	)
	return stats, err
}
