// Package feed delivers free-text trade posts from external sources.
package feed

import (
	"context"

	"appraiser/internal/model"
)

// Client defines the standard interface for all post sources.
type Client interface {
	Name() string
	// Stream sends posts to out until the source is exhausted or ctx is
	// cancelled. Cancellation is not an error.
	Stream(ctx context.Context, out chan<- model.Post) error
}
