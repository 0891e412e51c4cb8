package feed

import (
	"errors"
	"fmt"
	"log/slog"

	"appraiser/internal/config"
)

// ErrDisabled is returned by NewClient when the configured kind is "none".
var ErrDisabled = errors.New("feed disabled")

// NewClient creates a post source based on the feed configuration.
func NewClient(cfg config.FeedConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Kind {
	case "websocket":
		return NewWebSocketFeed(cfg.URL, cfg.Subscribe, logger), nil
	case "file":
		return NewFileFeed(cfg.Path, logger), nil
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown feed kind: %s", cfg.Kind)
	}
}
