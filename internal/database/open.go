package database

import (
	"context"
	"fmt"
	"log/slog"

	"appraiser/internal/config"
)

// Open returns the repository selected by cfg.Driver, migrated and ready.
// The returned func releases its resources.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Repository, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory storage; data is lost on exit")
		return NewMemoryRepository(), func() {}, nil
	case "postgres":
		repo, err := Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("Connected to PostgreSQL", "host", cfg.Host, "dbname", cfg.DBName)
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}
