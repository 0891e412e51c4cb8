package database

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraiser/internal/config"
)

func TestOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, closeFn, err := Open(context.Background(), config.DatabaseConfig{Driver: "memory"}, logger)
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &MemoryRepository{}, repo)

	_, _, err = Open(context.Background(), config.DatabaseConfig{Driver: "sqlite"}, logger)
	assert.Error(t, err)
}
