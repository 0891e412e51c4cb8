package database

import (
	"context"
	"errors"

	"appraiser/internal/model"
)

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDatabaseNotFound is returned when the database or its schema is missing.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// TradeLedger is the append-only store of raw trade observations.
type TradeLedger interface {
	// AppendTrade records one observation exactly as extracted.
	AppendTrade(ctx context.Context, trade model.TradeObservation) error

	// ListTrades returns every observation, oldest first.
	ListTrades(ctx context.Context) ([]model.TradeObservation, error)

	// DeleteTradesByType removes every observation whose normalized offered or
	// requested type equals itemType. Returns the number of removed rows.
	DeleteTradesByType(ctx context.Context, itemType string) (int64, error)
}

// RatioStore holds the latest derived ratio for each directed pair.
type RatioStore interface {
	// UpsertRatios inserts or updates all entries atomically: either every
	// entry is written or the store is left unchanged.
	UpsertRatios(ctx context.Context, entries []model.RatioEntry) error

	// ListRatios returns every stored entry.
	ListRatios(ctx context.Context) ([]model.RatioEntry, error)

	// DeleteRatio removes a single directed entry. Returns ErrNotFound if absent.
	DeleteRatio(ctx context.Context, typeA, typeB string) error
}

// Repository defines the standard interface for database operations.
type Repository interface {
	TradeLedger
	RatioStore

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error
}
