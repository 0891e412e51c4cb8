package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"appraiser/internal/config"
	"appraiser/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgreSQL error codes
const (
	pgErrUndefinedTable   = "42P01"
	pgErrInvalidCatalog   = "3D000"
	pgErrInvalidSchema    = "3F000"
	pgErrCannotConnectNow = "57P03"
)

// PostgresRepository implements Repository on a pgx connection pool.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Repository = (*PostgresRepository)(nil)

// Connect creates a connection pool from the database config and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*PostgresRepository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", classify(err))
	}

	return &PostgresRepository{Pool: pool}, nil
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

// Migrate applies the embedded SQL files in name order.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := r.Pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, classify(err))
		}
	}
	return nil
}

// AppendTrade records one observation exactly as extracted.
func (r *PostgresRepository) AppendTrade(ctx context.Context, trade model.TradeObservation) error {
	if trade.ID == uuid.Nil {
		return ErrInvalidInput
	}

	query := `
		INSERT INTO trade_observations (id, offered_quantity, offered_type, requested_quantity, requested_type, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.Pool.Exec(ctx, query,
		trade.ID, trade.OfferedQuantity, trade.OfferedType,
		trade.RequestedQuantity, trade.RequestedType, trade.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade observation: %w", classify(err))
	}
	return nil
}

// ListTrades returns every observation, oldest first.
func (r *PostgresRepository) ListTrades(ctx context.Context) ([]model.TradeObservation, error) {
	query := `
		SELECT id, offered_quantity, offered_type, requested_quantity, requested_type, observed_at
		FROM trade_observations
		ORDER BY observed_at ASC, id ASC
	`
	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query trade observations: %w", classify(err))
	}
	defer rows.Close()

	var trades []model.TradeObservation
	for rows.Next() {
		var t model.TradeObservation
		if err := rows.Scan(&t.ID, &t.OfferedQuantity, &t.OfferedType, &t.RequestedQuantity, &t.RequestedType, &t.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan trade observation: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade observations: %w", classify(err))
	}
	return trades, nil
}

// DeleteTradesByType removes observations mentioning itemType on either side.
// Types are compared after normalization, which is done here rather than in
// SQL so that non-ASCII types fold the same way as during recomputation.
func (r *PostgresRepository) DeleteTradesByType(ctx context.Context, itemType string) (int64, error) {
	target := model.NormalizeType(itemType)
	if target == "" {
		return 0, ErrInvalidInput
	}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id, offered_type, requested_type FROM trade_observations FOR UPDATE`)
	if err != nil {
		return 0, fmt.Errorf("query trade types: %w", classify(err))
	}

	var ids []uuid.UUID
	for rows.Next() {
		var (
			id                     uuid.UUID
			offeredType, requested string
		)
		if err := rows.Scan(&id, &offeredType, &requested); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan trade types: %w", err)
		}
		if model.NormalizeType(offeredType) == target || model.NormalizeType(requested) == target {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate trade types: %w", classify(err))
	}

	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := tx.Exec(ctx, `DELETE FROM trade_observations WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete trade observations: %w", classify(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertRatios writes all entries in a single transaction.
func (r *PostgresRepository) UpsertRatios(ctx context.Context, entries []model.RatioEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trade_ratios (type_a, type_b, average_ratio, trade_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (type_a, type_b) DO UPDATE SET
			average_ratio = EXCLUDED.average_ratio,
			trade_count = EXCLUDED.trade_count,
			updated_at = EXCLUDED.updated_at
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.TypeA == "" || e.TypeB == "" {
			return ErrInvalidInput
		}
		batch.Queue(query, e.TypeA, e.TypeB, e.AverageRatio, e.TradeCount, e.UpdatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert ratios: %w", classify(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListRatios returns every stored entry ordered by pair.
func (r *PostgresRepository) ListRatios(ctx context.Context) ([]model.RatioEntry, error) {
	query := `
		SELECT type_a, type_b, average_ratio, trade_count, updated_at
		FROM trade_ratios
		ORDER BY type_a, type_b
	`
	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query ratios: %w", classify(err))
	}
	defer rows.Close()

	var entries []model.RatioEntry
	for rows.Next() {
		var e model.RatioEntry
		if err := rows.Scan(&e.TypeA, &e.TypeB, &e.AverageRatio, &e.TradeCount, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ratio: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratios: %w", classify(err))
	}
	return entries, nil
}

// DeleteRatio removes a single directed entry.
func (r *PostgresRepository) DeleteRatio(ctx context.Context, typeA, typeB string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM trade_ratios WHERE type_a = $1 AND type_b = $2`, typeA, typeB)
	if err != nil {
		return fmt.Errorf("delete ratio: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// classify maps missing-database conditions onto ErrDatabaseNotFound while
// keeping the driver error in the chain.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUndefinedTable, pgErrInvalidCatalog, pgErrInvalidSchema, pgErrCannotConnectNow:
			return fmt.Errorf("%w: %w", ErrDatabaseNotFound, err)
		}
	}
	return err
}
